package spotify

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/domain/playlist"
	"github.com/osa030/guildbox/internal/domain/track"
)

const playlistRefPrefix = "spotify:playlist:"

// Catalogue is the subset of the Spotify API used to resolve links.
type Catalogue interface {
	GetTrack(ctx context.Context, trackID string) (*Song, error)
	GetPlaylist(ctx context.Context, playlistURL string) (name string, total int, err error)
	GetPlaylistSongs(ctx context.Context, playlistURL string, offset, limit int) ([]Song, error)
}

// Searcher finds a playable track for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) (track.Track, error)
}

// Resolver resolves Spotify links by searching for each song on the playback platform.
// Everything that is not a Spotify link is handed to next.
type Resolver struct {
	catalogue Catalogue
	searcher  Searcher
	next      session.Resolver
	batchSize int
}

// NewResolver creates a Spotify link resolver in front of next.
func NewResolver(catalogue Catalogue, searcher Searcher, next session.Resolver, batchSize int) *Resolver {
	return &Resolver{
		catalogue: catalogue,
		searcher:  searcher,
		next:      next,
		batchSize: batchSize,
	}
}

// Resolve resolves Spotify track and playlist links and delegates anything else.
func (r *Resolver) Resolve(ctx context.Context, query string) (session.Resolution, error) {
	switch linkKind(query) {
	case "track":
		return r.resolveTrack(ctx, query)
	case "playlist":
		return r.resolvePlaylist(ctx, query)
	default:
		if strings.HasPrefix(strings.TrimSpace(query), "spotify:") || strings.Contains(query, "open.spotify.com/") {
			return session.Resolution{}, errors.Mark(errors.Newf("unsupported spotify link: %s", query), session.ErrUnsupported)
		}
		return r.next.Resolve(ctx, query)
	}
}

// ResolveBatch fetches the next songs of a Spotify playlist, or delegates other references.
func (r *Resolver) ResolveBatch(ctx context.Context, sourceRef string, start, size int) ([]track.Track, error) {
	if !strings.HasPrefix(sourceRef, playlistRefPrefix) {
		return r.next.ResolveBatch(ctx, sourceRef, start, size)
	}
	songs, err := r.catalogue.GetPlaylistSongs(ctx, sourceRef, start-1, size)
	if err != nil {
		return nil, markAPIError(err)
	}
	return r.searchAll(ctx, songs), nil
}

func (r *Resolver) resolveTrack(ctx context.Context, link string) (session.Resolution, error) {
	song, err := r.catalogue.GetTrack(ctx, link)
	if err != nil {
		return session.Resolution{}, markAPIError(err)
	}
	t, err := r.search(ctx, *song)
	if err != nil {
		return session.Resolution{}, err
	}
	return session.Resolution{Track: &t}, nil
}

func (r *Resolver) resolvePlaylist(ctx context.Context, link string) (session.Resolution, error) {
	ref := playlistRefPrefix + extractPlaylistID(link)

	name, total, err := r.catalogue.GetPlaylist(ctx, ref)
	if err != nil {
		return session.Resolution{}, markAPIError(err)
	}
	songs, err := r.catalogue.GetPlaylistSongs(ctx, ref, 0, r.batchSize)
	if err != nil {
		return session.Resolution{}, markAPIError(err)
	}

	pl := &playlist.Playlist{
		Title:     name,
		SourceRef: ref,
		Tracks:    r.searchAll(ctx, songs),
	}
	if total > r.batchSize {
		pl.NextStartOffset = 1 + r.batchSize
	}
	zlog.Info().Msgf("spotify: resolved playlist: name=%s total=%d first_batch=%d", name, total, len(pl.Tracks))
	return session.Resolution{Playlist: pl}, nil
}

// searchAll resolves songs one by one, skipping the ones without a match.
func (r *Resolver) searchAll(ctx context.Context, songs []Song) []track.Track {
	tracks := make([]track.Track, 0, len(songs))
	for _, s := range songs {
		if ctx.Err() != nil {
			break
		}
		t, err := r.search(ctx, s)
		if err != nil {
			zlog.Debug().Msgf("spotify: no match, skipping: query=%s err=%v", s.SearchQuery(), err)
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks
}

func (r *Resolver) search(ctx context.Context, s Song) (track.Track, error) {
	t, err := r.searcher.Search(ctx, s.SearchQuery())
	if err != nil {
		return track.Track{}, err
	}
	if t.Thumbnail == "" {
		t.Thumbnail = s.ArtworkURL
	}
	if t.Duration == 0 {
		t.Duration = s.Duration
	}
	return t, nil
}

func markAPIError(err error) error {
	if isNotFound(err) {
		return errors.Mark(err, session.ErrNotFound)
	}
	return errors.Mark(err, session.ErrTransient)
}
