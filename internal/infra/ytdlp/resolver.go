// Package ytdlp resolves queries and links into playable tracks with yt-dlp.
package ytdlp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/domain/playlist"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

const (
	audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"

	// One line per resolved entry. Single videos print NA for the playlist fields.
	printTemplate = "%(playlist_id)s\t%(playlist_title)s\t%(url)s\t%(title)s\t%(webpage_url)s\t%(duration)s\t%(uploader)s\t%(thumbnail)s"
	fieldCount    = 8
)

// runFunc runs yt-dlp over target restricted to the playlist item range items.
type runFunc func(ctx context.Context, items, target string) (stdout, stderr string, err error)

// Resolver resolves search queries, single links and playlist ranges.
type Resolver struct {
	searchPrefix string
	batchSize    int
	timeout      time.Duration
	limiter      *rate.Limiter
	run          runFunc
}

// New creates a resolver. batchSize is the size of the first playlist batch.
func New(cfg config.ResolverConfig, batchSize int) *Resolver {
	r := &Resolver{
		searchPrefix: cfg.SearchPrefix,
		batchSize:    batchSize,
		timeout:      cfg.Timeout(),
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
	r.run = commandRunner(cfg.BinaryPath, cfg.Proxy)
	return r
}

func commandRunner(binary, proxy string) runFunc {
	return func(ctx context.Context, items, target string) (string, string, error) {
		cmd := ytdlp.New().
			Quiet().
			NoWarnings()
		if binary != "" {
			cmd.SetExecutable(binary)
		}
		if proxy != "" {
			cmd.Proxy(proxy)
		}

		res, err := cmd.
			Format(audioFormat).
			Print(printTemplate).
			PlaylistItems(items).
			IgnoreErrors().
			IgnoreConfig().
			NoCheckCertificates().
			Run(ctx, "--skip-download", "--socket-timeout", "30", target)
		if res == nil {
			return "", "", err
		}
		return res.Stdout, res.Stderr, err
	}
}

// Resolve resolves a URL or a search query. Search queries resolve to their first hit.
func (r *Resolver) Resolve(ctx context.Context, query string) (session.Resolution, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return session.Resolution{}, errors.Mark(errors.New("empty query"), session.ErrNotFound)
	}

	if !isURL(query) {
		t, err := r.Search(ctx, query)
		if err != nil {
			return session.Resolution{}, err
		}
		return session.Resolution{Track: &t}, nil
	}

	entries, err := r.fetch(ctx, fmt.Sprintf("1-%d", r.batchSize), query)
	if err != nil {
		return session.Resolution{}, err
	}
	if len(entries) == 0 {
		return session.Resolution{}, errors.Mark(errors.Newf("no playable entries at %s", query), session.ErrNotFound)
	}

	if entries[0].playlistID == "" {
		t := entries[0].track
		zlog.Info().Msgf("ytdlp: resolved track: title=%s duration=%s", t.Title, track.FormatDuration(t.Duration))
		return session.Resolution{Track: &t}, nil
	}

	pl := &playlist.Playlist{
		Title:     entries[0].playlistTitle,
		SourceRef: query,
		Tracks:    make([]track.Track, 0, len(entries)),
	}
	for _, e := range entries {
		pl.Tracks = append(pl.Tracks, e.track)
	}
	// the loader clears the cursor once a later batch comes back empty
	pl.NextStartOffset = 1 + len(entries)
	zlog.Info().Msgf("ytdlp: resolved playlist: title=%s first_batch=%d next_offset=%d", pl.Title, len(pl.Tracks), pl.NextStartOffset)
	return session.Resolution{Playlist: pl}, nil
}

// Search returns the first playable hit for query.
func (r *Resolver) Search(ctx context.Context, query string) (track.Track, error) {
	entries, err := r.fetch(ctx, "1", fmt.Sprintf("%s1:%s", r.searchPrefix, query))
	if err != nil {
		return track.Track{}, err
	}
	for _, e := range entries {
		if e.track.Valid() {
			zlog.Info().Msgf("ytdlp: search hit: query=%s title=%s", query, e.track.Title)
			return e.track, nil
		}
	}
	return track.Track{}, errors.Mark(errors.Newf("no results for %q", query), session.ErrNotFound)
}

// ResolveBatch returns up to size entries of the playlist sourceRef starting at the 1-based offset start.
func (r *Resolver) ResolveBatch(ctx context.Context, sourceRef string, start, size int) ([]track.Track, error) {
	if start < 1 || size < 1 {
		return nil, errors.Newf("invalid playlist range: start=%d size=%d", start, size)
	}
	entries, err := r.fetch(ctx, fmt.Sprintf("%d-%d", start, start+size-1), sourceRef)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	tracks := make([]track.Track, 0, len(entries))
	for _, e := range entries {
		tracks = append(tracks, e.track)
	}
	zlog.Debug().Msgf("ytdlp: resolved batch: source=%s start=%d got=%d", sourceRef, start, len(tracks))
	return tracks, nil
}

func (r *Resolver) fetch(ctx context.Context, items, target string) ([]entry, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "rate limiter"), session.ErrTransient)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stdout, stderr, err := r.run(ctx, items, target)
	entries := parseEntries(stdout)
	if err != nil && len(entries) == 0 {
		zlog.Warn().Err(err).Msgf("ytdlp: run failed: target=%s stderr=%s", target, strings.TrimSpace(stderr))
		return nil, classify(err, stderr)
	}
	if len(entries) == 0 {
		return nil, errors.Mark(errors.Newf("no entries for %s", target), session.ErrNotFound)
	}
	return entries, nil
}

type entry struct {
	playlistID    string
	playlistTitle string
	track         track.Track
}

// parseEntries parses printTemplate lines. Lines missing a playable descriptor are dropped.
func parseEntries(stdout string) []entry {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	entries := make([]entry, 0, len(lines))
	for _, l := range lines {
		ps := strings.Split(strings.TrimRight(l, "\r"), "\t")
		if len(ps) < fieldCount {
			continue
		}
		d, _ := time.ParseDuration(field(ps[5]) + "s")
		t := track.Track{
			StreamURL:  field(ps[2]),
			Title:      field(ps[3]),
			WebpageURL: field(ps[4]),
			Duration:   d.Round(time.Second),
			Uploader:   field(ps[6]),
			Thumbnail:  field(ps[7]),
		}
		if !t.Valid() {
			continue
		}
		entries = append(entries, entry{
			playlistID:    field(ps[0]),
			playlistTitle: field(ps[1]),
			track:         t,
		})
	}
	return entries
}

// field maps yt-dlp's NA placeholder to empty.
func field(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

// classify marks a yt-dlp failure with the matching resolver error.
func classify(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errors.Mark(errors.Wrap(err, "yt-dlp timed out"), session.ErrTransient)
	case strings.Contains(msg, "drm"),
		strings.Contains(msg, "unsupported url"),
		strings.Contains(msg, "is not a valid url"):
		return errors.Mark(errors.Wrap(err, "unsupported source"), session.ErrUnsupported)
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "private video"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "http error 404"),
		strings.Contains(msg, "has been removed"):
		return errors.Mark(errors.Wrap(err, "not found"), session.ErrNotFound)
	default:
		return errors.Mark(errors.Wrap(err, "yt-dlp failed"), session.ErrTransient)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
