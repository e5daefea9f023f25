// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string // Optional; client credentials are used when empty
	Market       string
}

// Song is the catalogue metadata of a Spotify track.
type Song struct {
	ID         string
	Title      string
	Artists    []string
	Duration   time.Duration
	ArtworkURL string
}

// SearchQuery returns the text used to find the song on a video platform.
func (s Song) SearchQuery() string {
	if len(s.Artists) == 0 {
		return s.Title
	}
	return strings.Join(s.Artists, ", ") + " - " + s.Title
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	var client *spotify.Client
	if cfg.RefreshToken != "" {
		auth := spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
		)
		token := &oauth2.Token{
			RefreshToken: cfg.RefreshToken,
		}
		client = spotify.New(auth.Client(ctx, token))
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		client = spotify.New(cc.Client(ctx))
	}

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*Song, error) {
	id := extractTrackID(trackID)

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	song := convertTrack(result)
	return &song, nil
}

// GetPlaylist returns the name and track count of a playlist.
func (c *Client) GetPlaylist(ctx context.Context, playlistURL string) (string, int, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return "", 0, errors.New("invalid playlist URL")
	}

	var result *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to get playlist")
	}
	return result.Name, int(result.Tracks.Total), nil
}

// GetPlaylistSongs retrieves up to limit songs of a playlist starting at the 0-based offset.
// Episodes and unavailable items are skipped.
func (c *Client) GetPlaylistSongs(ctx context.Context, playlistURL string, offset, limit int) ([]Song, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}
	if limit > 100 {
		limit = 100
	}

	var page *spotify.PlaylistItemPage
	err := c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist items")
	}

	songs := make([]Song, 0, len(page.Items))
	for _, item := range page.Items {
		// Only process tracks (exclude episodes)
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			songs = append(songs, convertTrack(item.Track.Track))
		}
	}
	return songs, nil
}

// convertTrack converts a Spotify FullTrack to a Song.
func convertTrack(t *spotify.FullTrack) Song {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	return Song{
		ID:         string(t.ID),
		Title:      t.Name,
		Artists:    artists,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		ArtworkURL: artwork,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// isNotFound checks if an error reports a missing resource.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "invalid base62 id") ||
		strings.Contains(errStr, "invalid playlist")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:KIND:ID URIs and open.spotify.com/[intl-XX/]KIND/ID URLs.
// Anything else is assumed to already be an ID.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:"+kind+":") {
		return strings.TrimPrefix(input, "spotify:"+kind+":")
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	return input
}

// linkKind returns "track" or "playlist" for Spotify links and URIs, and "" for anything else.
func linkKind(input string) string {
	input = strings.TrimSpace(input)
	isSpotify := strings.HasPrefix(input, "spotify:") || strings.Contains(input, "open.spotify.com/")
	if !isSpotify {
		return ""
	}
	for _, kind := range []string{"track", "playlist"} {
		if strings.HasPrefix(input, "spotify:"+kind+":") || strings.Contains(input, "/"+kind+"/") {
			return kind
		}
	}
	return ""
}
