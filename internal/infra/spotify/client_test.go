package spotify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Localized URL",
			input:    "https://open.spotify.com/intl-ja/playlist/abc123/",
			expected: "abc123",
		},
		{
			name:     "Plain playlist ID",
			input:    "37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "URL with multiple query params",
			input:    "https://open.spotify.com/playlist/abc123?si=xyz&utm_source=copy",
			expected: "abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractPlaylistID(tt.input)
			assert.Equal(t, tt.expected, result,
				"extractPlaylistID(%s) should return %s", tt.input, tt.expected)
		})
	}
}

func TestExtractTrackID(t *testing.T) {
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", extractTrackID("spotify:track:4uLU6hMCjMI75M1A2tKUQC"))
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", extractTrackID("https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=1"))
}

func TestLinkKind(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://open.spotify.com/track/abc", "track"},
		{"spotify:track:abc", "track"},
		{"https://open.spotify.com/intl-ja/playlist/abc", "playlist"},
		{"spotify:playlist:abc", "playlist"},
		{"https://open.spotify.com/album/abc", ""},
		{"https://www.youtube.com/watch?v=abc", ""},
		{"never gonna give you up", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, linkKind(tt.input))
		})
	}
}

func TestSong_SearchQuery(t *testing.T) {
	s := Song{Title: "Plastic Love", Artists: []string{"Mariya Takeuchi"}, Duration: 4 * time.Minute}
	assert.Equal(t, "Mariya Takeuchi - Plastic Love", s.SearchQuery())
	assert.Equal(t, "Untitled", Song{Title: "Untitled"}.SearchQuery())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(errors.New("404 Not Found")))
	assert.True(t, isNotFound(errors.New("Invalid base62 id")))
	assert.False(t, isNotFound(errors.New("503 Service Unavailable")))
	assert.False(t, isNotFound(nil))
}
