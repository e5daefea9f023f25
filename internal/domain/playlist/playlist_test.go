package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/guildbox/internal/domain/track"
)

func validTrack(title string, d time.Duration) track.Track {
	return track.Track{
		Title:      title,
		StreamURL:  "https://cdn.example/" + title,
		WebpageURL: "https://video.example/" + title,
		Duration:   d,
	}
}

func TestPlaylist_HasMore(t *testing.T) {
	tests := []struct {
		name     string
		playlist Playlist
		expected bool
	}{
		{
			name:     "more batches available",
			playlist: Playlist{SourceRef: "https://list", NextStartOffset: 11},
			expected: true,
		},
		{
			name:     "exhausted",
			playlist: Playlist{SourceRef: "https://list", NextStartOffset: 0},
			expected: false,
		},
		{
			name:     "no source reference",
			playlist: Playlist{NextStartOffset: 11},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.playlist.HasMore())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	p := Playlist{Tracks: []track.Track{
		validTrack("a", time.Minute),
		validTrack("b", 0),
		validTrack("c", 30*time.Second),
	}}
	assert.Equal(t, 90*time.Second, p.TotalDuration())
}

func TestPlaylist_ValidTracks(t *testing.T) {
	p := Playlist{Tracks: []track.Track{
		validTrack("a", 0),
		{Title: "broken"},
		validTrack("c", 0),
	}}

	got := p.ValidTracks()
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, "c", got[1].Title)
}
