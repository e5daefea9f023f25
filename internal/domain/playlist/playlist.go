// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Playlist is the result of resolving a playlist reference.
// Tracks holds the first batch only; the rest is fetched lazily from NextStartOffset.
type Playlist struct {
	Title           string        // Playlist title
	SourceRef       string        // Reference used to fetch further batches
	Tracks          []track.Track // First batch of tracks
	NextStartOffset int           // 1-based offset of the next batch (0 when exhausted)
}

// HasMore reports whether further batches may be fetched.
func (p *Playlist) HasMore() bool {
	return p.SourceRef != "" && p.NextStartOffset > 0
}

// TotalDuration returns the total known duration of the loaded tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// ValidTracks returns the loaded tracks that carry a playable descriptor.
func (p *Playlist) ValidTracks() []track.Track {
	result := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.Valid() {
			result = append(result, t)
		}
	}
	return result
}
