// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is an immutable playable item descriptor.
// StreamURL is only a locator: every playback opens a new stream from it.
type Track struct {
	Title          string        // Track title
	StreamURL      string        // Direct media locator handed to the voice sink
	WebpageURL     string        // Canonical reference URL
	Duration       time.Duration // Track duration (0 if unknown)
	Thumbnail      string        // Thumbnail URL (optional)
	Uploader       string        // Channel / artist name (optional)
	Requester      Requester     // Who asked for the track
	SourcePlaylist string        // Playlist the track came from (optional)
}

// Requester represents the person who requested the track.
type Requester struct {
	ID   snowflake.ID // Platform user ID
	Name string       // Display name
}

// Valid reports whether the descriptor carries everything needed for playback.
func (t Track) Valid() bool {
	return t.StreamURL != "" && t.Title != "" && t.WebpageURL != ""
}

// HasDuration reports whether the duration is known.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// WithRequester returns a copy of the track attributed to r.
func (t Track) WithRequester(r Requester) Track {
	t.Requester = r
	return t
}

// Mention returns the requester formatted as a chat mention.
func (r Requester) Mention() string {
	if r.ID == 0 {
		return r.Name
	}
	return fmt.Sprintf("<@%s>", r.ID)
}

// FormatDuration formats d as M:SS or H:MM:SS. Unknown durations render as "--:--".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ProgressBar renders a text progress bar of the given width.
func ProgressBar(elapsed, total time.Duration, width int) string {
	if width <= 0 {
		return ""
	}
	if total <= 0 {
		return strings.Repeat("▬", width)
	}
	pos := int(float64(elapsed) / float64(total) * float64(width))
	if pos < 0 {
		pos = 0
	}
	if pos >= width {
		pos = width - 1
	}
	return strings.Repeat("▬", pos) + "🔘" + strings.Repeat("▬", width-pos-1)
}

// Truncate shortens s to at most max runes, adding an ellipsis when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
