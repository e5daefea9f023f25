package playback

import (
	"math"
	"time"

	"github.com/osa030/guildbox/internal/domain/track"
)

// PlayerState holds the mutable playback fields of one player.
// It is not safe for concurrent use; Player guards it with its mutex.
type PlayerState struct {
	Current       *track.Track
	StartedAt     time.Time // Monotonic start of the current stream (zero if none)
	Paused        bool
	PausedAt      time.Time
	PausedElapsed time.Duration
	Volume        float64
	Repeat        RepeatMode
	Shuffle       bool
	History       []track.Track // Tracks played under RepeatAll, in order
}

// PlaybackTime returns the approximate position in the current track at now.
// It is capped at the track duration when the duration is known.
func (s *PlayerState) PlaybackTime(now time.Time) (time.Duration, bool) {
	if s.Current == nil || s.StartedAt.IsZero() {
		return 0, false
	}

	elapsed := now.Sub(s.StartedAt) - s.PausedElapsed
	if s.Paused && !s.PausedAt.IsZero() {
		elapsed -= now.Sub(s.PausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.Current.HasDuration() && elapsed > s.Current.Duration {
		return s.Current.Duration, true
	}
	return elapsed, true
}

// start records that t began playing at now.
func (s *PlayerState) start(t track.Track, now time.Time) {
	s.Current = &t
	s.StartedAt = now
	s.Paused = false
	s.PausedAt = time.Time{}
	s.PausedElapsed = 0
}

// finish clears the current track unless it is kept for a repeat.
func (s *PlayerState) finish(keep bool) {
	s.StartedAt = time.Time{}
	s.Paused = false
	s.PausedAt = time.Time{}
	s.PausedElapsed = 0
	if !keep {
		s.Current = nil
	}
}

func (s *PlayerState) pause(now time.Time) {
	s.Paused = true
	s.PausedAt = now
}

func (s *PlayerState) resume(now time.Time) {
	if !s.PausedAt.IsZero() {
		s.PausedElapsed += now.Sub(s.PausedAt)
	}
	s.Paused = false
	s.PausedAt = time.Time{}
}

// clampVolume bounds v to [0, max].
func clampVolume(v, max float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
