package playback

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Status is a point-in-time view of a player.
type Status struct {
	PlayerID      string
	GuildID       snowflake.ID
	ChannelID     snowflake.ID
	State         State
	Current       *track.Track
	Position      time.Duration
	Volume        float64
	Repeat        RepeatMode
	Shuffle       bool
	QueueLength   int
	QueueDuration time.Duration
	Playlist      *CursorPosition // Open playlist, nil if none
}

// Pause pauses the active stream. It fails when nothing is playing.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying || p.stream == nil || !p.sink.IsPlaying() {
		return false
	}
	p.sink.Pause()
	p.ps.pause(p.now())
	p.state = StatePaused
	p.log.Info().Msg("player: paused")
	return true
}

// Resume resumes a paused stream. It fails when playback is not paused.
func (p *Player) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused || !p.sink.IsPaused() {
		return false
	}
	p.sink.Resume()
	p.ps.resume(p.now())
	p.state = StatePlaying
	p.log.Info().Msg("player: resumed")
	return true
}

// Skip ends the current track. Repeat ONE is cleared first so the loop advances.
// It reports whether a stream was stopped.
func (p *Player) Skip() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ps.Repeat == RepeatOne {
		p.ps.Repeat = RepeatOff
	}
	if p.stream == nil || !(p.sink.IsPlaying() || p.sink.IsPaused()) {
		return false
	}
	p.sink.Stop()
	p.log.Info().Msg("player: skipped")
	return true
}

// SetVolume sets the volume scalar, clamped to [0, MaxVolume], and applies it
// to the active stream. It returns the stored value.
func (p *Player) SetVolume(v float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ps.Volume = clampVolume(v, p.config.MaxVolume)
	if p.stream != nil {
		p.sink.SetVolume(p.ps.Volume)
	}
	p.log.Debug().Msgf("player: volume set: volume=%.2f", p.ps.Volume)
	return p.ps.Volume
}

// Volume returns the current volume scalar.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ps.Volume
}

// MaxVolume returns the configured volume ceiling.
func (p *Player) MaxVolume() float64 {
	return p.config.MaxVolume
}

// ToggleRepeat advances the repeat mode OFF -> ALL -> ONE -> OFF and returns the new mode.
func (p *Player) ToggleRepeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.ps.Repeat
	p.ps.Repeat = prev.Next()
	switch {
	case p.ps.Repeat == RepeatAll && p.ps.Current != nil:
		p.ps.History = []track.Track{*p.ps.Current}
	case prev == RepeatAll:
		p.ps.History = nil
	}
	p.log.Info().Msgf("player: repeat mode changed: %s -> %s", prev, p.ps.Repeat)
	return p.ps.Repeat
}

// Repeat returns the repeat mode.
func (p *Player) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ps.Repeat
}

// ToggleShuffle flips the shuffle display flag. The queue order is untouched.
func (p *Player) ToggleShuffle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ps.Shuffle = !p.ps.Shuffle
	return p.ps.Shuffle
}

// ShuffleQueue randomly reorders the queue and returns the number of tracks shuffled.
func (p *Player) ShuffleQueue() int {
	n := p.queue.Shuffle()
	p.log.Debug().Msgf("player: queue shuffled: count=%d", n)
	return n
}

// RemoveAt removes the track at the 1-based queue position pos.
func (p *Player) RemoveAt(pos int) (track.Track, error) {
	t, err := p.queue.RemoveAt(pos)
	if err != nil {
		return track.Track{}, err
	}
	p.log.Debug().Msgf("player: track removed: position=%d title=%s", pos, t.Title)
	return t, nil
}

// ClearQueue removes every queued track, closes the open playlist and drops
// the repeat history. It returns the number of tracks removed.
func (p *Player) ClearQueue() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.queue.Clear()
	p.cursor.Reset()
	p.ps.History = nil
	return n
}

// Queue returns an ordered copy of the queue.
func (p *Player) Queue() []track.Track {
	return p.queue.Snapshot()
}

// QueueLen returns the number of queued tracks.
func (p *Player) QueueLen() int {
	return p.queue.Len()
}

// NowPlaying returns the current track and the approximate position within it.
func (p *Player) NowPlaying() (track.Track, time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ps.Current == nil {
		return track.Track{}, 0, false
	}
	pos, _ := p.ps.PlaybackTime(p.now())
	return *p.ps.Current, pos, true
}

// State returns the player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns a snapshot of the player.
func (p *Player) Status() Status {
	p.mu.Lock()
	s := Status{
		PlayerID:  p.id,
		GuildID:   p.guildID,
		ChannelID: p.channelID,
		State:     p.state,
		Volume:    p.ps.Volume,
		Repeat:    p.ps.Repeat,
		Shuffle:   p.ps.Shuffle,
	}
	if p.ps.Current != nil {
		cur := *p.ps.Current
		s.Current = &cur
		s.Position, _ = p.ps.PlaybackTime(p.now())
	}
	p.mu.Unlock()

	s.QueueLength = p.queue.Len()
	s.QueueDuration = p.queue.TotalDuration()
	if pos, ok := p.cursor.Position(); ok {
		s.Playlist = &pos
	}
	return s
}
