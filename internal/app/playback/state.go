// Package playback provides the per-guild player: queue, lazy playlist loading,
// the playback loop and the control surface used by command handlers.
package playback

// State represents the player state.
type State int

const (
	StateIdle           State = iota // No current track, waiting on the queue
	StateEmptyRoomGrace              // Voice channel has no listeners, grace timer running
	StatePlaying                     // Track is playing
	StatePaused                      // Track is paused
	StateDestroyed                   // Player torn down (terminal)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEmptyRoomGrace:
		return "empty_room_grace"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// RepeatMode represents the repeat setting of a player.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota // Play each track once
	RepeatAll                   // Replay the session history once the queue drains
	RepeatOne                   // Replay the current track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows m in the OFF -> ALL -> ONE -> OFF cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}
