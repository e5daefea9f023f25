package playback

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/domain/track"
)

// EventType represents a player event type.
type EventType int

const (
	EventTrackStarted   EventType = iota // Track started playing
	EventPlaybackError                   // Stream failed to open or ended with an error
	EventEmptyRoom                       // Voice channel emptied, grace timer started
	EventIdleTimeout                     // Grace timer elapsed with nobody back
	EventQueueTimeout                    // Queue stayed empty for the whole queue timeout
	EventPlaylistLoaded                  // Lazy loader appended a playlist batch
	EventPlaylistFailed                  // Lazy loader gave up on the playlist
	EventDeparture                       // Player left the voice channel
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventPlaybackError:
		return "playback_error"
	case EventEmptyRoom:
		return "empty_room"
	case EventIdleTimeout:
		return "idle_timeout"
	case EventQueueTimeout:
		return "queue_timeout"
	case EventPlaylistLoaded:
		return "playlist_loaded"
	case EventPlaylistFailed:
		return "playlist_failed"
	case EventDeparture:
		return "departure"
	default:
		return "unknown"
	}
}

// Event represents a player event destined for the guild's text channel.
type Event struct {
	Type    EventType
	GuildID snowflake.ID
	Track   *track.Track // Track concerned (nil for some events)
	Count   int          // Number of tracks involved (playlist events)
	Err     error        // Cause for error events
}

// Notifier delivers player events to a text channel.
// Implementations must not block the caller.
type Notifier interface {
	Notify(channelID snowflake.ID, e Event)
}
