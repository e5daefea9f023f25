package playback

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// Stream is one playback of a track on a VoiceSink.
// Done yields exactly one value (nil on normal completion or stop) and is then closed.
type Stream interface {
	Done() <-chan error
}

// Member is a user present in the bound voice channel.
type Member struct {
	ID  snowflake.ID
	Bot bool
}

// VoiceSink is an open audio output connection bound to one voice channel.
type VoiceSink interface {
	// Play opens a new stream from locator and starts delivering it.
	Play(ctx context.Context, locator string, volume float64) (Stream, error)
	Stop()
	Pause()
	Resume()
	SetVolume(volume float64)
	IsConnected() bool
	IsPlaying() bool
	IsPaused() bool
	Disconnect(ctx context.Context) error
	ChannelMembers() []Member
}

// Connector opens voice sinks.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (VoiceSink, error)
}

// hasListeners reports whether any non-bot member is present.
func hasListeners(members []Member) bool {
	for _, m := range members {
		if !m.Bot {
			return true
		}
	}
	return false
}
