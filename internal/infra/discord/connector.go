package discord

import (
	"context"
	"iter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/bot"
	disgord "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
	closeTimeout    = 5 * time.Second
)

// Connector joins voice channels through the bot's voice manager.
type Connector struct {
	client   *bot.Client
	attempts int
	backoff  time.Duration
}

// NewConnector creates a connector for client.
func NewConnector(client *bot.Client) *Connector {
	return &Connector{
		client:   client,
		attempts: connectAttempts,
		backoff:  connectBackoff,
	}
}

// Connect opens a voice connection to channelID, retrying with exponential backoff.
func (c *Connector) Connect(ctx context.Context, guildID, channelID snowflake.ID) (playback.VoiceSink, error) {
	conn := c.client.VoiceManager.CreateConn(guildID)

	var lastErr error
	for i := range c.attempts {
		if i > 0 {
			wait := c.backoff << uint(i-1)
			zlog.Warn().Msgf("voice: retrying connection: guild_id=%s attempt=%d/%d wait=%s", guildID, i+1, c.attempts, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				lastErr = ctx.Err()
				c.close(conn)
				return nil, errors.Wrap(lastErr, "join voice channel")
			}
		}
		if err := conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		zlog.Info().Msgf("voice: connected: guild_id=%s channel_id=%s", guildID, channelID)
		return newSink(guildID, channelID, conn, func() []playback.Member {
			return c.members(guildID, channelID)
		}), nil
	}

	c.close(conn)
	return nil, errors.Wrapf(lastErr, "join voice channel %s after %d attempts", channelID, c.attempts)
}

func (c *Connector) close(conn voice.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	conn.Close(ctx)
}

func (c *Connector) members(guildID, channelID snowflake.ID) []playback.Member {
	botID := c.client.ID()
	return channelMembers(c.client.Caches.VoiceStates(guildID), channelID, func(userID snowflake.ID) bool {
		if userID == botID {
			return true
		}
		m, ok := c.client.Caches.Member(guildID, userID)
		return ok && m.User.Bot
	})
}

// channelMembers lists the users whose voice state points at channelID.
func channelMembers(states iter.Seq[disgord.VoiceState], channelID snowflake.ID, isBot func(snowflake.ID) bool) []playback.Member {
	var members []playback.Member
	for vs := range states {
		if vs.ChannelID == nil || *vs.ChannelID != channelID {
			continue
		}
		members = append(members, playback.Member{ID: vs.UserID, Bot: isBot(vs.UserID)})
	}
	return members
}
