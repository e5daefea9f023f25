// Package discord connects the session manager to Discord: gateway events,
// slash commands, text notifications and voice playback.
package discord

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/logger"
)

// Handler receives the gateway events the bot forwards.
type Handler interface {
	Ready(botID snowflake.ID, botName string)
	HandleVoiceStateUpdate(guildID, userID, oldChannelID, newChannelID snowflake.ID)
}

// Bot owns the Discord gateway client.
type Bot struct {
	client   *bot.Client
	cfg      config.DiscordConfig
	handler  Handler
	commands *Commands
}

// New creates the Discord client. Nothing connects until Open.
func New(cfg config.DiscordConfig) (*Bot, error) {
	b := &Bot{cfg: cfg}
	client, err := disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildVoiceStates,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithEventListenerFunc(b.onReady),
		bot.WithEventListenerFunc(b.onApplicationCommand),
		bot.WithEventListenerFunc(b.onVoiceStateUpdate),
		bot.WithLogger(logger.Slog("disgo")),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord client")
	}
	b.client = client
	return b, nil
}

// Client returns the underlying disgo client.
func (b *Bot) Client() *bot.Client { return b.client }

// Connector returns a voice connector backed by this bot.
func (b *Bot) Connector() *Connector { return NewConnector(b.client) }

// Sender returns a text channel sender backed by this bot.
func (b *Bot) Sender() *Sender { return NewSender(b.client) }

// Attach sets the event handler and the slash commands. It must be called before Open.
func (b *Bot) Attach(handler Handler, commands *Commands) {
	b.handler = handler
	b.commands = commands
}

// Open connects to the gateway.
func (b *Bot) Open(ctx context.Context) error {
	if err := b.client.OpenGateway(ctx); err != nil {
		return errors.Wrap(err, "failed to open gateway")
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close(ctx context.Context) {
	b.client.Close(ctx)
}

// RegisterCommands replaces the application's slash commands, in the configured
// guild when one is set and globally otherwise.
func (b *Bot) RegisterCommands(ctx context.Context) error {
	if b.commands == nil {
		return errors.New("no commands attached")
	}
	defs := b.commands.Definitions()

	if b.cfg.GuildID != "" {
		guildID, err := snowflake.Parse(b.cfg.GuildID)
		if err != nil {
			return errors.Wrapf(err, "invalid guild id %q", b.cfg.GuildID)
		}
		if _, err := b.client.Rest.SetGuildCommands(b.client.ApplicationID, guildID, defs, rest.WithCtx(ctx)); err != nil {
			return errors.Wrap(err, "failed to register guild commands")
		}
		zlog.Info().Msgf("discord: registered commands: guild_id=%s count=%d", guildID, len(defs))
		return nil
	}

	if _, err := b.client.Rest.SetGlobalCommands(b.client.ApplicationID, defs, rest.WithCtx(ctx)); err != nil {
		return errors.Wrap(err, "failed to register global commands")
	}
	zlog.Info().Msgf("discord: registered global commands: count=%d", len(defs))
	return nil
}

func (b *Bot) onReady(event *events.Ready) {
	zlog.Info().Msgf("discord: ready: user=%s id=%s", event.User.Username, event.User.ID)
	if b.handler != nil {
		b.handler.Ready(event.User.ID, event.User.Username)
	}
}

func (b *Bot) onApplicationCommand(event *events.ApplicationCommandInteractionCreate) {
	if b.commands != nil {
		b.commands.OnApplicationCommand(event)
	}
}

func (b *Bot) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if b.handler == nil {
		return
	}
	var oldChannel, newChannel snowflake.ID
	if event.OldVoiceState.ChannelID != nil {
		oldChannel = *event.OldVoiceState.ChannelID
	}
	if event.VoiceState.ChannelID != nil {
		newChannel = *event.VoiceState.ChannelID
	}
	if oldChannel == newChannel {
		return
	}
	b.handler.HandleVoiceStateUpdate(event.VoiceState.GuildID, event.VoiceState.UserID, oldChannel, newChannel)
}
