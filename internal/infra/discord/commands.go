package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	disgord "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/domain/track"
)

const commandTimeout = 2 * time.Minute

var errGuildOnly = errors.New("command used outside a guild")

// commandRequest is an invocation of a slash command in a guild.
type commandRequest struct {
	guildID        snowflake.ID
	channelID      snowflake.ID
	voiceChannelID snowflake.ID
	user           disgord.User
	data           disgord.SlashCommandInteractionData
}

type command struct {
	create disgord.SlashCommandCreate
	// deferred commands acknowledge first and edit the response when done.
	deferred bool
	run      func(ctx context.Context, req commandRequest) (notification.Message, error)
}

// Commands maps slash commands onto the session manager.
type Commands struct {
	manager  *session.Manager
	messages func(code string) string
	pageSize int
	commands map[string]command
}

// NewCommands creates the slash command set.
func NewCommands(manager *session.Manager, messages func(code string) string, pageSize int) *Commands {
	c := &Commands{
		manager:  manager,
		messages: messages,
		pageSize: pageSize,
	}
	c.commands = make(map[string]command)
	for _, cmd := range c.all() {
		c.commands[cmd.create.Name] = cmd
	}
	return c
}

// Definitions returns the commands to register with Discord.
func (c *Commands) Definitions() []disgord.ApplicationCommandCreate {
	cmds := c.all()
	out := make([]disgord.ApplicationCommandCreate, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, cmd.create)
	}
	return out
}

func (c *Commands) all() []command {
	return []command{
		{
			create: disgord.SlashCommandCreate{
				Name:        "play",
				Description: "Play a track or playlist from a URL or search query",
				Options: []disgord.ApplicationCommandOption{
					disgord.ApplicationCommandOptionString{
						Name:        "query",
						Description: "URL or search words",
						Required:    true,
					},
				},
			},
			deferred: true,
			run:      c.play,
		},
		{
			create: disgord.SlashCommandCreate{
				Name:        "queue",
				Description: "Show the queue",
				Options: []disgord.ApplicationCommandOption{
					disgord.ApplicationCommandOptionInt{
						Name:        "page",
						Description: "Page number",
						MinValue:    intPtr(1),
					},
				},
			},
			run: c.queue,
		},
		{create: simpleCommand("nowplaying", "Show the current track"), run: c.nowPlaying},
		{create: simpleCommand("skip", "Skip the current track"), run: c.skip},
		{create: simpleCommand("stop", "Stop playback and leave the voice channel"), run: c.stop},
		{create: simpleCommand("pause", "Pause playback"), run: c.pause},
		{create: simpleCommand("resume", "Resume playback"), run: c.resume},
		{
			create: disgord.SlashCommandCreate{
				Name:        "volume",
				Description: "Set the playback volume",
				Options: []disgord.ApplicationCommandOption{
					disgord.ApplicationCommandOptionInt{
						Name:        "percent",
						Description: "Volume in percent",
						Required:    true,
						MinValue:    intPtr(0),
						MaxValue:    intPtr(200),
					},
				},
			},
			run: c.volume,
		},
		{create: simpleCommand("repeat", "Cycle the repeat mode: off, all, one"), run: c.repeat},
		{create: simpleCommand("shuffle", "Toggle shuffle and reorder the queue"), run: c.shuffle},
		{
			create: disgord.SlashCommandCreate{
				Name:        "remove",
				Description: "Remove a track from the queue",
				Options: []disgord.ApplicationCommandOption{
					disgord.ApplicationCommandOptionInt{
						Name:        "position",
						Description: "Queue position",
						Required:    true,
						MinValue:    intPtr(1),
					},
				},
			},
			run: c.remove,
		},
		{create: simpleCommand("clear", "Remove every queued track"), run: c.clear},
	}
}

func simpleCommand(name, description string) disgord.SlashCommandCreate {
	return disgord.SlashCommandCreate{Name: name, Description: description}
}

func intPtr(i int) *int { return &i }

// OnApplicationCommand dispatches a slash command interaction.
func (c *Commands) OnApplicationCommand(event *events.ApplicationCommandInteractionCreate) {
	data, ok := event.Data.(disgord.SlashCommandInteractionData)
	if !ok {
		return
	}
	cmd, ok := c.commands[data.CommandName()]
	if !ok {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				zlog.Error().Msgf("discord: command panic recovered: command=%s panic=%v", data.CommandName(), r)
			}
		}()
		c.handle(event, cmd, data)
	}()
}

func (c *Commands) handle(event *events.ApplicationCommandInteractionCreate, cmd command, data disgord.SlashCommandInteractionData) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	req := commandRequest{
		channelID: event.Channel().ID(),
		user:      event.User(),
		data:      data,
	}
	if g := event.GuildID(); g != nil {
		req.guildID = *g
		if vs, ok := event.Client().Caches.VoiceState(*g, req.user.ID); ok && vs.ChannelID != nil {
			req.voiceChannelID = *vs.ChannelID
		}
	}
	zlog.Debug().Msgf("discord: command: name=%s guild_id=%s user=%s", data.CommandName(), req.guildID, req.user.Username)

	if cmd.deferred {
		if err := event.DeferCreateMessage(false); err != nil {
			zlog.Warn().Err(err).Msgf("discord: failed to defer response: command=%s", data.CommandName())
			return
		}
	}

	var (
		msg notification.Message
		err error
	)
	if req.guildID == 0 {
		err = errGuildOnly
	} else {
		msg, err = cmd.run(ctx, req)
	}
	ephemeral := false
	if err != nil {
		code := c.errorCode(err)
		if code == "default_error" {
			zlog.Error().Err(err).Msgf("discord: command failed: name=%s guild_id=%s", data.CommandName(), req.guildID)
		}
		msg = notification.Message{Content: c.messages(code)}
		ephemeral = true
	}

	if cmd.deferred {
		_, err = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), messageUpdate(msg))
	} else {
		err = event.CreateMessage(messageCreate(msg, ephemeral))
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("discord: failed to respond: command=%s", data.CommandName())
	}
}

func (c *Commands) errorCode(err error) string {
	if errors.Is(err, errGuildOnly) {
		return "guild_only"
	}
	return session.ErrorCode(err)
}

func (c *Commands) play(ctx context.Context, req commandRequest) (notification.Message, error) {
	query, _ := req.data.OptString("query")
	res, err := c.manager.Play(ctx, session.PlayRequest{
		GuildID:        req.guildID,
		VoiceChannelID: req.voiceChannelID,
		TextChannelID:  req.channelID,
		Requester:      track.Requester{ID: req.user.ID, Name: req.user.EffectiveName()},
		Query:          query,
	})
	if err != nil {
		return notification.Message{}, err
	}
	return playReply(res, c.messages), nil
}

func (c *Commands) queue(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	page, ok := req.data.OptInt("page")
	if !ok {
		page = 1
	}
	return notification.QueuePage(p.Status(), p.Queue(), page, c.pageSize), nil
}

func (c *Commands) nowPlaying(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	s := p.Status()
	if s.Current == nil {
		return notification.Message{}, session.ErrNoPlayer
	}
	return notification.NowPlaying(s), nil
}

func (c *Commands) skip(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	t, _, playing := p.NowPlaying()
	if !playing || !p.Skip() {
		return notification.Message{}, session.ErrNoPlayer
	}
	return c.reply("skipped", track.Truncate(t.Title, 80)), nil
}

func (c *Commands) stop(ctx context.Context, req commandRequest) (notification.Message, error) {
	if err := c.manager.Stop(ctx, req.guildID); err != nil {
		return notification.Message{}, err
	}
	return c.reply("stopped"), nil
}

func (c *Commands) pause(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	if !p.Pause() {
		return notification.Message{}, session.ErrNoPlayer
	}
	return c.reply("paused"), nil
}

func (c *Commands) resume(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	if !p.Resume() {
		return notification.Message{}, session.ErrNoPlayer
	}
	return c.reply("resumed"), nil
}

func (c *Commands) volume(_ context.Context, req commandRequest) (notification.Message, error) {
	percent := req.data.Int("percent")
	applied, ceiling, err := c.manager.SetVolumePercent(req.guildID, percent)
	if err != nil {
		return notification.Message{}, err
	}
	return c.reply("volume_set", applied, ceiling), nil
}

func (c *Commands) repeat(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	return c.reply("repeat_set", p.ToggleRepeat()), nil
}

func (c *Commands) shuffle(_ context.Context, req commandRequest) (notification.Message, error) {
	on, count, err := c.manager.Shuffle(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	if !on {
		return c.reply("shuffle_off"), nil
	}
	return c.reply("shuffle_on", count), nil
}

func (c *Commands) remove(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	t, err := p.RemoveAt(req.data.Int("position"))
	if err != nil {
		return notification.Message{}, err
	}
	return c.reply("removed", track.Truncate(t.Title, 80)), nil
}

func (c *Commands) clear(_ context.Context, req commandRequest) (notification.Message, error) {
	p, err := c.manager.Player(req.guildID)
	if err != nil {
		return notification.Message{}, err
	}
	return c.reply("cleared", p.ClearQueue()), nil
}

// reply renders the message template of code as an info embed.
func (c *Commands) reply(code string, args ...any) notification.Message {
	return notification.Message{Embed: &notification.Embed{
		Description: fmt.Sprintf(c.messages(code), args...),
		Color:       notification.ColorInfo,
	}}
}

// playReply renders the outcome of a play request.
func playReply(res session.PlayResult, messages func(code string) string) notification.Message {
	if !res.Accepted {
		return notification.Message{Content: messages(res.Code)}
	}

	if res.Track != nil {
		t := *res.Track
		return notification.Message{Embed: &notification.Embed{
			Title:       messages("queued"),
			URL:         t.WebpageURL,
			Thumbnail:   t.Thumbnail,
			Description: fmt.Sprintf("[%s](%s)", track.Truncate(t.Title, 100), t.WebpageURL),
			Color:       notification.ColorSuccess,
			Fields: []notification.Field{
				{Name: messages("field_duration"), Value: track.FormatDuration(t.Duration), Inline: true},
				{Name: messages("field_position"), Value: fmt.Sprintf("%d", res.Position), Inline: true},
			},
		}}
	}

	title := "playlist"
	if res.Playlist != nil && res.Playlist.Title != "" {
		title = res.Playlist.Title
	}
	lines := []string{fmt.Sprintf(messages("playlist_added"), res.Added, track.Truncate(title, 80))}
	if res.Rejected > 0 {
		lines = append(lines, fmt.Sprintf(messages("playlist_skipped"), res.Rejected))
	}
	if res.HasMore {
		lines = append(lines, messages("playlist_more"))
	}
	return notification.Message{Embed: &notification.Embed{
		Title:       messages("playlist_queued"),
		Description: strings.Join(lines, "\n"),
		Color:       notification.ColorSuccess,
	}}
}
