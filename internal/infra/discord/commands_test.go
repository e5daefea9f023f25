package discord

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	disgord "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/domain/playlist"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

func messages(code string) string { return "msg:" + code }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("discord:\n  token: test-token\n"))
	require.NoError(t, err)
	return cfg
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, query string) (session.Resolution, error) {
	t := track.Track{
		Title:      query,
		StreamURL:  "https://stream.example/" + query,
		WebpageURL: "https://watch.example/" + query,
		Duration:   3 * time.Minute,
	}
	return session.Resolution{Track: &t}, nil
}

func (stubResolver) ResolveBatch(context.Context, string, int, int) ([]track.Track, error) {
	return nil, nil
}

type silentStream struct{ done chan error }

func (s *silentStream) Done() <-chan error { return s.done }

// emptyRoomSink holds only the bot, so the player waits out its grace period with the queue intact.
type emptyRoomSink struct {
	mu        sync.Mutex
	connected bool
}

func (s *emptyRoomSink) Play(context.Context, string, float64) (playback.Stream, error) {
	return &silentStream{done: make(chan error, 1)}, nil
}
func (s *emptyRoomSink) Stop()             {}
func (s *emptyRoomSink) Pause()            {}
func (s *emptyRoomSink) Resume()           {}
func (s *emptyRoomSink) SetVolume(float64) {}
func (s *emptyRoomSink) IsPlaying() bool   { return false }
func (s *emptyRoomSink) IsPaused() bool    { return false }

func (s *emptyRoomSink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *emptyRoomSink) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *emptyRoomSink) ChannelMembers() []playback.Member {
	return []playback.Member{{ID: 1, Bot: true}}
}

type emptyRoomConnector struct{}

func (emptyRoomConnector) Connect(context.Context, snowflake.ID, snowflake.ID) (playback.VoiceSink, error) {
	return &emptyRoomSink{connected: true}, nil
}

func intOptions(opts map[string]int) disgord.SlashCommandInteractionData {
	data := disgord.SlashCommandInteractionData{Options: make(map[string]disgord.SlashCommandOption)}
	for name, v := range opts {
		data.Options[name] = disgord.SlashCommandOption{
			Name:  name,
			Type:  disgord.ApplicationCommandOptionTypeInt,
			Value: json.RawMessage(strconv.Itoa(v)),
		}
	}
	return data
}

func TestCommands_Definitions(t *testing.T) {
	c := NewCommands(nil, messages, 10)
	defs := c.Definitions()

	var names []string
	for _, d := range defs {
		slash, ok := d.(disgord.SlashCommandCreate)
		require.True(t, ok)
		names = append(names, slash.Name)
	}
	assert.ElementsMatch(t, []string{
		"play", "queue", "nowplaying", "skip", "stop", "pause",
		"resume", "volume", "repeat", "shuffle", "remove", "clear",
	}, names)
	assert.Len(t, c.commands, len(defs))
	assert.True(t, c.commands["play"].deferred)
	assert.False(t, c.commands["skip"].deferred)

	volume := c.commands["volume"].create
	require.Len(t, volume.Options, 1)
	opt, ok := volume.Options[0].(disgord.ApplicationCommandOptionInt)
	require.True(t, ok)
	assert.True(t, opt.Required)
	assert.Equal(t, 0, *opt.MinValue)
	assert.Equal(t, 200, *opt.MaxValue)
}

func TestCommands_ErrorCode(t *testing.T) {
	c := NewCommands(nil, messages, 10)
	assert.Equal(t, "guild_only", c.errorCode(errGuildOnly))
	assert.Equal(t, "nothing_playing", c.errorCode(session.ErrNoPlayer))
}

func TestCommands_ControlReplies(t *testing.T) {
	cfg := testConfig(t)
	m := session.NewManager(cfg, stubResolver{}, emptyRoomConnector{}, nil)
	m.Ready(1, "guildbox")
	t.Cleanup(func() {
		m.Shutdown(context.Background())
	})
	c := NewCommands(m, cfg.GetMessage, 10)

	ctx := context.Background()
	for _, q := range []string{"a", "b", "c"} {
		res, err := m.Play(ctx, session.PlayRequest{
			GuildID:        100,
			VoiceChannelID: 200,
			TextChannelID:  300,
			Requester:      track.Requester{ID: 42, Name: "dj"},
			Query:          q,
		})
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}

	// steps share one player and run in order
	steps := []struct {
		command string
		options map[string]int
		want    string
	}{
		{command: "volume", options: map[string]int{"percent": 80}, want: "🔊 Volume set to **80%** (max 200%)."},
		{command: "volume", options: map[string]int{"percent": 500}, want: "🔊 Volume set to **200%** (max 200%)."},
		{command: "repeat", want: "🔁 Repeat: **all**"},
		{command: "remove", options: map[string]int{"position": 2}, want: "🗑️ Removed **b**"},
		{command: "shuffle", want: "🔀 Shuffle on, reordered 2 tracks."},
		{command: "shuffle", want: "🔀 Shuffle off."},
		{command: "clear", want: "🧹 Cleared 2 tracks."},
		{command: "stop", want: "⏹️ Stopped."},
	}

	for _, step := range steps {
		cmd, ok := c.commands[step.command]
		require.True(t, ok, step.command)

		msg, err := cmd.run(ctx, commandRequest{guildID: 100, channelID: 300, data: intOptions(step.options)})
		require.NoError(t, err, step.command)
		require.NotNil(t, msg.Embed, step.command)
		assert.Equal(t, step.want, msg.Embed.Description, step.command)
		assert.Equal(t, notification.ColorInfo, msg.Embed.Color)
	}
}

func TestPlayReply(t *testing.T) {
	templates := testConfig(t).GetMessage
	song := track.Track{
		Title:      "Plastic Love",
		WebpageURL: "https://watch.example/1",
		Thumbnail:  "https://img.example/1.jpg",
		Duration:   4*time.Minute + 5*time.Second,
	}

	t.Run("rejected", func(t *testing.T) {
		msg := playReply(session.PlayResult{Code: "duplicate_track"}, messages)
		assert.Equal(t, "msg:duplicate_track", msg.Content)
		assert.Nil(t, msg.Embed)
	})

	t.Run("single track", func(t *testing.T) {
		msg := playReply(session.PlayResult{Accepted: true, Track: &song, Position: 3}, templates)
		require.NotNil(t, msg.Embed)
		assert.Equal(t, "➕ Queued", msg.Embed.Title)
		assert.Equal(t, "https://img.example/1.jpg", msg.Embed.Thumbnail)
		assert.Contains(t, msg.Embed.Description, "Plastic Love")
		assert.Equal(t, []notification.Field{
			{Name: "Duration", Value: "4:05", Inline: true},
			{Name: "Position", Value: "3", Inline: true},
		}, msg.Embed.Fields)
	})

	t.Run("playlist", func(t *testing.T) {
		msg := playReply(session.PlayResult{
			Accepted: true,
			Playlist: &playlist.Playlist{Title: "City Pop"},
			Added:    9,
			Rejected: 1,
			HasMore:  true,
		}, templates)
		require.NotNil(t, msg.Embed)
		assert.Equal(t, "📥 Playlist queued", msg.Embed.Title)
		assert.Equal(t, "Queued **9** tracks from **City Pop**.\n1 tracks were skipped.\nMore tracks will load as the queue plays.", msg.Embed.Description)
	})

	t.Run("custom templates", func(t *testing.T) {
		msg := playReply(session.PlayResult{Accepted: true, Track: &song, Position: 1}, messages)
		require.NotNil(t, msg.Embed)
		assert.Equal(t, "msg:queued", msg.Embed.Title)
		assert.Equal(t, "msg:field_duration", msg.Embed.Fields[0].Name)
		assert.Equal(t, "msg:field_position", msg.Embed.Fields[1].Name)
	})
}

func TestMessageConversion(t *testing.T) {
	msg := notification.Message{
		Content: "hello",
		Embed: &notification.Embed{
			Title:     "Now Playing",
			URL:       "https://watch.example/1",
			Thumbnail: "https://img.example/1.jpg",
			Footer:    "From playlist: Mix",
			Color:     notification.ColorSuccess,
			Fields:    []notification.Field{{Name: "Duration", Value: "3:00", Inline: true}},
		},
	}

	mc := messageCreate(msg, true)
	assert.Equal(t, "hello", mc.Content)
	assert.Equal(t, disgord.MessageFlagEphemeral, mc.Flags)
	require.Len(t, mc.Embeds, 1)
	e := mc.Embeds[0]
	assert.Equal(t, "Now Playing", e.Title)
	assert.Equal(t, notification.ColorSuccess, e.Color)
	require.NotNil(t, e.Thumbnail)
	assert.Equal(t, "https://img.example/1.jpg", e.Thumbnail.URL)
	require.NotNil(t, e.Footer)
	assert.Equal(t, "From playlist: Mix", e.Footer.Text)
	require.Len(t, e.Fields, 1)
	require.NotNil(t, e.Fields[0].Inline)
	assert.True(t, *e.Fields[0].Inline)

	plain := messageCreate(notification.Message{Content: "hi"}, false)
	assert.Empty(t, plain.Embeds)
	assert.Zero(t, plain.Flags)

	mu := messageUpdate(notification.Message{Content: "done"})
	require.NotNil(t, mu.Content)
	assert.Equal(t, "done", *mu.Content)
	require.NotNil(t, mu.Embeds)
	assert.Empty(t, *mu.Embeds, "an update clears the embeds of the deferred response")
}
