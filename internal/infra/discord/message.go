package discord

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/bot"
	disgord "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/app/notification"
)

// Sender posts notification messages to text channels.
type Sender struct {
	client *bot.Client
}

// NewSender creates a sender for client.
func NewSender(client *bot.Client) *Sender {
	return &Sender{client: client}
}

// SendMessage implements notification.Sender.
func (s *Sender) SendMessage(ctx context.Context, channelID snowflake.ID, msg notification.Message) error {
	if _, err := s.client.Rest.CreateMessage(channelID, messageCreate(msg, false), rest.WithCtx(ctx)); err != nil {
		return errors.Wrapf(err, "send message to channel %s", channelID)
	}
	return nil
}

func messageCreate(msg notification.Message, ephemeral bool) disgord.MessageCreate {
	mc := disgord.MessageCreate{
		Content:         msg.Content,
		AllowedMentions: &disgord.AllowedMentions{},
	}
	if msg.Embed != nil {
		mc.Embeds = []disgord.Embed{embed(*msg.Embed)}
	}
	if ephemeral {
		mc.Flags = disgord.MessageFlagEphemeral
	}
	return mc
}

func messageUpdate(msg notification.Message) disgord.MessageUpdate {
	content := msg.Content
	embeds := []disgord.Embed{}
	if msg.Embed != nil {
		embeds = append(embeds, embed(*msg.Embed))
	}
	return disgord.MessageUpdate{
		Content:         &content,
		Embeds:          &embeds,
		AllowedMentions: &disgord.AllowedMentions{},
	}
}

func embed(e notification.Embed) disgord.Embed {
	out := disgord.Embed{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &disgord.EmbedResource{URL: e.Thumbnail}
	}
	if e.Footer != "" {
		out.Footer = &disgord.EmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		inline := f.Inline
		out.Fields = append(out.Fields, disgord.EmbedField{Name: f.Name, Value: f.Value, Inline: &inline})
	}
	return out
}
