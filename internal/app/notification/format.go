package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Embed colors
const (
	ColorInfo    = 0x5865F2
	ColorSuccess = 0x57F287
	ColorWarning = 0xFEE75C
	ColorError   = 0xED4245
)

const progressWidth = 16

// Message is a platform-neutral chat message.
type Message struct {
	Content string
	Embed   *Embed
}

// Embed is a rich message block.
type Embed struct {
	Title       string
	URL         string
	Description string
	Thumbnail   string
	Footer      string
	Color       int
	Fields      []Field
}

// Field is a named embed value.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Text returns a plain-text rendering of the message.
func (m Message) Text() string {
	if m.Embed == nil {
		return m.Content
	}
	parts := make([]string, 0, 3)
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	if m.Embed.Title != "" {
		parts = append(parts, m.Embed.Title)
	}
	if m.Embed.Description != "" {
		parts = append(parts, m.Embed.Description)
	}
	return strings.Join(parts, "\n")
}

// Format renders a player event.
func Format(e playback.Event, messages func(code string) string) Message {
	switch e.Type {
	case playback.EventTrackStarted:
		if e.Track == nil {
			return Message{}
		}
		return TrackStarted(*e.Track)
	case playback.EventPlaybackError:
		title := "the current track"
		if e.Track != nil {
			title = "**" + track.Truncate(e.Track.Title, 80) + "**"
		}
		return Message{Embed: &Embed{
			Description: fmt.Sprintf("⚠️ Could not play %s, skipping.", title),
			Color:       ColorError,
		}}
	case playback.EventPlaylistLoaded:
		return Message{Embed: &Embed{
			Description: fmt.Sprintf("📥 Loaded %d more tracks from the playlist.", e.Count),
			Color:       ColorInfo,
		}}
	case playback.EventPlaylistFailed:
		return Message{Embed: &Embed{
			Description: "⚠️ Stopped loading the rest of the playlist.",
			Color:       ColorWarning,
		}}
	default:
		return Message{Content: messages(e.Type.String())}
	}
}

// TrackStarted renders the announcement for a track that just started.
func TrackStarted(t track.Track) Message {
	embed := &Embed{
		Title:     "🎶 Now Playing",
		URL:       t.WebpageURL,
		Thumbnail: t.Thumbnail,
		Color:     ColorSuccess,
		Description: fmt.Sprintf("[%s](%s)",
			track.Truncate(t.Title, 100), t.WebpageURL),
		Fields: []Field{
			{Name: "Duration", Value: track.FormatDuration(t.Duration), Inline: true},
			{Name: "Requested by", Value: t.Requester.Mention(), Inline: true},
		},
	}
	if t.SourcePlaylist != "" {
		embed.Footer = "From playlist: " + track.Truncate(t.SourcePlaylist, 60)
	}
	return Message{Embed: embed}
}

// NowPlaying renders the current track with an elapsed/total progress bar.
func NowPlaying(s playback.Status) Message {
	if s.Current == nil {
		return Message{}
	}
	t := *s.Current
	state := "▶️"
	if s.State == playback.StatePaused {
		state = "⏸️"
	}
	desc := fmt.Sprintf("[%s](%s)\n%s %s `%s / %s`",
		track.Truncate(t.Title, 100), t.WebpageURL,
		state, track.ProgressBar(s.Position, t.Duration, progressWidth),
		track.FormatDuration(s.Position), track.FormatDuration(t.Duration))

	return Message{Embed: &Embed{
		Title:       "🎶 Now Playing",
		URL:         t.WebpageURL,
		Thumbnail:   t.Thumbnail,
		Description: desc,
		Color:       ColorInfo,
		Fields: []Field{
			{Name: "Requested by", Value: t.Requester.Mention(), Inline: true},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", VolumePercent(s.Volume)), Inline: true},
			{Name: "Repeat", Value: s.Repeat.String(), Inline: true},
		},
	}}
}

// QueuePage renders one page of the queue. page is 1-based and clamped to the valid range.
func QueuePage(s playback.Status, queue []track.Track, page, pageSize int) Message {
	if pageSize < 1 {
		pageSize = 10
	}
	pages := (len(queue) + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	var b strings.Builder
	if s.Current != nil {
		fmt.Fprintf(&b, "**Now:** [%s](%s) `%s`\n\n",
			track.Truncate(s.Current.Title, 60), s.Current.WebpageURL, track.FormatDuration(s.Current.Duration))
	}
	if len(queue) == 0 {
		b.WriteString("The queue is empty.")
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(queue))
	for i := start; i < end; i++ {
		t := queue[i]
		fmt.Fprintf(&b, "`%d.` %s `%s` %s\n",
			i+1, track.Truncate(t.Title, 60), track.FormatDuration(t.Duration), t.Requester.Mention())
	}

	footer := fmt.Sprintf("Page %d/%d | %d tracks | %s total | repeat: %s",
		page, pages, len(queue), track.FormatDuration(queueDuration(queue)), s.Repeat)
	if s.Shuffle {
		footer += " | shuffle"
	}
	if s.Playlist != nil {
		footer += " | loading more from " + track.Truncate(s.Playlist.Title, 30)
	}

	return Message{Embed: &Embed{
		Title:       "📜 Queue",
		Description: strings.TrimRight(b.String(), "\n"),
		Footer:      footer,
		Color:       ColorInfo,
	}}
}

// VolumePercent converts a volume scalar to a whole percentage.
func VolumePercent(v float64) int {
	return int(v*100 + 0.5)
}

func queueDuration(ts []track.Track) time.Duration {
	var total time.Duration
	for _, t := range ts {
		total += t.Duration
	}
	return total
}
