// Package main provides the status CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/guildbox/internal/api/status"
	"github.com/osa030/guildbox/internal/app/notification"
)

var (
	app    = kingpin.New("guildbox-statuscli", "guildbox status client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Status token (or set STATUS_TOKEN env)").Envar("STATUS_TOKEN").String()

	// info command
	infoCmd = app.Command("info", "Show service state")

	// sessions command
	sessionsCmd = app.Command("sessions", "List active guild sessions").Default()

	// watch command
	watchCmd = app.Command("watch", "Print player notifications as they happen")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := status.NewClient(nil, *server, *token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case infoCmd.FullCommand():
		err = info(ctx, client)
	case sessionsCmd.FullCommand():
		err = sessions(ctx, client)
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func info(ctx context.Context, client *status.Client) error {
	i, err := client.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\n=== SERVICE STATE ===")
	fmt.Printf("Instance ID: %s\n", i.InstanceID)
	fmt.Printf("Phase: %s\n", i.Phase)
	fmt.Printf("Accepting Requests: %v\n", i.Accepting)
	if i.BotUser != "" {
		fmt.Printf("Bot User: %s\n", i.BotUser)
	}
	fmt.Printf("Started At: %s\n", i.StartedAt.Format(time.RFC3339))
	if !i.ReadyAt.IsZero() {
		fmt.Printf("Ready At: %s\n", i.ReadyAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

func sessions(ctx context.Context, client *status.Client) error {
	list, err := client.Sessions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Sessions (%d):\n", len(list))
	for _, s := range list {
		printSession(s)
	}
	return nil
}

func printSession(s status.SessionView) {
	fmt.Printf("\nGuild %s (player %s)\n", s.GuildID, s.PlayerID)
	fmt.Printf("  State: %s\n", formatState(s.State))
	fmt.Printf("  Voice Channel: %s\n", s.ChannelID)
	fmt.Printf("  Volume: %d%%  Repeat: %s  Shuffle: %v\n", s.VolumePercent, s.Repeat, s.Shuffle)
	fmt.Printf("  Queue: %d tracks (%s)\n", s.QueueLength, formatSeconds(s.QueueDurationSec))
	if s.Current != nil {
		fmt.Println("  Currently Playing:")
		fmt.Printf("    Title: %s\n", s.Current.Title)
		fmt.Printf("    URL: %s\n", s.Current.URL)
		fmt.Printf("    Position: %s / %s\n", formatSeconds(s.PositionSec), formatSeconds(s.Current.DurationSec))
		fmt.Printf("    Requested by: %s\n", s.Current.Requester)
		if s.Current.Playlist != "" {
			fmt.Printf("    Playlist: %s\n", s.Current.Playlist)
		}
	} else {
		fmt.Println("  No track currently playing")
	}
	if s.Playlist != nil {
		fmt.Printf("  Loading Playlist: %s (next from #%d)\n", s.Playlist.Title, s.Playlist.NextOffset)
	}
}

func watch(ctx context.Context, client *status.Client) error {
	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")
	return client.Subscribe(ctx, printNotification)
}

func printNotification(n notification.Notification) {
	fmt.Printf("\n[Sequence: %d] %s guild=%s\n", n.SequenceNo, n.Time.Format(time.TimeOnly), n.GuildID)
	fmt.Printf("=== %s ===\n", n.Type)
	if n.Text != "" {
		fmt.Println(n.Text)
	}
}

func formatState(state string) string {
	switch state {
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "idle":
		return "⏳ Idle (waiting for tracks)"
	case "empty_room_grace":
		return "👋 Empty room (waiting for listeners)"
	case "destroyed":
		return "⏹  Destroyed"
	default:
		return "❓ Unknown"
	}
}

func formatSeconds(sec int64) string {
	return (time.Duration(sec) * time.Second).String()
}
