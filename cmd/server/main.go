// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/guildbox/internal/api/status"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/discord"
	"github.com/osa030/guildbox/internal/infra/logger"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("guildbox-server", "guildbox Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
	// register-commands command
	registerCmd = app.Command("register-commands", "Register slash commands and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == registerCmd.FullCommand() {
		if err := registerCommands(cfg); err != nil {
			zlog.Error().Msgf("Command registration failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := validateFilterConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	ctx := context.Background()
	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		return err
	}

	b, err := discord.New(cfg.Discord)
	if err != nil {
		return errors.Wrap(err, "failed to create discord client")
	}

	sessionMgr := session.NewManager(cfg, resolver, b.Connector(), b.Sender())
	b.Attach(sessionMgr, discord.NewCommands(sessionMgr, cfg.GetMessage, cfg.Player.QueuePageSize))

	if err := retry(ctx, "gateway connect", func() error { return b.Open(ctx) }); err != nil {
		return errors.Wrap(err, "failed to open gateway")
	}

	statusService := status.NewService(sessionMgr, cfg.Server.Token)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(statusService.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting status server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "status server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Players first so departure notices still reach the text channels
	sessionMgr.Shutdown(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	b.Close(shutdownCtx)

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// newResolver builds the resolver chain: Spotify links first when credentials
// are configured, yt-dlp for everything else.
func newResolver(ctx context.Context, cfg *config.Config) (session.Resolver, error) {
	base := ytdlp.New(cfg.Resolver, cfg.Player.PlaylistBatchSize)
	if !cfg.Spotify.Enabled() {
		zlog.Info().Msg("Spotify credentials not configured, Spotify links are unsupported")
		return base, nil
	}

	var client *spotify.Client
	err := retry(ctx, "spotify login", func() error {
		var err error
		client, err = spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Spotify client")
	}
	return spotify.NewResolver(client, base, base, cfg.Player.PlaylistBatchSize), nil
}

// registerCommands publishes the slash command definitions and exits.
func registerCommands(cfg *config.Config) error {
	b, err := discord.New(cfg.Discord)
	if err != nil {
		return errors.Wrap(err, "failed to create discord client")
	}
	b.Attach(nil, discord.NewCommands(nil, cfg.GetMessage, cfg.Player.QueuePageSize))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.RegisterCommands(ctx); err != nil {
		return err
	}
	zlog.Info().Msg("Slash commands registered")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()

	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return errors.Newf("unknown filter: %s", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return errors.Wrapf(err, "filter %s", filterName)
		}
	}

	return nil
}

// retry runs fn with exponential backoff to ride out transient errors during startup.
func retry(ctx context.Context, name string, fn func() error) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(1<<uint(i-1))
			zlog.Info().Msgf("Retrying %s in %v...", name, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			zlog.Warn().Msgf("Failed %s (attempt %d/%d): %v", name, i+1, maxRetries, err)
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "failed after %d attempts", maxRetries)
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
