// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord  DiscordConfig           `yaml:"discord"`
	Player   PlayerConfig            `yaml:"player"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Server   ServerConfig            `yaml:"server"`
	Messages MessagesConfig          `yaml:"messages"`
}

// DiscordConfig represents bot connection settings.
type DiscordConfig struct {
	Token string `yaml:"token" validate:"required"`
	// GuildID registers commands to a single guild (instant update) instead of globally.
	GuildID string `yaml:"guild_id" validate:"omitempty,numeric"`
}

// PlayerConfig represents per-guild player settings.
type PlayerConfig struct {
	IdleTimeoutSec     int     `yaml:"idle_timeout_sec" default:"60" validate:"gte=1"`
	QueueTimeoutSec    int     `yaml:"queue_timeout_sec" default:"300" validate:"gte=1"`
	LazyLoadThreshold  int     `yaml:"lazy_load_threshold" default:"3" validate:"gte=1"`
	PlaylistBatchSize  int     `yaml:"playlist_batch_size" default:"10" validate:"gte=1,lte=100"`
	DefaultVolume      float64 `yaml:"default_volume" default:"0.5" validate:"gte=0"`
	MaxVolume          float64 `yaml:"max_volume" default:"2.0" validate:"gt=0"`
	ResolverWorkers    int     `yaml:"resolver_workers" default:"2" validate:"gte=1,lte=16"`
	QueuePageSize      int     `yaml:"queue_page_size" default:"10" validate:"gte=1,lte=25"`
	TeardownTimeoutSec int     `yaml:"teardown_timeout_sec" default:"5" validate:"gte=1"`
}

// ResolverConfig represents yt-dlp resolver settings.
type ResolverConfig struct {
	BinaryPath   string  `yaml:"binary_path"`
	Proxy        string  `yaml:"proxy"`
	SearchPrefix string  `yaml:"search_prefix" default:"ytsearch" validate:"oneof=ytsearch ytmsearch scsearch"`
	RateLimit    float64 `yaml:"rate_limit" default:"2" validate:"gt=0"`
	Burst        int     `yaml:"burst" default:"4" validate:"gte=1"`
	TimeoutSec   int     `yaml:"timeout_sec" default:"30" validate:"gte=1"`
}

// ServerConfig represents status server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
	// Token protects /api/ routes when set.
	Token string      `yaml:"token"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"Something went wrong."`
	TrackNotFound         string `yaml:"track_not_found" default:"No results found."`
	Unsupported           string `yaml:"unsupported" default:"That link is not supported."`
	ResolveFailed         string `yaml:"resolve_failed" default:"Could not load that right now, try again later."`
	NotInVoice            string `yaml:"not_in_voice" default:"Join a voice channel first."`
	NothingPlaying        string `yaml:"nothing_playing" default:"Nothing is playing."`
	QueueEmpty            string `yaml:"queue_empty" default:"The queue is empty."`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already queued."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
	UserQueueLimit        string `yaml:"user_queue_limit" default:"You have too many tracks queued."`
	PlaylistRejected      string `yaml:"playlist_rejected" default:"None of the playlist tracks could be queued."`
	NotAccepting          string `yaml:"not_accepting" default:"Not taking requests right now, try again shortly."`
	OutOfRange            string `yaml:"out_of_range" default:"There is no track at that position."`
	GuildOnly             string `yaml:"guild_only" default:"This command only works in a server."`
	EmptyRoom             string `yaml:"empty_room" default:"Everyone left, I'll wait a minute before leaving."`
	IdleTimeout           string `yaml:"idle_timeout" default:"Left the voice channel because nobody was listening."`
	QueueTimeout          string `yaml:"queue_timeout" default:"Left the voice channel because the queue stayed empty."`
	Departure             string `yaml:"departure" default:"Stopped playback and left the voice channel."`

	// Command replies are fmt templates.
	Queued          string `yaml:"queued" default:"➕ Queued"`
	FieldDuration   string `yaml:"field_duration" default:"Duration"`
	FieldPosition   string `yaml:"field_position" default:"Position"`
	PlaylistQueued  string `yaml:"playlist_queued" default:"📥 Playlist queued"`
	PlaylistAdded   string `yaml:"playlist_added" default:"Queued **%d** tracks from **%s**."`
	PlaylistSkipped string `yaml:"playlist_skipped" default:"%d tracks were skipped."`
	PlaylistMore    string `yaml:"playlist_more" default:"More tracks will load as the queue plays."`
	Skipped         string `yaml:"skipped" default:"⏭️ Skipped **%s**"`
	Stopped         string `yaml:"stopped" default:"⏹️ Stopped."`
	Paused          string `yaml:"paused" default:"⏸️ Paused."`
	Resumed         string `yaml:"resumed" default:"▶️ Resumed."`
	VolumeSet       string `yaml:"volume_set" default:"🔊 Volume set to **%d%%** (max %d%%)."`
	RepeatSet       string `yaml:"repeat_set" default:"🔁 Repeat: **%s**"`
	ShuffleOn       string `yaml:"shuffle_on" default:"🔀 Shuffle on, reordered %d tracks."`
	ShuffleOff      string `yaml:"shuffle_off" default:"🔀 Shuffle off."`
	Removed         string `yaml:"removed" default:"🗑️ Removed **%s**"`
	Cleared         string `yaml:"cleared" default:"🧹 Cleared %d tracks."`
}

// SpotifyConfig represents Spotify API configuration.
// Spotify links are only resolved when client credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("STATUS_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("YOUTUBE_PROXY"); v != "" {
		c.Resolver.Proxy = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "unsupported":
		return c.Messages.Unsupported
	case "resolve_failed":
		return c.Messages.ResolveFailed
	case "not_in_voice":
		return c.Messages.NotInVoice
	case "nothing_playing":
		return c.Messages.NothingPlaying
	case "queue_empty":
		return c.Messages.QueueEmpty
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "user_queue_limit":
		return c.Messages.UserQueueLimit
	case "playlist_rejected":
		return c.Messages.PlaylistRejected
	case "not_accepting":
		return c.Messages.NotAccepting
	case "out_of_range":
		return c.Messages.OutOfRange
	case "guild_only":
		return c.Messages.GuildOnly
	case "empty_room":
		return c.Messages.EmptyRoom
	case "idle_timeout":
		return c.Messages.IdleTimeout
	case "queue_timeout":
		return c.Messages.QueueTimeout
	case "departure":
		return c.Messages.Departure
	case "queued":
		return c.Messages.Queued
	case "field_duration":
		return c.Messages.FieldDuration
	case "field_position":
		return c.Messages.FieldPosition
	case "playlist_queued":
		return c.Messages.PlaylistQueued
	case "playlist_added":
		return c.Messages.PlaylistAdded
	case "playlist_skipped":
		return c.Messages.PlaylistSkipped
	case "playlist_more":
		return c.Messages.PlaylistMore
	case "skipped":
		return c.Messages.Skipped
	case "stopped":
		return c.Messages.Stopped
	case "paused":
		return c.Messages.Paused
	case "resumed":
		return c.Messages.Resumed
	case "volume_set":
		return c.Messages.VolumeSet
	case "repeat_set":
		return c.Messages.RepeatSet
	case "shuffle_on":
		return c.Messages.ShuffleOn
	case "shuffle_off":
		return c.Messages.ShuffleOff
	case "removed":
		return c.Messages.Removed
	case "cleared":
		return c.Messages.Cleared
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Player.DefaultVolume > c.Player.MaxVolume {
		return errors.Newf("default_volume (%.2f) must not exceed max_volume (%.2f)", c.Player.DefaultVolume, c.Player.MaxVolume)
	}

	return nil
}

// IdleTimeout returns the empty-room grace period.
func (p PlayerConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutSec) * time.Second
}

// QueueTimeout returns how long an idle player waits for a track.
func (p PlayerConfig) QueueTimeout() time.Duration {
	return time.Duration(p.QueueTimeoutSec) * time.Second
}

// TeardownTimeout returns the bound for teardown waits.
func (p PlayerConfig) TeardownTimeout() time.Duration {
	return time.Duration(p.TeardownTimeoutSec) * time.Second
}

// Timeout returns the per-invocation resolver timeout.
func (r ResolverConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
