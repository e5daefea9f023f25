// Package session provides the session manager.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/session/registry"
	"github.com/osa030/guildbox/internal/app/session/state"
	"github.com/osa030/guildbox/internal/domain/playlist"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

// Errors
var (
	ErrNotFound     = errors.New("no results")
	ErrUnsupported  = errors.New("unsupported source")
	ErrTransient    = errors.New("temporary resolver failure")
	ErrNotInVoice   = errors.New("requester is not in a voice channel")
	ErrNoPlayer     = errors.New("nothing is playing in this guild")
	ErrNotAccepting = errors.New("not accepting requests")
)

// Resolution is what a query resolved to: exactly one of Track and Playlist is set.
type Resolution struct {
	Track    *track.Track
	Playlist *playlist.Playlist
}

// Resolver turns user queries into playable descriptors.
type Resolver interface {
	playback.BatchResolver
	// Resolve resolves a URL or search query. Failures are marked with
	// ErrNotFound, ErrUnsupported or ErrTransient.
	Resolve(ctx context.Context, query string) (Resolution, error)
}

// PlayRequest is a play command issued in a guild.
type PlayRequest struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID // Requester's current voice channel (0 when not in voice)
	TextChannelID  snowflake.ID
	Requester      track.Requester
	Query          string
}

// PlayResult describes what a play request queued.
type PlayResult struct {
	Accepted bool
	Code     string // Rejection code when not accepted

	Track    *track.Track // Set for single-track requests
	Position int          // 1-based queue position of Track

	Playlist *playlist.Playlist // Set for playlist requests
	Added    int                // Playlist tracks queued now
	Rejected int                // Playlist tracks rejected by filters
	HasMore  bool               // Remaining playlist tracks load automatically

	Created bool // A new player joined the voice channel
}

// Manager is the command entry point shared by every guild.
type Manager struct {
	config *config.Config

	stateMgr     *state.Manager
	registry     *registry.Registry
	resolver     Resolver
	filterChain  *filter.Chain
	notification *notification.Manager
	pool         *playback.WorkerPool

	botID atomic.Uint64
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, resolver Resolver, connector playback.Connector, sender notification.Sender) *Manager {
	pool := playback.NewWorkerPool(cfg.Player.ResolverWorkers)
	notifier := notification.NewManager(sender, cfg.GetMessage)

	m := &Manager{
		config:       cfg,
		stateMgr:     state.New(uuid.New().String()),
		resolver:     resolver,
		notification: notifier,
		pool:         pool,
		filterChain:  filter.NewChainFromSettings(cfg.IsFilterEnabled, cfg.GetFilterSettings),
	}
	m.registry = registry.New(PlayerConfig(cfg.Player), registry.Options{
		Connector: connector,
		Resolver:  resolver,
		Pool:      pool,
		Notifier:  notifier,
	})
	return m
}

// PlayerConfig converts the player section of the configuration.
func PlayerConfig(c config.PlayerConfig) playback.Config {
	return playback.Config{
		IdleTimeout:       c.IdleTimeout(),
		QueueTimeout:      c.QueueTimeout(),
		LazyLoadThreshold: c.LazyLoadThreshold,
		PlaylistBatchSize: c.PlaylistBatchSize,
		DefaultVolume:     c.DefaultVolume,
		MaxVolume:         c.MaxVolume,
		TeardownTimeout:   c.TeardownTimeout(),
	}
}

// Ready records the bot identity once the gateway is up and starts accepting requests.
func (m *Manager) Ready(botID snowflake.ID, botName string) {
	m.botID.Store(uint64(botID))
	m.stateMgr.MarkReady(botName, time.Now())
	zlog.Info().Msgf("session: ready: bot=%s bot_id=%s", botName, botID)
}

// Play resolves req.Query, runs the enqueue filters and queues the result,
// joining the requester's voice channel when the guild has no player yet.
// Resolution failures are returned before any player is created.
func (m *Manager) Play(ctx context.Context, req PlayRequest) (PlayResult, error) {
	if !m.stateMgr.CanAcceptRequests() {
		return PlayResult{}, ErrNotAccepting
	}
	if req.VoiceChannelID == 0 {
		return PlayResult{}, ErrNotInVoice
	}

	res, err := m.resolver.Resolve(ctx, req.Query)
	if err != nil {
		zlog.Warn().Err(err).Msgf("session: resolve failed: guild_id=%s query=%s", req.GuildID, req.Query)
		return PlayResult{}, err
	}

	switch {
	case res.Track != nil:
		return m.playTrack(ctx, req, *res.Track)
	case res.Playlist != nil:
		return m.playPlaylist(ctx, req, res.Playlist)
	default:
		return PlayResult{}, errors.Mark(errors.Newf("empty resolution for %q", req.Query), ErrNotFound)
	}
}

func (m *Manager) playTrack(ctx context.Context, req PlayRequest, t track.Track) (PlayResult, error) {
	t = t.WithRequester(req.Requester)

	result := m.filterChain.Execute(ctx, m.trackRequest(req, filter.RequestSingle), t)
	zlog.Info().Msgf("session: track request: guild_id=%s requester=%s title=%s result=%t code=%s",
		req.GuildID, req.Requester.Name, t.Title, result.Accepted, result.Code)
	if !result.Accepted {
		return PlayResult{Code: result.Code}, nil
	}

	p, created, err := m.registry.GetOrCreate(ctx, req.GuildID, req.VoiceChannelID, req.TextChannelID)
	if err != nil {
		return PlayResult{}, err
	}
	p.Enqueue(t)

	return PlayResult{
		Accepted: true,
		Track:    &t,
		Position: p.QueueLen(),
		Created:  created,
	}, nil
}

func (m *Manager) playPlaylist(ctx context.Context, req PlayRequest, pl *playlist.Playlist) (PlayResult, error) {
	tracks := pl.ValidTracks()
	if len(tracks) == 0 {
		return PlayResult{Code: "track_not_found"}, nil
	}
	for i := range tracks {
		tracks[i] = tracks[i].WithRequester(req.Requester)
		if tracks[i].SourcePlaylist == "" {
			tracks[i].SourcePlaylist = pl.Title
		}
	}

	accepted, rejected := m.filterChain.Partition(ctx, m.trackRequest(req, filter.RequestPlaylist), tracks)
	zlog.Info().Msgf("session: playlist request: guild_id=%s requester=%s title=%s accepted=%d rejected=%d has_more=%t",
		req.GuildID, req.Requester.Name, pl.Title, len(accepted), rejected, pl.HasMore())
	if len(accepted) == 0 {
		return PlayResult{Code: "playlist_rejected", Rejected: rejected}, nil
	}

	p, created, err := m.registry.GetOrCreate(ctx, req.GuildID, req.VoiceChannelID, req.TextChannelID)
	if err != nil {
		return PlayResult{}, err
	}
	p.EnqueueMultiple(accepted)
	if pl.HasMore() {
		p.OpenPlaylist(pl.SourceRef, pl.Title, pl.NextStartOffset, req.Requester)
	}

	return PlayResult{
		Accepted: true,
		Playlist: pl,
		Added:    len(accepted),
		Rejected: rejected,
		HasMore:  pl.HasMore(),
		Created:  created,
	}, nil
}

// trackRequest builds the filter view of req: the current track followed by the queue.
func (m *Manager) trackRequest(req PlayRequest, kind filter.RequestKind) filter.TrackRequest {
	fr := filter.TrackRequest{
		GuildID:   req.GuildID,
		Requester: req.Requester,
		Kind:      kind,
	}
	if p := m.registry.Get(req.GuildID); p != nil {
		if cur, _, ok := p.NowPlaying(); ok {
			fr.Queued = append(fr.Queued, cur)
		}
		fr.Queued = append(fr.Queued, p.Queue()...)
	}
	return fr
}

// Player returns the live player of guildID.
func (m *Manager) Player(guildID snowflake.ID) (*playback.Player, error) {
	p := m.registry.Get(guildID)
	if p == nil {
		return nil, ErrNoPlayer
	}
	return p, nil
}

// Stop tears down the player of guildID and posts the departure notice.
func (m *Manager) Stop(ctx context.Context, guildID snowflake.ID) error {
	if !m.registry.Destroy(ctx, guildID, true) {
		return ErrNoPlayer
	}
	zlog.Info().Msgf("session: stopped: guild_id=%s", guildID)
	return nil
}

// Shuffle reorders the queue and flips the shuffle display flag.
func (m *Manager) Shuffle(guildID snowflake.ID) (on bool, count int, err error) {
	p, err := m.Player(guildID)
	if err != nil {
		return false, 0, err
	}
	on = p.ToggleShuffle()
	if on {
		count = p.ShuffleQueue()
	}
	return on, count, nil
}

// SetVolumePercent sets the volume from a whole percentage.
// It returns the applied percentage and the ceiling it was clamped to.
func (m *Manager) SetVolumePercent(guildID snowflake.ID, percent int) (applied, ceiling int, err error) {
	p, err := m.Player(guildID)
	if err != nil {
		return 0, 0, err
	}
	v := p.SetVolume(float64(percent) / 100)
	return notification.VolumePercent(v), notification.VolumePercent(p.MaxVolume()), nil
}

// HandleVoiceStateUpdate reacts to a user moving between voice channels.
// The bot leaving its channel tears the player down without a notice; anyone else
// entering or leaving the player's channel wakes the empty-room grace wait.
func (m *Manager) HandleVoiceStateUpdate(guildID, userID, oldChannelID, newChannelID snowflake.ID) {
	p := m.registry.Get(guildID)
	if p == nil {
		return
	}

	if userID == snowflake.ID(m.botID.Load()) {
		if oldChannelID != 0 && newChannelID == 0 {
			zlog.Info().Msgf("session: bot left voice channel: guild_id=%s channel_id=%s", guildID, oldChannelID)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*m.config.Player.TeardownTimeout())
				defer cancel()
				p.Destroy(ctx, false)
			}()
		}
		return
	}

	if oldChannelID == p.ChannelID() || newChannelID == p.ChannelID() {
		p.MembersChanged()
	}
}

// Sessions returns a snapshot of every live player.
func (m *Manager) Sessions() []playback.Status {
	players := m.registry.All()
	statuses := make([]playback.Status, 0, len(players))
	for _, p := range players {
		statuses = append(statuses, p.Status())
	}
	return statuses
}

// Info returns the service state.
func (m *Manager) Info() state.Info {
	return m.stateMgr.BuildInfo()
}

// CanAcceptRequests reports whether play requests are currently taken.
func (m *Manager) CanAcceptRequests() bool {
	return m.stateMgr.CanAcceptRequests()
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Filters returns the enabled enqueue filters.
func (m *Manager) Filters() []filter.Filter {
	return m.filterChain.Filters()
}

// Shutdown stops accepting requests and tears down every player.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stateMgr.StopAccepting()
	m.stateMgr.SetPhase(state.PhaseShuttingDown)
	zlog.Info().Msgf("session: shutting down: players=%d", m.registry.Count())

	m.registry.DestroyAll(ctx)
	m.pool.Wait()
	m.notification.Close()

	m.stateMgr.SetPhase(state.PhaseTerminated)
	zlog.Info().Msg("session: terminated")
}

// ErrorCode maps an error returned by the manager to a message code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "track_not_found"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrTransient):
		return "resolve_failed"
	case errors.Is(err, ErrNotInVoice):
		return "not_in_voice"
	case errors.Is(err, ErrNoPlayer):
		return "nothing_playing"
	case errors.Is(err, ErrNotAccepting):
		return "not_accepting"
	case errors.Is(err, playback.ErrOutOfRange):
		return "out_of_range"
	default:
		return "default_error"
	}
}
