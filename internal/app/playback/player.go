package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Errors
var (
	ErrDestroyed   = errors.New("player destroyed")
	ErrNoConnector = errors.New("no voice connector configured")
)

// Config holds player configuration.
type Config struct {
	IdleTimeout       time.Duration // Grace period for an empty voice channel
	QueueTimeout      time.Duration // Maximum wait for a track while idle
	LazyLoadThreshold int           // Queue depth below which the next playlist batch is fetched
	PlaylistBatchSize int           // Tracks fetched per playlist batch
	DefaultVolume     float64       // Initial volume scalar
	MaxVolume         float64       // Upper volume bound
	TeardownTimeout   time.Duration // Bound for waiting on the loop and the disconnect during teardown
}

// DefaultConfig returns the stock player configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:       60 * time.Second,
		QueueTimeout:      300 * time.Second,
		LazyLoadThreshold: 3,
		PlaylistBatchSize: 10,
		DefaultVolume:     0.5,
		MaxVolume:         2.0,
		TeardownTimeout:   5 * time.Second,
	}
}

// Options carries the collaborators of a player.
type Options struct {
	GuildID       snowflake.ID
	ChannelID     snowflake.ID
	TextChannelID snowflake.ID
	Sink          VoiceSink
	Connector     Connector
	Resolver      BatchResolver
	Pool          *WorkerPool
	Notifier      Notifier
	OnRelease     func(*Player) // Called once during teardown to deregister the player
}

// Player drives playback for one guild. Its loop goroutine is the only code that
// moves between tracks; the control methods in controller.go mutate state under mu.
type Player struct {
	id            string
	guildID       snowflake.ID
	channelID     snowflake.ID
	textChannelID snowflake.ID
	config        Config
	connector     Connector
	notifier      Notifier
	onRelease     func(*Player)

	queue  *Queue
	cursor *PlaylistCursor
	loader *LazyLoader

	mu     sync.Mutex
	sink   VoiceSink
	state  State
	ps     PlayerState
	stream Stream // Active stream (nil between tracks)

	membersCh chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	loopDone chan struct{}

	destroying atomic.Bool
	destroyed  chan struct{}

	now func() time.Time
	log zerolog.Logger
}

// NewPlayer creates a player bound to opts.Sink. Call Start to run its loop.
func NewPlayer(config Config, opts Options) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	log := zlog.With().
		Str("guild_id", opts.GuildID.String()).
		Str("player_id", id).
		Logger()

	pool := opts.Pool
	if pool == nil {
		pool = NewWorkerPool(2)
	}

	p := &Player{
		id:            id,
		guildID:       opts.GuildID,
		channelID:     opts.ChannelID,
		textChannelID: opts.TextChannelID,
		config:        config,
		connector:     opts.Connector,
		notifier:      opts.Notifier,
		onRelease:     opts.OnRelease,
		queue:         NewQueue(),
		cursor:        NewPlaylistCursor(),
		sink:          opts.Sink,
		state:         StateIdle,
		ps:            PlayerState{Volume: clampVolume(config.DefaultVolume, config.MaxVolume)},
		membersCh:     make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		loopDone:      make(chan struct{}),
		destroyed:     make(chan struct{}),
		now:           time.Now,
		log:           log,
	}
	p.loader = NewLazyLoader(p.queue, p.cursor, opts.Resolver, pool, config.LazyLoadThreshold, config.PlaylistBatchSize, log)
	p.loader.onLoaded = p.onBatchLoaded
	return p
}

// ID returns the unique id of this player instance.
func (p *Player) ID() string { return p.id }

// GuildID returns the guild the player serves.
func (p *Player) GuildID() snowflake.ID { return p.guildID }

// ChannelID returns the bound voice channel.
func (p *Player) ChannelID() snowflake.ID { return p.channelID }

// TextChannelID returns the channel that receives notifications.
func (p *Player) TextChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

// SetTextChannel redirects notifications to channelID.
func (p *Player) SetTextChannel(channelID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textChannelID = channelID
}

// Done is closed once teardown has completed.
func (p *Player) Done() <-chan struct{} { return p.destroyed }

// Destroyed reports whether teardown has started.
func (p *Player) Destroyed() bool { return p.destroying.Load() }

// Start launches the playback loop. Calling it more than once has no effect.
func (p *Player) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run()
}

// Connected reports whether the voice sink is connected.
func (p *Player) Connected() bool {
	return p.currentSink().IsConnected()
}

// Reconnect replaces a dropped voice sink with a fresh connection to the same channel.
func (p *Player) Reconnect(ctx context.Context) error {
	if p.destroying.Load() {
		return ErrDestroyed
	}
	if p.connector == nil {
		return ErrNoConnector
	}

	sink, err := p.connector.Connect(ctx, p.guildID, p.channelID)
	if err != nil {
		return errors.Wrap(err, "failed to reconnect voice sink")
	}

	p.mu.Lock()
	if p.destroying.Load() {
		p.mu.Unlock()
		_ = sink.Disconnect(ctx)
		return ErrDestroyed
	}
	p.sink = sink
	p.mu.Unlock()

	p.log.Info().Msgf("player: voice sink reconnected: channel_id=%s", p.channelID)
	p.MembersChanged()
	return nil
}

// MembersChanged signals that voice channel membership may have changed.
func (p *Player) MembersChanged() {
	select {
	case p.membersCh <- struct{}{}:
	default:
	}
}

// Enqueue adds a track to the end of the queue.
func (p *Player) Enqueue(t track.Track) {
	p.queue.Enqueue(t)
}

// EnqueueMultiple adds tracks to the end of the queue.
func (p *Player) EnqueueMultiple(ts []track.Track) {
	p.queue.EnqueueMultiple(ts)
}

// OpenPlaylist makes the lazy loader continue sourceRef from offset as the queue drains.
func (p *Player) OpenPlaylist(sourceRef, title string, offset int, requester track.Requester) {
	p.cursor.Open(sourceRef, title, offset, requester)
	p.log.Info().Msgf("player: playlist opened: source=%s next_offset=%d", sourceRef, offset)
	// an idle loop is parked on the queue and will not reach the loader by itself
	p.loader.MaybeLoad(p.ctx)
}

func (p *Player) currentSink() VoiceSink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateDestroyed {
		p.state = s
	}
}

func (p *Player) emit(e Event) {
	if p.notifier == nil {
		return
	}
	e.GuildID = p.guildID
	p.notifier.Notify(p.TextChannelID(), e)
}

func (p *Player) onBatchLoaded(pos CursorPosition, appended int, err error) {
	if p.destroying.Load() {
		return
	}
	if err != nil && p.ctx.Err() == nil {
		p.emit(Event{Type: EventPlaylistFailed, Err: err})
		return
	}
	if appended > 0 {
		p.emit(Event{Type: EventPlaylistLoaded, Count: appended})
	}
}

// run is the playback loop.
func (p *Player) run() {
	defer close(p.loopDone)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Msgf("player: loop panicked: %v", r)
			p.destroy(context.Background(), false, true)
		}
	}()

	p.log.Info().Msgf("player: loop started: queue=%d", p.queue.Len())

	for {
		if p.ctx.Err() != nil || p.destroying.Load() {
			return
		}

		p.loader.MaybeLoad(p.ctx)

		sink := p.currentSink()
		if !sink.IsConnected() {
			p.log.Warn().Msg("player: voice sink disconnected, stopping")
			p.destroy(context.Background(), false, true)
			return
		}

		if !hasListeners(sink.ChannelMembers()) {
			if !p.waitForListeners() {
				return
			}
			continue
		}

		t, ok := p.nextTrack()
		if !ok {
			return
		}
		if !p.play(t) {
			return
		}
	}
}

// waitForListeners runs the empty-room grace period.
// It reports whether the loop should continue.
func (p *Player) waitForListeners() bool {
	p.setState(StateEmptyRoomGrace)
	p.log.Info().Msgf("player: voice channel empty, waiting: timeout=%v", p.config.IdleTimeout)
	p.emit(Event{Type: EventEmptyRoom})

	timer := time.NewTimer(p.config.IdleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return false
		case <-p.membersCh:
			if hasListeners(p.currentSink().ChannelMembers()) {
				p.log.Info().Msg("player: listener rejoined, continuing")
				p.setState(StateIdle)
				return true
			}
		case <-timer.C:
			sink := p.currentSink()
			if !sink.IsConnected() {
				p.log.Debug().Msg("player: disconnected during grace period")
				p.destroy(context.Background(), false, true)
				return false
			}
			if hasListeners(sink.ChannelMembers()) {
				p.setState(StateIdle)
				return true
			}
			p.log.Info().Msgf("player: still empty after %v, leaving", p.config.IdleTimeout)
			p.emit(Event{Type: EventIdleTimeout})
			p.destroy(context.Background(), false, true)
			return false
		}
	}
}

// nextTrack picks the track to play next, waiting on the queue when needed.
// It reports false when the loop must exit.
func (p *Player) nextTrack() (track.Track, bool) {
	p.mu.Lock()
	if p.ps.Repeat == RepeatOne && p.ps.Current != nil {
		t := *p.ps.Current
		p.mu.Unlock()
		return t, true
	}
	if p.ps.Repeat == RepeatAll && len(p.ps.History) > 0 && p.queue.Refill(p.ps.History) {
		p.log.Debug().Msgf("player: queue refilled from history: count=%d", len(p.ps.History))
		p.ps.History = nil
	}
	p.ps.Current = nil
	if p.state != StateDestroyed {
		p.state = StateIdle
	}
	p.mu.Unlock()

	t, err := p.queue.Dequeue(p.ctx, p.config.QueueTimeout)
	if err != nil {
		if errors.Is(err, ErrQueueTimeout) {
			p.log.Info().Msgf("player: queue empty for %v, leaving", p.config.QueueTimeout)
			p.emit(Event{Type: EventQueueTimeout})
			p.destroy(context.Background(), false, true)
		}
		return track.Track{}, false
	}

	p.mu.Lock()
	if p.ps.Repeat == RepeatAll {
		p.ps.History = append(p.ps.History, t)
	}
	p.mu.Unlock()
	return t, true
}

// play opens a fresh stream for t and waits for it to finish.
// It reports false when the loop must exit.
func (p *Player) play(t track.Track) bool {
	if p.destroying.Load() {
		return false
	}

	p.mu.Lock()
	sink := p.sink
	volume := p.ps.Volume
	p.mu.Unlock()

	stream, err := sink.Play(p.ctx, t.StreamURL, volume)
	if err != nil {
		if p.ctx.Err() != nil {
			return false
		}
		p.log.Error().Err(err).Msgf("player: failed to start stream: title=%s", t.Title)
		p.emit(Event{Type: EventPlaybackError, Track: &t, Err: err})
		p.mu.Lock()
		p.ps.finish(false)
		p.forgetLocked(t)
		p.mu.Unlock()
		return true
	}

	p.mu.Lock()
	p.ps.start(t, p.now())
	p.stream = stream
	if p.state != StateDestroyed {
		p.state = StatePlaying
	}
	p.mu.Unlock()

	p.log.Info().Msgf("player: track started: title=%s duration=%s requester=%s",
		t.Title, track.FormatDuration(t.Duration), t.Requester.Name)
	p.emit(Event{Type: EventTrackStarted, Track: &t})

	var playErr error
	select {
	case playErr = <-stream.Done():
	case <-p.ctx.Done():
		return false
	}

	if playErr != nil {
		p.log.Error().Err(playErr).Msgf("player: playback error: title=%s", t.Title)
		p.emit(Event{Type: EventPlaybackError, Track: &t, Err: playErr})
	} else {
		p.log.Debug().Msgf("player: track finished: title=%s", t.Title)
	}

	p.mu.Lock()
	p.stream = nil
	p.ps.finish(playErr == nil && p.ps.Repeat == RepeatOne)
	if playErr != nil {
		p.forgetLocked(t)
	}
	if p.state != StateDestroyed {
		p.state = StateIdle
	}
	p.mu.Unlock()
	return true
}

// forgetLocked drops a failed track from the repeat history so it is not replayed.
func (p *Player) forgetLocked(t track.Track) {
	n := len(p.ps.History)
	if n > 0 && p.ps.History[n-1].StreamURL == t.StreamURL {
		p.ps.History = p.ps.History[:n-1]
	}
}

// Destroy tears the player down. Only the first call performs the teardown;
// concurrent and later calls wait for it to complete (or for ctx to end).
func (p *Player) Destroy(ctx context.Context, notify bool) {
	p.destroy(ctx, notify, false)
}

func (p *Player) destroy(ctx context.Context, notify, fromLoop bool) {
	if !p.destroying.CompareAndSwap(false, true) {
		if !fromLoop {
			select {
			case <-p.destroyed:
			case <-ctx.Done():
			}
		}
		return
	}
	defer close(p.destroyed)

	p.log.Info().Msgf("player: teardown started: notify=%t queue=%d from_loop=%t", notify, p.queue.Len(), fromLoop)

	p.teardownStep("stop playback", func() error {
		sink := p.currentSink()
		if sink != nil && (sink.IsPlaying() || sink.IsPaused()) {
			sink.Stop()
		}
		return nil
	})

	p.teardownStep("clear state", func() error {
		removed := p.ClearQueue()
		p.mu.Lock()
		p.ps.finish(false)
		p.stream = nil
		p.mu.Unlock()
		p.log.Debug().Msgf("player: queue cleared: removed=%d", removed)
		return nil
	})

	p.teardownStep("stop loop", func() error {
		p.cancel()
		if fromLoop || !p.started.Load() {
			return nil
		}
		select {
		case <-p.loopDone:
			return nil
		case <-time.After(p.config.TeardownTimeout):
			return errors.Newf("loop did not exit within %v", p.config.TeardownTimeout)
		}
	})

	p.teardownStep("disconnect", func() error {
		sink := p.currentSink()
		if sink == nil || !sink.IsConnected() {
			return nil
		}
		dctx, cancel := context.WithTimeout(context.Background(), p.config.TeardownTimeout)
		defer cancel()
		return sink.Disconnect(dctx)
	})

	p.teardownStep("release", func() error {
		if p.onRelease != nil {
			p.onRelease(p)
		}
		return nil
	})

	if notify {
		p.teardownStep("notify", func() error {
			p.emit(Event{Type: EventDeparture})
			return nil
		})
	}

	p.mu.Lock()
	p.state = StateDestroyed
	p.mu.Unlock()

	p.log.Info().Msg("player: teardown completed")
}

// teardownStep runs one isolated teardown step; failures and panics are logged only.
func (p *Player) teardownStep(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Msgf("player: teardown step panicked: step=%s panic=%v", name, r)
		}
	}()
	if err := fn(); err != nil {
		p.log.Warn().Err(err).Msgf("player: teardown step failed: step=%s", name)
	}
}
