// Package registry maps guilds to their single live player.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

// Errors
var (
	ErrConnectFailed = errors.New("failed to connect to voice channel")
)

// Options carries the collaborators shared by every player the registry creates.
type Options struct {
	Connector playback.Connector
	Resolver  playback.BatchResolver
	Pool      *playback.WorkerPool
	Notifier  playback.Notifier
}

// Registry owns the guild to player mapping.
type Registry struct {
	mu      sync.RWMutex
	players map[snowflake.ID]*playback.Player

	// createMu serializes GetOrCreate so concurrent plays in one guild build a single player.
	createMu sync.Mutex

	config    playback.Config
	connector playback.Connector
	resolver  playback.BatchResolver
	pool      *playback.WorkerPool
	notifier  playback.Notifier
}

// New creates a registry.
func New(config playback.Config, opts Options) *Registry {
	pool := opts.Pool
	if pool == nil {
		pool = playback.NewWorkerPool(2)
	}
	return &Registry{
		players:   make(map[snowflake.ID]*playback.Player),
		config:    config,
		connector: opts.Connector,
		resolver:  opts.Resolver,
		pool:      pool,
		notifier:  opts.Notifier,
	}
}

// GetOrCreate returns the live player of guildID, reconnecting it when its sink dropped,
// or connects a new sink to channelID and starts a fresh player. created reports the latter.
func (r *Registry) GetOrCreate(ctx context.Context, guildID, channelID, textChannelID snowflake.ID) (p *playback.Player, created bool, err error) {
	r.createMu.Lock()
	defer r.createMu.Unlock()

	if p := r.Get(guildID); p != nil {
		if p.Connected() {
			p.SetTextChannel(textChannelID)
			return p, false, nil
		}

		err := p.Reconnect(ctx)
		switch {
		case err == nil:
			p.SetTextChannel(textChannelID)
			return p, false, nil
		case errors.Is(err, playback.ErrDestroyed):
			zlog.Debug().Msgf("registry: stale player replaced: guild_id=%s player_id=%s", guildID, p.ID())
		default:
			zlog.Warn().Err(err).Msgf("registry: reconnect failed: guild_id=%s player_id=%s", guildID, p.ID())
			p.Destroy(ctx, false)
			return nil, false, errors.Mark(err, ErrConnectFailed)
		}
	}

	if r.connector == nil {
		return nil, false, playback.ErrNoConnector
	}
	if err := r.awaitTeardown(ctx, guildID); err != nil {
		return nil, false, err
	}
	sink, err := r.connector.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, false, errors.Mark(errors.Wrapf(err, "guild %s", guildID), ErrConnectFailed)
	}

	p = playback.NewPlayer(r.config, playback.Options{
		GuildID:       guildID,
		ChannelID:     channelID,
		TextChannelID: textChannelID,
		Sink:          sink,
		Connector:     r.connector,
		Resolver:      r.resolver,
		Pool:          r.pool,
		Notifier:      r.notifier,
		OnRelease:     r.release,
	})

	r.mu.Lock()
	r.players[guildID] = p
	r.mu.Unlock()

	p.Start()
	zlog.Info().Msgf("registry: player created: guild_id=%s channel_id=%s player_id=%s", guildID, channelID, p.ID())
	return p, true, nil
}

// Get returns the live player of guildID, or nil. Players that are tearing down count as missing.
func (r *Registry) Get(guildID snowflake.ID) *playback.Player {
	r.mu.RLock()
	p := r.players[guildID]
	r.mu.RUnlock()
	if p == nil || p.Destroyed() {
		return nil
	}
	return p
}

// All returns the live players ordered by guild id.
func (r *Registry) All() []*playback.Player {
	r.mu.RLock()
	players := make([]*playback.Player, 0, len(r.players))
	for _, p := range r.players {
		if !p.Destroyed() {
			players = append(players, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool {
		return players[i].GuildID() < players[j].GuildID()
	})
	return players
}

// Count returns the number of live players.
func (r *Registry) Count() int {
	return len(r.All())
}

// Destroy tears down the player of guildID. It reports whether one was found.
func (r *Registry) Destroy(ctx context.Context, guildID snowflake.ID, notify bool) bool {
	p := r.Get(guildID)
	if p == nil {
		return false
	}
	p.Destroy(ctx, notify)
	return true
}

// DestroyAll tears down every player concurrently and waits for them.
func (r *Registry) DestroyAll(ctx context.Context) {
	players := r.All()
	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p *playback.Player) {
			defer wg.Done()
			p.Destroy(ctx, false)
		}(p)
	}
	wg.Wait()
	zlog.Info().Msgf("registry: all players destroyed: count=%d", len(players))
}

// awaitTeardown blocks while a destroyed player of guildID still holds the voice connection.
func (r *Registry) awaitTeardown(ctx context.Context, guildID snowflake.ID) error {
	r.mu.RLock()
	old := r.players[guildID]
	r.mu.RUnlock()
	if old == nil {
		return nil
	}

	zlog.Debug().Msgf("registry: waiting for teardown: guild_id=%s player_id=%s", guildID, old.ID())
	select {
	case <-old.Done():
		return nil
	case <-ctx.Done():
		return errors.Mark(errors.Wrapf(ctx.Err(), "guild %s: previous player still tearing down", guildID), ErrConnectFailed)
	}
}

// release removes p, but only while it is still the registered player of its guild.
func (r *Registry) release(p *playback.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.players[p.GuildID()]; ok && cur == p {
		delete(r.players, p.GuildID())
		zlog.Debug().Msgf("registry: player released: guild_id=%s player_id=%s", p.GuildID(), p.ID())
	}
}
