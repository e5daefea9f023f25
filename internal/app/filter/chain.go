package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromSettings builds a chain of the enabled registered filters in name order.
// Filters whose settings fail validation are logged and left out.
func NewChainFromSettings(enabled func(name string) bool, settings func(name string) map[string]any) *Chain {
	c := NewChain()
	for _, name := range Names() {
		if !enabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(settings(name)); err != nil {
			zlog.Error().Msgf("filter: invalid config, filter disabled: name=%s err=%v", name, err)
			continue
		}
		c.Add(f)
		zlog.Info().Msgf("filter: enabled: name=%s", name)
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// Filters are only applied if they declare they apply to the request kind.
func (c *Chain) Execute(ctx context.Context, req TrackRequest, t track.Track) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(req.Kind) {
			continue
		}

		result := f.Check(ctx, req, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Partition checks every track of a playlist request and splits the accepted ones from the rejection count.
// Accepted tracks are added to the queued view so later tracks are checked against them.
func (c *Chain) Partition(ctx context.Context, req TrackRequest, ts []track.Track) ([]track.Track, int) {
	accepted := make([]track.Track, 0, len(ts))
	rejected := 0
	for _, t := range ts {
		if result := c.Execute(ctx, req, t); !result.Accepted {
			rejected++
			continue
		}
		accepted = append(accepted, t)
		req.Queued = append(req.Queued, t)
	}
	return accepted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
