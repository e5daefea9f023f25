// Package filter provides the filter chain for enqueue request validation.
package filter

import (
	"context"
	"sort"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/domain/track"
)

// RequestKind distinguishes how tracks reach the queue.
type RequestKind int

const (
	RequestSingle   RequestKind = iota // One track picked by URL or search
	RequestPlaylist                    // Tracks loaded from a playlist
)

// String returns the string representation of the request kind.
func (k RequestKind) String() string {
	switch k {
	case RequestSingle:
		return "single"
	case RequestPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// TrackRequest represents a track request to be validated.
type TrackRequest struct {
	GuildID   snowflake.ID
	Requester track.Requester
	Kind      RequestKind
	Queued    []track.Track // Current track followed by the guild queue
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "user_queue_limit"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given request kind.
	AppliesTo(kind RequestKind) bool
	// Check performs the filter check.
	Check(ctx context.Context, req TrackRequest, t track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
