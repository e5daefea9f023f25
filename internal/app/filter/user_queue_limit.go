package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/guildbox/internal/domain/track"
)

// UserQueueLimitConfig represents the configuration for UserQueueLimitFilter.
type UserQueueLimitConfig struct {
	MaxTracks int `yaml:"max_tracks" mapstructure:"max_tracks" default:"5" validate:"gte=1"`
}

// UserQueueLimitFilter caps how many queued tracks one member may have waiting.
type UserQueueLimitFilter struct {
	config *UserQueueLimitConfig
}

func (f *UserQueueLimitFilter) Name() string {
	return "user_queue_limit_filter"
}

func (f *UserQueueLimitFilter) Description() string {
	return "Checks if the member already has too many tracks waiting to be played"
}

func (f *UserQueueLimitFilter) ReturnCodes() []string {
	return []string{"user_queue_limit"}
}

func (f *UserQueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config UserQueueLimitConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = &config
	return nil
}

func (f *UserQueueLimitFilter) AppliesTo(kind RequestKind) bool {
	// Queue limits only apply to single requests, a playlist is one request
	return kind == RequestSingle
}

func (f *UserQueueLimitFilter) Check(ctx context.Context, req TrackRequest, t track.Track) Result {
	if f.config == nil || req.Requester.ID == 0 {
		return Accept()
	}

	pending := 0
	for _, q := range req.Queued {
		if q.Requester.ID == req.Requester.ID {
			pending++
		}
	}
	if pending >= f.config.MaxTracks {
		return Reject("user_queue_limit")
	}
	return Accept()
}

func init() {
	Register("user_queue_limit_filter", func() Filter {
		return &UserQueueLimitFilter{}
	})
}
