package filter

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/track"
)

func queuedBy(id uint64, n int) []track.Track {
	ts := make([]track.Track, 0, n)
	for i := 0; i < n; i++ {
		ts = append(ts, track.Track{Title: "t", Requester: track.Requester{ID: snowflake.ID(id)}})
	}
	return ts
}

func TestUserQueueLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		maxTracks    int
		queued       []track.Track
		requesterID  uint64
		wantAccepted bool
	}{
		{
			name:         "no pending tracks",
			maxTracks:    2,
			requesterID:  1,
			wantAccepted: true,
		},
		{
			name:         "below limit",
			maxTracks:    2,
			queued:       queuedBy(1, 1),
			requesterID:  1,
			wantAccepted: true,
		},
		{
			name:         "at limit",
			maxTracks:    2,
			queued:       queuedBy(1, 2),
			requesterID:  1,
			wantAccepted: false,
		},
		{
			name:         "other members do not count",
			maxTracks:    2,
			queued:       queuedBy(2, 5),
			requesterID:  1,
			wantAccepted: true,
		},
		{
			name:         "anonymous requester",
			maxTracks:    1,
			queued:       queuedBy(0, 3),
			requesterID:  0,
			wantAccepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := &UserQueueLimitFilter{config: &UserQueueLimitConfig{MaxTracks: tt.maxTracks}}
			req := TrackRequest{
				Requester: track.Requester{ID: snowflake.ID(tt.requesterID)},
				Kind:      RequestSingle,
				Queued:    tt.queued,
			}

			result := filter.Check(context.Background(), req, track.Track{Title: "new"})

			assert.Equal(t, tt.wantAccepted, result.Accepted,
				"UserQueueLimitFilter.Check() accepted status mismatch")
			if !tt.wantAccepted {
				assert.Equal(t, "user_queue_limit", result.Code)
			}
		})
	}
}

func TestUserQueueLimitFilter_ValidateConfig(t *testing.T) {
	f := &UserQueueLimitFilter{}
	require.NoError(t, f.ValidateConfig(nil))
	assert.Equal(t, 5, f.config.MaxTracks)

	require.NoError(t, f.ValidateConfig(map[string]any{"max_tracks": 3}))
	assert.Equal(t, 3, f.config.MaxTracks)

	assert.Error(t, f.ValidateConfig(map[string]any{"max_tracks": -2}))
	assert.False(t, f.AppliesTo(RequestPlaylist))
}

type rejectAll struct{ kind RequestKind }

func (r rejectAll) Name() string                        { return "reject_all" }
func (r rejectAll) Description() string                 { return "rejects everything" }
func (r rejectAll) ReturnCodes() []string               { return []string{"nope"} }
func (r rejectAll) ValidateConfig(map[string]any) error { return nil }
func (r rejectAll) AppliesTo(kind RequestKind) bool     { return kind == r.kind }
func (r rejectAll) Check(context.Context, TrackRequest, track.Track) Result {
	return Reject("nope")
}

func TestChain_Execute(t *testing.T) {
	chain := NewChain()
	chain.Add(rejectAll{kind: RequestPlaylist})

	ctx := context.Background()
	single := chain.Execute(ctx, TrackRequest{Kind: RequestSingle}, track.Track{})
	assert.True(t, single.Accepted, "filter should be skipped for other kinds")

	playlist := chain.Execute(ctx, TrackRequest{Kind: RequestPlaylist}, track.Track{})
	assert.False(t, playlist.Accepted)
	assert.Equal(t, "nope", playlist.Code)
}

func TestChain_Partition(t *testing.T) {
	dur := NewDurationLimitFilter()
	require.NoError(t, dur.ValidateConfig(map[string]any{"max_minutes": 10}))

	chain := NewChain()
	chain.Add(dur)

	ts := []track.Track{
		{Title: "short", Duration: 3 * time.Minute},
		{Title: "mix", Duration: 2 * time.Hour},
		{Title: "live"},
	}
	accepted, rejected := chain.Partition(context.Background(), TrackRequest{Kind: RequestPlaylist}, ts)

	assert.Equal(t, 1, rejected)
	require.Len(t, accepted, 2)
	assert.Equal(t, "short", accepted[0].Title)
	assert.Equal(t, "live", accepted[1].Title)
}

func TestNewChainFromSettings(t *testing.T) {
	enabled := map[string]bool{
		"duration_limit_filter":   true,
		"user_queue_limit_filter": true,
	}
	settings := map[string]map[string]any{
		"user_queue_limit_filter": {"max_tracks": "many"}, // invalid, dropped
	}

	chain := NewChainFromSettings(
		func(name string) bool { return enabled[name] },
		func(name string) map[string]any { return settings[name] },
	)

	require.Len(t, chain.Filters(), 1)
	assert.Equal(t, "duration_limit_filter", chain.Filters()[0].Name())
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		"duplicate_track_filter",
		"duration_limit_filter",
		"user_queue_limit_filter",
	}, Names())
}
