package filter

import (
	"context"
	"testing"
	"time"

	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/stretchr/testify/assert"
)

func TestDurationLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name          string
		minMinutes    float64
		maxMinutes    float64
		rejectUnknown bool
		trackDuration time.Duration
		shouldReject  bool
		description   string
	}{
		{
			name:          "Within limits",
			minMinutes:    2.0,
			maxMinutes:    5.0,
			trackDuration: 3 * time.Minute,
			shouldReject:  false,
			description:   "Should accept track within min/max limits",
		},
		{
			name:          "Too short",
			minMinutes:    3.0,
			maxMinutes:    0,
			trackDuration: 2 * time.Minute,
			shouldReject:  true,
			description:   "Should reject track shorter than min",
		},
		{
			name:          "Too long",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			trackDuration: 6 * time.Minute,
			shouldReject:  true,
			description:   "Should reject track longer than max",
		},
		{
			name:          "Exact max",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			trackDuration: 5 * time.Minute,
			shouldReject:  false,
			description:   "Should accept track exactly at max",
		},
		{
			name:          "No upper limit",
			minMinutes:    0,
			maxMinutes:    0,
			trackDuration: 3 * time.Hour,
			shouldReject:  false,
			description:   "Should accept long track when max is 0",
		},
		{
			name:          "Unknown duration accepted",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			trackDuration: 0,
			shouldReject:  false,
			description:   "Should accept live streams by default",
		},
		{
			name:          "Unknown duration rejected",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			rejectUnknown: true,
			trackDuration: 0,
			shouldReject:  true,
			description:   "Should reject unknown duration when configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			// Manually configuring for test by setting config directly
			f.config = &DurationLimitConfig{
				MinMinutes:    tt.minMinutes,
				MaxMinutes:    tt.maxMinutes,
				RejectUnknown: tt.rejectUnknown,
			}

			result := f.Check(context.Background(), TrackRequest{}, track.Track{Duration: tt.trackDuration})

			if tt.shouldReject {
				assert.False(t, result.Accepted, tt.description)
				assert.Equal(t, "duration_limit_exceeded", result.Code)
			} else {
				assert.True(t, result.Accepted, tt.description)
			}
		})
	}
}

func TestDurationLimitFilter_NotConfigured(t *testing.T) {
	f := NewDurationLimitFilter()
	result := f.Check(context.Background(), TrackRequest{}, track.Track{Duration: 10 * time.Hour})
	assert.True(t, result.Accepted)
	assert.True(t, f.AppliesTo(RequestSingle))
	assert.True(t, f.AppliesTo(RequestPlaylist))
}

func TestDurationLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		wantErr  bool
		wantMax  float64
	}{
		{
			name: "Valid config",
			settings: map[string]interface{}{
				"min_minutes": 2.5,
				"max_minutes": 5.0,
			},
			wantMax: 5.0,
		},
		{
			name: "Valid integers",
			settings: map[string]interface{}{
				"min_minutes": 2,
				"max_minutes": 5,
			},
			wantMax: 5.0,
		},
		{
			name: "Invalid min > max",
			settings: map[string]interface{}{
				"min_minutes": 10.0,
				"max_minutes": 5.0,
			},
			wantErr: true,
		},
		{
			name: "Invalid negative min",
			settings: map[string]interface{}{
				"min_minutes": -1.0,
			},
			wantErr: true,
		},
		{
			name: "Invalid negative max",
			settings: map[string]interface{}{
				"max_minutes": -1.0,
			},
			wantErr: true,
		},
		{
			name: "Wrong type",
			settings: map[string]interface{}{
				"max_minutes": "ten",
			},
			wantErr: true,
		},
		{
			name:     "Empty settings (uses default max=20)",
			settings: map[string]interface{}{},
			wantMax:  20.0,
		},
		{
			name:     "Nil settings",
			settings: nil,
			wantMax:  20.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			err := f.ValidateConfig(tt.settings)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantMax, f.config.MaxMinutes)
			}
		})
	}
}
