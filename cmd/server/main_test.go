package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/infra/config"
)

func TestValidateFilterConfig(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]config.FilterConfig
		wantErr bool
	}{
		{name: "none"},
		{
			name: "valid",
			filters: map[string]config.FilterConfig{
				"duration_limit_filter": {Enabled: true, Settings: map[string]any{"max_minutes": 15}},
			},
		},
		{
			name: "disabled unknown is ignored",
			filters: map[string]config.FilterConfig{
				"no_such_filter": {Enabled: false},
			},
		},
		{
			name: "enabled unknown",
			filters: map[string]config.FilterConfig{
				"no_such_filter": {Enabled: true},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFilterConfig(&config.Config{Filters: tt.filters})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRetry(t *testing.T) {
	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), "test", func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retry(ctx, "test", func() error {
			calls++
			cancel()
			return errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestExecuteHooks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "hook.txt")
	executeHooks([]string{"echo started > " + out, "exit 3"}, "on_started")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "started\n", string(data))
}
