package status

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
)

func TestClient_SessionsAndInfo(t *testing.T) {
	b := newBackend()
	b.sessions = []playback.Status{{PlayerID: "p1", GuildID: 100, State: playback.StatePaused, Volume: 1}}
	srv := httptest.NewServer(NewService(b, "secret").Handler())
	defer srv.Close()

	ctx := context.Background()

	t.Run("authorized", func(t *testing.T) {
		c := NewClient(srv.Client(), srv.URL+"/", "secret")

		sessions, err := c.Sessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "paused", sessions[0].State)
		assert.Equal(t, "100", sessions[0].GuildID)

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc", info.InstanceID)
	})

	t.Run("unauthorized", func(t *testing.T) {
		c := NewClient(srv.Client(), srv.URL, "wrong")
		_, err := c.Sessions(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestClient_Subscribe(t *testing.T) {
	b := newBackend()
	srv := httptest.NewServer(NewService(b, "").Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan notification.Notification, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewClient(srv.Client(), srv.URL, "").Subscribe(ctx, func(n notification.Notification) {
			got <- n
		})
	}()

	require.Eventually(t, func() bool { return b.notif.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)
	b.notif.Notify(0, playback.Event{Type: playback.EventQueueTimeout, GuildID: 9})

	select {
	case n := <-got:
		assert.Equal(t, "queue_timeout", n.Type)
		assert.Equal(t, uint64(9), uint64(n.GuildID))
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return")
	}
}
