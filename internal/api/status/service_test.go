package status

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/session/state"
	"github.com/osa030/guildbox/internal/domain/track"
)

type fakeBackend struct {
	sessions  []playback.Status
	info      state.Info
	accepting bool
	notif     *notification.Manager
}

func (f *fakeBackend) Sessions() []playback.Status                   { return f.sessions }
func (f *fakeBackend) Info() state.Info                              { return f.info }
func (f *fakeBackend) CanAcceptRequests() bool                       { return f.accepting }
func (f *fakeBackend) GetNotificationManager() *notification.Manager { return f.notif }

func newBackend() *fakeBackend {
	return &fakeBackend{
		info:      state.Info{InstanceID: "abc", Phase: "active", Accepting: true},
		accepting: true,
		notif:     notification.NewManager(nil, func(code string) string { return code }),
	}
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name      string
		accepting bool
		phase     string
		wantCode  int
		wantBody  string
	}{
		{name: "accepting", accepting: true, phase: "active", wantCode: http.StatusOK, wantBody: "ok"},
		{name: "draining", accepting: false, phase: "draining", wantCode: http.StatusServiceUnavailable, wantBody: "draining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			b.accepting = tt.accepting
			b.info.Phase = tt.phase

			rec := get(t, NewService(b, "secret").Handler(), "/healthz", nil)
			assert.Equal(t, tt.wantCode, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["status"])
		})
	}
}

func TestListSessions(t *testing.T) {
	b := newBackend()
	b.sessions = []playback.Status{
		{
			PlayerID:  "p1",
			GuildID:   100,
			ChannelID: 200,
			State:     playback.StatePlaying,
			Current: &track.Track{
				Title:          "Plastic Love",
				WebpageURL:     "https://watch.example/1",
				Duration:       4*time.Minute + 5*time.Second,
				Requester:      track.Requester{ID: 7, Name: "mariya"},
				SourcePlaylist: "City Pop",
			},
			Position:      90 * time.Second,
			Volume:        0.5,
			Repeat:        playback.RepeatAll,
			QueueLength:   3,
			QueueDuration: 10 * time.Minute,
			Playlist:      &playback.CursorPosition{Title: "City Pop", Offset: 11},
		},
		{PlayerID: "p2", GuildID: 101, State: playback.StateIdle, Volume: 1},
	}

	rec := get(t, NewService(b, "").Handler(), "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)

	first := resp.Sessions[0]
	assert.Equal(t, "p1", first.PlayerID)
	assert.Equal(t, "100", first.GuildID)
	assert.Equal(t, "200", first.ChannelID)
	assert.Equal(t, "playing", first.State)
	assert.Equal(t, int64(90), first.PositionSec)
	assert.Equal(t, 50, first.VolumePercent)
	assert.Equal(t, "all", first.Repeat)
	assert.Equal(t, 3, first.QueueLength)
	assert.Equal(t, int64(600), first.QueueDurationSec)
	require.NotNil(t, first.Current)
	assert.Equal(t, TrackView{
		Title:       "Plastic Love",
		URL:         "https://watch.example/1",
		DurationSec: 245,
		Requester:   "mariya",
		Playlist:    "City Pop",
	}, *first.Current)
	require.NotNil(t, first.Playlist)
	assert.Equal(t, PlaylistView{Title: "City Pop", NextOffset: 11}, *first.Playlist)

	second := resp.Sessions[1]
	assert.Equal(t, "idle", second.State)
	assert.Nil(t, second.Current)
	assert.Nil(t, second.Playlist)
	assert.Equal(t, 100, second.VolumePercent)
}

func TestListSessions_Empty(t *testing.T) {
	rec := get(t, NewService(newBackend(), "").Handler(), "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())
}

func TestGetInfo(t *testing.T) {
	rec := get(t, NewService(newBackend(), "").Handler(), "/api/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info state.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "abc", info.InstanceID)
	assert.Equal(t, "active", info.Phase)
}

func TestTokenAuth(t *testing.T) {
	tests := []struct {
		name     string
		header   map[string]string
		wantCode int
	}{
		{name: "missing", wantCode: http.StatusUnauthorized},
		{name: "wrong", header: map[string]string{TokenHeader: "nope"}, wantCode: http.StatusUnauthorized},
		{name: "header", header: map[string]string{TokenHeader: "secret"}, wantCode: http.StatusOK},
		{name: "bearer", header: map[string]string{"Authorization": "Bearer secret"}, wantCode: http.StatusOK},
	}
	h := NewService(newBackend(), "secret").Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/api/sessions", tt.header)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	t.Run("healthz stays open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil).Code)
	})
}

func TestStreamNotifications(t *testing.T) {
	b := newBackend()
	srv := httptest.NewServer(NewService(b, "").Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return b.notif.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)
	b.notif.Notify(0, playback.Event{Type: playback.EventDeparture, GuildID: 5})

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var event, data string
	deadline := time.After(2 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if v, found := strings.CutPrefix(line, "event: "); found {
				event = v
			}
			if v, found := strings.CutPrefix(line, "data: "); found {
				data = v
			}
		case <-deadline:
			t.Fatal("no event received")
		}
	}
	assert.Equal(t, "departure", event)

	var n notification.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, uint64(1), n.SequenceNo)
	assert.Equal(t, "departure", n.Type)
	assert.Equal(t, "departure", n.Text)

	cancel()
	assert.Eventually(t, func() bool { return b.notif.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestEventStream_DropsWhenFull(t *testing.T) {
	e := &eventStream{ch: make(chan notification.Notification, 1)}
	require.NoError(t, e.Send(notification.Notification{SequenceNo: 1}))
	assert.ErrorIs(t, e.Send(notification.Notification{SequenceNo: 2}), errSlowSubscriber)
}
