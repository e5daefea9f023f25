package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/domain/track"
)

func newTrack(name string) track.Track {
	return track.Track{
		Title:      name,
		StreamURL:  "https://stream.example/" + name,
		WebpageURL: "https://watch.example/" + name,
	}
}

func titles(ts []track.Track) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Title)
	}
	return out
}

type fakeStream struct {
	done chan error
	once sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{done: make(chan error, 1)}
}

func (s *fakeStream) Done() <-chan error { return s.done }

func (s *fakeStream) finish(err error) {
	s.once.Do(func() {
		s.done <- err
		close(s.done)
	})
}

type fakeSink struct {
	mu          sync.Mutex
	connected   bool
	playing     bool
	paused      bool
	volume      float64
	members     []Member
	plays       []string
	current     *fakeStream
	failOn      map[string]error
	disconnects int
}

func newFakeSink(listeners int) *fakeSink {
	s := &fakeSink{connected: true, failOn: map[string]error{}}
	s.members = append(s.members, Member{ID: 1, Bot: true})
	for i := 0; i < listeners; i++ {
		s.members = append(s.members, Member{ID: snowflake.ID(100 + i)})
	}
	return s
}

func (s *fakeSink) Play(_ context.Context, locator string, volume float64) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plays = append(s.plays, locator)
	if err, ok := s.failOn[locator]; ok {
		return nil, err
	}
	s.volume = volume
	s.playing = true
	s.paused = false
	s.current = newFakeStream()
	return s.current, nil
}

// complete ends the active stream as if the track reached its end.
func (s *fakeSink) complete(err error) bool {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.playing = false
	s.paused = false
	s.mu.Unlock()
	if cur == nil {
		return false
	}
	cur.finish(err)
	return true
}

func (s *fakeSink) Stop() { s.complete(nil) }

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.paused = true
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.paused = false
}

func (s *fakeSink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *fakeSink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSink) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.disconnects++
	return nil
}

func (s *fakeSink) ChannelMembers() []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Member(nil), s.members...)
}

func (s *fakeSink) setMembers(ms ...Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = ms
}

func (s *fakeSink) setConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
}

func (s *fakeSink) played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.plays...)
}

func (s *fakeSink) currentVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *fakeSink) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Notify(_ snowflake.ID, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) count(typ EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == typ {
			c++
		}
	}
	return c
}

type batchCall struct {
	Start int
	Size  int
}

type fakeResolver struct {
	mu      sync.Mutex
	calls   []batchCall
	batches map[int][]track.Track // keyed by start offset
	err     error
	block   chan struct{}
}

func (r *fakeResolver) ResolveBatch(ctx context.Context, _ string, start, size int) ([]track.Track, error) {
	r.mu.Lock()
	r.calls = append(r.calls, batchCall{Start: start, Size: size})
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.batches[start], nil
}

func (r *fakeResolver) callList() []batchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batchCall(nil), r.calls...)
}

func batchOf(prefix string, n int) []track.Track {
	ts := make([]track.Track, 0, n)
	for i := 0; i < n; i++ {
		ts = append(ts, newTrack(fmt.Sprintf("%s-%d", prefix, i)))
	}
	return ts
}

type releaseCounter struct {
	mu    sync.Mutex
	count int
}

func (r *releaseCounter) release(*Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func (r *releaseCounter) get() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
