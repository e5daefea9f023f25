package discord

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

const (
	frameBuffer    = 100
	silenceFrames  = 5
	frameWaitLimit = 500 * time.Millisecond
)

// opusSilence is a single silent Opus frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Sink is a playback.VoiceSink backed by a Discord voice connection.
type Sink struct {
	guildID   snowflake.ID
	channelID snowflake.ID
	conn      voice.Conn
	members   func() []playback.Member
	log       zerolog.Logger

	volume gain
	closed atomic.Bool

	mu      sync.Mutex
	current *stream
	paused  bool
	gate    chan struct{} // closed while not paused
}

func newSink(guildID, channelID snowflake.ID, conn voice.Conn, members func() []playback.Member) *Sink {
	s := &Sink{
		guildID:   guildID,
		channelID: channelID,
		conn:      conn,
		members:   members,
		log:       zlog.With().Str("guild_id", guildID.String()).Logger(),
		gate:      make(chan struct{}),
	}
	close(s.gate)
	s.volume.Store(1)
	return s
}

// Play opens locator and starts sending it to the voice connection.
// The previous stream, if any, is stopped first.
func (s *Sink) Play(ctx context.Context, locator string, volume float64) (playback.Stream, error) {
	if prev := s.stop(); prev != nil {
		select {
		case <-prev.released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.SetVolume(volume)

	t, err := openTranscoder(locator, &s.volume)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	st := &stream{
		sink:     s,
		frames:   make(chan []byte, frameBuffer),
		drained:  make(chan struct{}),
		released: make(chan struct{}),
		done:     make(chan error, 1),
		ctx:      sctx,
		cancel:   cancel,
	}

	s.mu.Lock()
	s.current = st
	s.paused = false
	s.openGateLocked()
	s.mu.Unlock()

	s.conn.SetOpusFrameProvider(st)
	s.conn.SetSpeaking(sctx, voice.SpeakingFlagMicrophone)

	go st.transcode(t)
	return st, nil
}

// Stop ends the current stream. Its Done channel yields nil.
func (s *Sink) Stop() {
	s.stop()
}

func (s *Sink) stop() *stream {
	s.mu.Lock()
	st := s.current
	s.mu.Unlock()
	if st != nil {
		st.cancel()
	}
	return st
}

// Pause holds frame delivery until Resume.
func (s *Sink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.current == nil {
		return
	}
	s.paused = true
	s.gate = make(chan struct{})
}

// Resume continues frame delivery.
func (s *Sink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.openGateLocked()
}

func (s *Sink) openGateLocked() {
	select {
	case <-s.gate:
	default:
		close(s.gate)
	}
}

// SetVolume changes the gain of the running and future streams.
func (s *Sink) SetVolume(volume float64) {
	s.volume.Store(volume)
}

// IsConnected reports whether the voice connection is still bound to a channel.
func (s *Sink) IsConnected() bool {
	return !s.closed.Load() && s.conn.ChannelID() != nil
}

// IsPlaying reports whether a stream is active.
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// IsPaused reports whether frame delivery is held.
func (s *Sink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Disconnect stops playback and leaves the voice channel.
func (s *Sink) Disconnect(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.Stop()
	s.Resume()
	s.conn.Close(ctx)
	s.log.Info().Msgf("voice: disconnected: channel_id=%s", s.channelID)
	return nil
}

// ChannelMembers returns the users currently in the bound channel.
func (s *Sink) ChannelMembers() []playback.Member {
	return s.members()
}

func (s *Sink) pauseGate() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate
}

// finished clears st from the connection once it is no longer the current stream.
func (s *Sink) finished(st *stream) {
	s.mu.Lock()
	if s.current != st {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.paused = false
	s.openGateLocked()
	s.mu.Unlock()

	if s.closed.Load() {
		return
	}
	s.conn.SetOpusFrameProvider(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.conn.SetSpeaking(ctx, 0)
}

// stream feeds transcoded frames to the voice connection. It implements voice.OpusFrameProvider.
type stream struct {
	sink     *Sink
	frames   chan []byte
	drained  chan struct{}
	released chan struct{} // closed once the connection no longer reads this stream
	done     chan error
	ctx      context.Context
	cancel   context.CancelFunc

	// Owned by the provider goroutine.
	draining bool
	silence  int

	drainOnce  sync.Once
	finishOnce sync.Once
}

// Done yields the stream result once.
func (st *stream) Done() <-chan error { return st.done }

func (st *stream) transcode(t *transcoder) {
	defer t.close()

	err := t.run(st.ctx, st.push)
	if err != nil && st.ctx.Err() == nil {
		st.finish(err)
		return
	}
	if st.ctx.Err() == nil {
		st.push(nil)
		select {
		case <-st.drained:
		case <-st.ctx.Done():
		}
	}
	st.finish(nil)
}

// push queues a frame. A nil frame marks the end of the input.
func (st *stream) push(frame []byte) bool {
	select {
	case st.frames <- frame:
		return true
	case <-st.ctx.Done():
		return false
	}
}

func (st *stream) finish(err error) {
	st.finishOnce.Do(func() {
		st.cancel()
		st.sink.finished(st)
		close(st.released)
		st.done <- err
		close(st.done)
	})
}

// ProvideOpusFrame returns the next frame, or silence while the transcoder catches up.
func (st *stream) ProvideOpusFrame() ([]byte, error) {
	select {
	case <-st.sink.pauseGate():
	case <-st.ctx.Done():
		return nil, io.EOF
	}

	if st.draining {
		if st.silence < silenceFrames {
			st.silence++
			return opusSilence, nil
		}
		st.drainOnce.Do(func() { close(st.drained) })
		return nil, io.EOF
	}

	select {
	case f := <-st.frames:
		if f == nil {
			st.draining = true
			return opusSilence, nil
		}
		return f, nil
	case <-st.ctx.Done():
		return nil, io.EOF
	case <-time.After(frameWaitLimit):
		return opusSilence, nil
	}
}

// Close is called by the connection when the provider is replaced.
func (st *stream) Close() {}
