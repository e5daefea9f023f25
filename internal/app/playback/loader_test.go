package playback

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/track"
)

type loadResult struct {
	appended int
	err      error
}

func newTestLoader(q *Queue, c *PlaylistCursor, r BatchResolver, pool *WorkerPool) (*LazyLoader, *[]loadResult, *sync.Mutex) {
	var mu sync.Mutex
	results := []loadResult{}
	l := NewLazyLoader(q, c, r, pool, 3, 10, zerolog.Nop())
	l.onLoaded = func(_ CursorPosition, appended int, err error) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, loadResult{appended: appended, err: err})
	}
	return l, &results, &mu
}

func TestLazyLoader_OffsetArithmetic(t *testing.T) {
	q := NewQueue()
	q.EnqueueMultiple(batchOf("queued", 2))
	c := NewPlaylistCursor()
	c.Open("playlist://mix", "Mix", 11, track.Requester{ID: 7, Name: "alice"})

	r := &fakeResolver{batches: map[int][]track.Track{11: batchOf("batch", 10)}}
	pool := NewWorkerPool(2)
	l, results, mu := newTestLoader(q, c, r, pool)

	assert.True(t, l.MaybeLoad(context.Background()))
	pool.Wait()

	assert.Equal(t, []batchCall{{Start: 11, Size: 10}}, r.callList())
	assert.Equal(t, 12, q.Len())

	pos, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, 21, pos.Offset)
	assert.False(t, c.Loading())

	snapshot := q.Snapshot()
	assert.Equal(t, "alice", snapshot[2].Requester.Name)
	assert.Equal(t, "Mix", snapshot[2].SourcePlaylist)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []loadResult{{appended: 10}}, *results)
}

func TestLazyLoader_SkipsInvalidEntries(t *testing.T) {
	q := NewQueue()
	c := NewPlaylistCursor()
	c.Open("playlist://mix", "Mix", 1, track.Requester{})

	batch := batchOf("ok", 3)
	batch = append(batch, track.Track{Title: "private video"})
	r := &fakeResolver{batches: map[int][]track.Track{1: batch}}
	pool := NewWorkerPool(1)
	l, _, _ := newTestLoader(q, c, r, pool)

	require.True(t, l.MaybeLoad(context.Background()))
	pool.Wait()

	assert.Equal(t, 3, q.Len())
	pos, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, 4, pos.Offset)
}

func TestLazyLoader_SingleFlight(t *testing.T) {
	q := NewQueue()
	c := NewPlaylistCursor()
	c.Open("playlist://mix", "Mix", 1, track.Requester{})

	r := &fakeResolver{
		batches: map[int][]track.Track{1: batchOf("b", 10)},
		block:   make(chan struct{}),
	}
	pool := NewWorkerPool(4)
	l, _, _ := newTestLoader(q, c, r, pool)

	ctx := context.Background()
	assert.True(t, l.MaybeLoad(ctx))
	for i := 0; i < 5; i++ {
		assert.False(t, l.MaybeLoad(ctx))
	}
	assert.True(t, c.Loading())

	close(r.block)
	pool.Wait()

	assert.Len(t, r.callList(), 1)
	assert.Equal(t, 10, q.Len())
}

func TestLazyLoader_AboveThreshold(t *testing.T) {
	q := NewQueue()
	q.EnqueueMultiple(batchOf("queued", 3))
	c := NewPlaylistCursor()
	c.Open("playlist://mix", "Mix", 4, track.Requester{})

	r := &fakeResolver{}
	pool := NewWorkerPool(1)
	l, _, _ := newTestLoader(q, c, r, pool)

	assert.False(t, l.MaybeLoad(context.Background()))
	assert.Empty(t, r.callList())
}

func TestLazyLoader_ClosesCursor(t *testing.T) {
	tests := []struct {
		name     string
		resolver *fakeResolver
		wantErr  bool
	}{
		{
			name:     "empty batch",
			resolver: &fakeResolver{batches: map[int][]track.Track{}},
		},
		{
			name:     "resolver failure",
			resolver: &fakeResolver{err: errors.New("extractor exploded")},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			q.Enqueue(newTrack("kept"))
			c := NewPlaylistCursor()
			c.Open("playlist://mix", "Mix", 31, track.Requester{})

			pool := NewWorkerPool(1)
			l, results, mu := newTestLoader(q, c, tt.resolver, pool)

			require.True(t, l.MaybeLoad(context.Background()))
			pool.Wait()

			assert.False(t, c.Active())
			assert.False(t, c.Loading())
			assert.Equal(t, []string{"kept"}, titles(q.Snapshot()))

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, *results, 1)
			assert.Equal(t, 0, (*results)[0].appended)
			assert.Equal(t, tt.wantErr, (*results)[0].err != nil)

			assert.False(t, l.MaybeLoad(context.Background()))
		})
	}
}

func TestLazyLoader_DiscardsStaleBatch(t *testing.T) {
	q := NewQueue()
	c := NewPlaylistCursor()
	c.Open("playlist://old", "Old", 1, track.Requester{})

	r := &fakeResolver{
		batches: map[int][]track.Track{1: batchOf("old", 5)},
		block:   make(chan struct{}),
	}
	pool := NewWorkerPool(1)
	l, _, _ := newTestLoader(q, c, r, pool)

	require.True(t, l.MaybeLoad(context.Background()))
	c.Reset()
	close(r.block)
	pool.Wait()

	assert.Equal(t, 0, q.Len())
	assert.False(t, c.Active())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1)
	done := make(chan struct{})

	pool.Go(func() { panic("boom") })
	pool.Go(func() { close(done) })
	pool.Wait()

	select {
	case <-done:
	default:
		t.Fatal("second job did not run")
	}
	assert.Equal(t, 1, pool.Size())
}
