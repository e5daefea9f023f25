package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Errors
var (
	ErrOutOfRange   = errors.New("position out of range")
	ErrQueueTimeout = errors.New("queue wait timed out")
)

// Queue is an ordered FIFO of track descriptors.
// Every positional edit runs under the queue lock so it never interleaves with a dequeue.
type Queue struct {
	mu     sync.Mutex
	items  []track.Track
	signal chan struct{} // closed and replaced whenever items are added
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items:  make([]track.Track, 0),
		signal: make(chan struct{}),
	}
}

// Enqueue adds a track to the end of the queue.
func (q *Queue) Enqueue(t track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, t)
	q.wakeLocked()
}

// EnqueueMultiple adds tracks to the end of the queue in order.
func (q *Queue) EnqueueMultiple(ts []track.Track) {
	if len(ts) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, ts...)
	q.wakeLocked()
}

// Dequeue removes and returns the head of the queue, waiting up to timeout for one to arrive.
// It returns ErrQueueTimeout when the wait expires and ctx.Err() when ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (track.Track, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.popLocked()
			q.mu.Unlock()
			return t, nil
		}
		wait := q.signal
		q.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return track.Track{}, ErrQueueTimeout
		case <-ctx.Done():
			return track.Track{}, ctx.Err()
		}
	}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns an ordered copy of the queue.
func (q *Queue) Snapshot() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]track.Track, len(q.items))
	copy(result, q.items)
	return result
}

// RemoveAt removes the track at the 1-based position pos, preserving the order of the rest.
func (q *Queue) RemoveAt(pos int) (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pos < 1 || pos > len(q.items) {
		return track.Track{}, errors.Wrapf(ErrOutOfRange, "position %d (queue length %d)", pos, len(q.items))
	}

	removed := q.items[pos-1]
	rebuilt := make([]track.Track, 0, len(q.items)-1)
	rebuilt = append(rebuilt, q.items[:pos-1]...)
	rebuilt = append(rebuilt, q.items[pos:]...)
	q.items = rebuilt
	return removed, nil
}

// ReplaceAll replaces the queue contents with ts.
func (q *Queue) ReplaceAll(ts []track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.replaceLocked(ts)
}

// Refill replaces the contents with ts only if the queue is empty.
// It reports whether the queue was refilled.
func (q *Queue) Refill(ts []track.Track) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) > 0 || len(ts) == 0 {
		return false
	}
	q.replaceLocked(ts)
	return true
}

// Shuffle randomly permutes the queue and returns the number of tracks shuffled.
// Queues with fewer than two tracks are left untouched and report 0.
func (q *Queue) Shuffle() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) < 2 {
		return 0
	}
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
	return len(q.items)
}

// Clear removes every track and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = make([]track.Track, 0)
	return n
}

// TotalDuration returns the summed known duration of the queued tracks.
func (q *Queue) TotalDuration() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	var total time.Duration
	for _, t := range q.items {
		total += t.Duration
	}
	return total
}

func (q *Queue) popLocked() track.Track {
	t := q.items[0]
	q.items[0] = track.Track{}
	q.items = q.items[1:]
	return t
}

// replaceLocked copies ts into the queue and wakes waiters when it is non-empty.
func (q *Queue) replaceLocked(ts []track.Track) {
	q.items = make([]track.Track, len(ts))
	copy(q.items, ts)
	if len(q.items) > 0 {
		q.wakeLocked()
	}
}

// wakeLocked releases every goroutine blocked in Dequeue.
// Must be called with lock held.
func (q *Queue) wakeLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}
