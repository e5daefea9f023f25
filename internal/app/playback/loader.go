package playback

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/osa030/guildbox/internal/domain/track"
)

// BatchResolver fetches playlist continuations.
type BatchResolver interface {
	// ResolveBatch returns up to size tracks of sourceRef starting at the 1-based offset start.
	ResolveBatch(ctx context.Context, sourceRef string, start, size int) ([]track.Track, error)
}

// LazyLoader tops up the queue from the playlist cursor as it drains.
type LazyLoader struct {
	queue     *Queue
	cursor    *PlaylistCursor
	resolver  BatchResolver
	pool      *WorkerPool
	threshold int
	batchSize int
	log       zerolog.Logger

	// onLoaded is called from the worker after a batch was applied or the cursor gave up.
	onLoaded func(pos CursorPosition, appended int, err error)
}

// NewLazyLoader creates a loader feeding queue from cursor.
func NewLazyLoader(queue *Queue, cursor *PlaylistCursor, resolver BatchResolver, pool *WorkerPool, threshold, batchSize int, log zerolog.Logger) *LazyLoader {
	return &LazyLoader{
		queue:     queue,
		cursor:    cursor,
		resolver:  resolver,
		pool:      pool,
		threshold: threshold,
		batchSize: batchSize,
		log:       log,
	}
}

// MaybeLoad starts a background batch fetch when the queue is below the threshold,
// the cursor is active and no fetch is in flight. It reports whether a fetch was started.
func (l *LazyLoader) MaybeLoad(ctx context.Context) bool {
	if l.resolver == nil || l.queue.Len() >= l.threshold {
		return false
	}
	pos, ok := l.cursor.TryBeginLoad()
	if !ok {
		return false
	}

	l.log.Debug().Msgf("lazy loader: fetching batch: source=%s offset=%d size=%d", pos.SourceRef, pos.Offset, l.batchSize)
	l.pool.Go(func() {
		l.load(ctx, pos)
	})
	return true
}

func (l *LazyLoader) load(ctx context.Context, pos CursorPosition) {
	var valid []track.Track
	fetched, err := l.resolver.ResolveBatch(ctx, pos.SourceRef, pos.Offset, l.batchSize)
	if err == nil {
		valid = make([]track.Track, 0, len(fetched))
		for _, t := range fetched {
			if !t.Valid() {
				l.log.Debug().Msgf("lazy loader: skipping invalid entry: title=%s", t.Title)
				continue
			}
			t.Requester = pos.Requester
			if t.SourcePlaylist == "" {
				t.SourcePlaylist = pos.Title
			}
			valid = append(valid, t)
		}
	}

	applied := l.cursor.Finish(pos, valid, err, l.queue.EnqueueMultiple)
	switch {
	case applied:
		l.log.Info().Msgf("lazy loader: batch appended: source=%s offset=%d appended=%d", pos.SourceRef, pos.Offset, len(valid))
	case err != nil:
		l.log.Warn().Err(err).Msgf("lazy loader: batch failed, playlist closed: source=%s offset=%d", pos.SourceRef, pos.Offset)
	default:
		l.log.Info().Msgf("lazy loader: playlist exhausted or replaced: source=%s offset=%d", pos.SourceRef, pos.Offset)
	}

	if l.onLoaded != nil {
		n := 0
		if applied {
			n = len(valid)
		}
		l.onLoaded(pos, n, err)
	}
}
