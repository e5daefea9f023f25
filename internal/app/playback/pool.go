package playback

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// WorkerPool runs blocking jobs with a fixed concurrency limit.
// It is shared by every player so resolver work stays bounded process-wide.
type WorkerPool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewWorkerPool creates a pool that runs at most size jobs at once.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		slots: make(chan struct{}, size),
	}
}

// Go schedules fn. It never blocks the caller; fn waits for a free slot.
func (p *WorkerPool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				zlog.Error().Msgf("worker pool: job panicked: %v", r)
			}
		}()
		fn()
	}()
}

// Size returns the concurrency limit.
func (p *WorkerPool) Size() int {
	return cap(p.slots)
}

// Wait blocks until every scheduled job has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
