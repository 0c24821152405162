package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Dispatcher supervises fire-and-forget job tasks. Each task runs on a
// context detached from the originating request, so the submission response
// never waits on processing. A weighted semaphore bounds how many jobs run
// at once; excess tasks queue inside their goroutine until a slot frees up.
type Dispatcher struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	log *zap.Logger
}

func NewDispatcher(maxConcurrent int64, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sem: semaphore.NewWeighted(maxConcurrent), log: log}
}

// Go schedules fn to run to completion independently of the caller.
func (d *Dispatcher) Go(jobID string, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.log.Error("acquire job slot", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		defer d.sem.Release(1)
		fn(ctx)
	}()
}

// Wait blocks until every scheduled task has finished. Used for graceful
// shutdown and to join background work in tests.
func (d *Dispatcher) Wait() { d.wg.Wait() }
