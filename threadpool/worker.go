package threadpool

import (
	"context"
	"sync"

	"github.com/oddbit-project/s3browser/log"
)

type Worker struct {
	jobQueue chan Job
	ctx      context.Context
}

type WorkerGroup struct {
	workers  []*Worker
	ctx      context.Context
	cancelFn context.CancelFunc
	wg       *sync.WaitGroup
	stop     *sync.Once
}

func NewWorker(jobQueue chan Job, ctx context.Context) *Worker {
	return &Worker{
		jobQueue: jobQueue,
		ctx:      ctx,
	}
}

func (w *Worker) Start(wg *sync.WaitGroup, logger *log.Logger) {
	go func() {
		defer wg.Done()
		for {
			select {
			case job := <-w.jobQueue:
				w.runJob(job, logger)
			case <-w.ctx.Done():
				w.drain(logger)
				return
			}
		}
	}()
}

// runJob recovers panics so a failing job cannot kill the worker
func (w *Worker) runJob(job Job, logger *log.Logger) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Warn("worker recovered from panic", log.KV{"panic": r})
			}
		}
	}()
	job.Run(w.ctx)
}

// drain runs the jobs still queued when the context is cancelled. The
// jobs observe the cancellation through the context they receive; what
// matters is that their completion accounting fires, so dispatchers
// waiting on queued work are never stranded.
func (w *Worker) drain(logger *log.Logger) {
	for {
		select {
		case job := <-w.jobQueue:
			w.runJob(job, logger)
		default:
			return
		}
	}
}

// NewWorkerGroup creates a new group of workers
// If logger is nil, panics are recovered silently
func NewWorkerGroup(workerCount int, jobQueue chan Job, parentCtx context.Context, logger *log.Logger) (*WorkerGroup, error) {
	if workerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancelFn := context.WithCancel(parentCtx)
	group := &WorkerGroup{
		workers:  make([]*Worker, workerCount),
		ctx:      ctx,
		cancelFn: cancelFn,
		wg:       &sync.WaitGroup{},
		stop:     &sync.Once{},
	}
	for i := 0; i < workerCount; i++ {
		group.workers[i] = NewWorker(jobQueue, group.ctx)
		group.wg.Add(1)
		group.workers[i].Start(group.wg, logger)
	}
	return group, nil
}

// Stop cancels the group context and waits for all workers to finish
func (w *WorkerGroup) Stop() {
	w.stop.Do(func() {
		w.cancelFn()
		w.wg.Wait()
	})
}
