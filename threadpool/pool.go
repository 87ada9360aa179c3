package threadpool

import (
	"context"

	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/utils"
)

const (
	ErrInvalidWorkerCount = utils.Error("invalid workerCount value")
	ErrInvalidQueueSize   = utils.Error("invalid queueSize value")
	ErrPoolNotStarted     = utils.Error("ThreadPool not started")
	ErrPoolAlreadyStarted = utils.Error("ThreadPool already started")
)

type Pool interface {
	Start(ctx context.Context) error
	Stop() error
	Dispatch(j Job)
}

type ThreadPool struct {
	workers     *WorkerGroup
	workerCount int
	jobQueue    chan Job
	logger      *log.Logger
}

// NewThreadPool creates a pool with workerCount workers and a job queue
// of queueSize entries; both must be positive
func NewThreadPool(workerCount int, queueSize int, logger *log.Logger) (*ThreadPool, error) {
	if workerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}
	if queueSize < 1 {
		return nil, ErrInvalidQueueSize
	}
	return &ThreadPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, queueSize),
		logger:      logger,
	}, nil
}

// GetQueueLen returns the number of jobs waiting in the queue
func (t *ThreadPool) GetQueueLen() int {
	return len(t.jobQueue)
}

// GetWorkerCount returns the number of workers in the pool
func (t *ThreadPool) GetWorkerCount() int {
	return t.workerCount
}

// Start starts the pool workers; returns an error if already started
func (t *ThreadPool) Start(ctx context.Context) error {
	if t.workers != nil {
		return ErrPoolAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	t.workers, err = NewWorkerGroup(t.workerCount, t.jobQueue, ctx, t.logger)
	return err
}

// Stop stops the pool and waits for in-flight jobs; blocking
func (t *ThreadPool) Stop() error {
	if t.workers == nil {
		return ErrPoolNotStarted
	}
	t.workers.Stop()
	t.workers = nil
	return nil
}

// Dispatch queues a job; blocks when the queue is full
func (t *ThreadPool) Dispatch(j Job) {
	t.jobQueue <- j
}
