package research

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-scout/internal/model"
)

// Pool executes research jobs on a bounded set of workers. Enqueue returns
// immediately; workers dequeue and run Execute detached from the request
// that created the job, so a workflow keeps running after the HTTP response
// that triggered it has been sent.
type Pool struct {
	manager *Manager
	queue   chan string
	group   *errgroup.Group
	ctx     context.Context
}

// NewPool starts workers goroutines draining a queue of queueSize job IDs.
// The provided context bounds all workflow executions; cancel it and call
// Wait to drain on shutdown.
func NewPool(ctx context.Context, manager *Manager, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	p := &Pool{
		manager: manager,
		queue:   make(chan string, queueSize),
		ctx:     ctx,
	}

	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case jobID, ok := <-p.queue:
					if !ok {
						return nil
					}
					p.manager.Execute(gctx, jobID)
				}
			}
		})
	}

	zap.L().Info("research: worker pool started",
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize),
	)
	return p
}

// Submit creates a job and enqueues it for execution, returning the queued
// job immediately. When the queue is full the job is marked failed so a
// polling caller sees a terminal state instead of a job that never runs.
func (p *Pool) Submit(ctx context.Context, identifier, subjectName string) (*model.ResearchJob, error) {
	job, err := p.manager.Create(ctx, identifier, subjectName)
	if err != nil {
		return nil, err
	}

	select {
	case p.queue <- job.ID:
		return job, nil
	default:
		detail := "research queue is full, job was not scheduled"
		if failErr := p.manager.store.FailJob(ctx, job.ID, detail, model.JobMetadata{}); failErr != nil {
			zap.L().Error("research: failed to mark rejected job", zap.Error(failErr))
		}
		return nil, eris.New(detail)
	}
}

// Wait blocks until all workers have exited. Callers should cancel the
// pool's context first; queued but unstarted jobs stay queued in the store.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
