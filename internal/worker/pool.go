// Package worker runs best-effort background tasks on a bounded goroutine pool.
package worker

import (
	"context"
	"errors"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverloaded is returned when every worker is busy. Submit never
	// blocks, so a task running on the pool may submit more work.
	ErrPoolOverloaded = errors.New("worker pool is overloaded")
)

// Task is a context-aware unit of background work.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with a service lifecycle context.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// NewPool creates a pool of at most size goroutines. Detached tasks receive
// a context that is cancelled by Shutdown.
func NewPool(ctx context.Context, size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 32
	}
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p any) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	antsPool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	return &Pool{
		pool:          antsPool,
		logger:        logger,
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// SubmitDetached runs task on the pool with the service context, so it
// outlives the request that scheduled it but stops on shutdown.
func (p *Pool) SubmitDetached(task Task) error {
	err := p.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			p.logger.Debug("Detached task skipped: service shutting down")
			return
		default:
		}
		task(p.serviceCtx)
	})
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverloaded
	}
	return err
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Shutdown cancels the service context and releases the pool. Queued
// detached tasks are skipped.
func (p *Pool) Shutdown() {
	p.serviceCancel()
	p.pool.Release()
}
