package worker

import (
	"context"
	"fmt"
	"sync"

	"video-transcript-go/internal/logger"
)

// Task is the unit of work run by the pool.
type Task func(ctx context.Context)

// Handle tracks one submitted task.
type Handle struct {
	Name string
	done chan struct{}
}

// Done is closed once the task returns (or panics).
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Wait() { <-h.done }

// Pool runs tasks on their own goroutines, at most maxConcurrent at a time.
// Submit never blocks; queued tasks wait for a slot in their goroutine.
type Pool struct {
	ctx       context.Context
	semaphore chan struct{}
	wg        sync.WaitGroup
	log       *logger.Logger
}

func NewPool(ctx context.Context, maxConcurrent int, log *logger.Logger) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Pool{
		ctx:       ctx,
		semaphore: make(chan struct{}, maxConcurrent),
		log:       log.Component("worker"),
	}
}

func (p *Pool) Submit(name string, task Task) *Handle {
	return p.SubmitWithDrop(name, task, nil)
}

// SubmitWithDrop is Submit with a callback for tasks that never get a slot
// because the pool context ended first. dropped runs on the task's goroutine.
func (p *Pool) SubmitWithDrop(name string, task Task, dropped func()) *Handle {
	h := &Handle{Name: name, done: make(chan struct{})}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(h.done)

		drop := func() {
			p.log.WithField("task", name).Warn("pool shutting down, task dropped")
			if dropped != nil {
				dropped()
			}
		}
		if p.ctx.Err() != nil {
			drop()
			return
		}
		select {
		case p.semaphore <- struct{}{}:
		case <-p.ctx.Done():
			drop()
			return
		}
		defer func() { <-p.semaphore }()

		defer func() {
			if r := recover(); r != nil {
				p.log.WithField("task", name).WithField("panic", fmt.Sprint(r)).Error("task panicked")
			}
		}()

		task(p.ctx)
	}()

	return h
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
