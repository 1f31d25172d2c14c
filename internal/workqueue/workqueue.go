// Package workqueue runs one worker per destination key, each fed through a
// single-slot mailbox where the newest item replaces a pending one.
//
// A slow destination therefore only ever sees the latest item after it
// finishes the current one, and never holds up submitters or other keys.
package workqueue

import (
	"context"
	"sync"
)

// Handler processes one item for key.
type Handler[T any] func(ctx context.Context, key string, item T)

// Hooks are optional callbacks for observability.
type Hooks struct {
	// Dropped is called when a pending item for key was replaced before a
	// worker picked it up.
	Dropped func(key string)
	// Panicked is called when the handler panicked; the worker keeps running.
	Panicked func(key string, v any)
}

// Queue dispatches items to per-key workers. The zero value is not usable;
// call New.
type Queue[T any] struct {
	ctx    context.Context
	handle Handler[T]
	hooks  Hooks

	mu      sync.Mutex
	closed  bool
	workers map[string]chan T
	wg      sync.WaitGroup
}

// New returns a queue whose handlers receive ctx.
func New[T any](ctx context.Context, handle Handler[T], hooks Hooks) *Queue[T] {
	return &Queue[T]{
		ctx:     ctx,
		handle:  handle,
		hooks:   hooks,
		workers: make(map[string]chan T),
	}
}

// Submit hands item to key's worker, starting it on first use. It never
// blocks. It returns false if the queue is closed.
func (q *Queue[T]) Submit(key string, item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	box, ok := q.workers[key]
	if !ok {
		box = make(chan T, 1)
		q.workers[key] = box
		q.wg.Add(1)
		go q.run(key, box)
	}
	select {
	case box <- item:
		return true
	default:
	}
	// mailbox full: replace the pending item
	select {
	case <-box:
		if q.hooks.Dropped != nil {
			q.hooks.Dropped(key)
		}
	default:
	}
	box <- item
	return true
}

func (q *Queue[T]) run(key string, box <-chan T) {
	defer q.wg.Done()
	for item := range box {
		q.call(key, item)
	}
}

func (q *Queue[T]) call(key string, item T) {
	defer func() {
		if v := recover(); v != nil && q.hooks.Panicked != nil {
			q.hooks.Panicked(key, v)
		}
	}()
	q.handle(q.ctx, key, item)
}

// Keys returns the destinations that have a worker.
func (q *Queue[T]) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.workers))
	for k := range q.workers {
		out = append(out, k)
	}
	return out
}

// Close stops accepting items and waits until every worker has handled its
// in-flight and pending item. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, box := range q.workers {
			close(box)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}
