// Package sink defines the contract between the scheduler and downstream
// consumers of snapshots.
package sink

import (
	"context"

	"quotefeed/internal/snapshot"
)

// Sink receives snapshots. Delivery is best effort: an error is logged by
// the caller and the sink simply gets the next snapshot on the next tick.
// Publish must not mutate snap.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap *snapshot.Snapshot) error
}

type funcSink struct {
	name string
	fn   func(context.Context, *snapshot.Snapshot) error
}

func (f funcSink) Name() string { return f.name }

func (f funcSink) Publish(ctx context.Context, snap *snapshot.Snapshot) error {
	return f.fn(ctx, snap)
}

// Func adapts a function to a Sink.
func Func(name string, fn func(context.Context, *snapshot.Snapshot) error) Sink {
	return funcSink{name: name, fn: fn}
}
