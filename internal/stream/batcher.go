package stream

import (
	"time"

	"webforge/internal/types"
)

// Batching bounds: a pending batch is released once the subscriber's
// requested size is reached, or this much time passed since the first
// pending event, whichever comes first.
const (
	batchDefaultSize = 5
	batchMaxWait     = 50 * time.Millisecond
)

// Batcher accumulates content-chunk events for one subscriber that
// opted into batched delivery. Not safe for concurrent use; the owning
// transport goroutine drives it.
type Batcher struct {
	limit   int
	pending []types.StreamEvent
	timer   *time.Timer
}

// NewBatcher creates a Batcher releasing batches of limit events.
// A non-positive limit falls back to the default.
func NewBatcher(limit int) *Batcher {
	if limit <= 0 {
		limit = batchDefaultSize
	}
	return &Batcher{limit: limit}
}

// Add buffers one event. It returns the full batch once the size limit
// is reached, nil otherwise; the wait timer is armed when the first
// event goes pending.
func (b *Batcher) Add(ev types.StreamEvent) []types.StreamEvent {
	b.pending = append(b.pending, ev)
	if len(b.pending) >= b.limit {
		return b.take()
	}
	if b.timer == nil {
		b.timer = time.NewTimer(batchMaxWait)
	}
	return nil
}

// C is the expiry channel of the armed wait timer; nil while nothing is
// pending, which a select treats as never ready.
func (b *Batcher) C() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// Drain returns everything pending and disarms the timer.
func (b *Batcher) Drain() []types.StreamEvent {
	return b.take()
}

func (b *Batcher) take() []types.StreamEvent {
	if b.timer != nil {
		if !b.timer.Stop() {
			select {
			case <-b.timer.C:
			default:
			}
		}
		b.timer = nil
	}
	out := b.pending
	b.pending = nil
	return out
}
