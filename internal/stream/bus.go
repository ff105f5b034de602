// Package stream fans session events out to WebSocket and SSE clients.
// The Bus assigns per-session sequence numbers and keeps a bounded
// replay ring so late subscribers can catch up; the Batcher coalesces
// content chunks for subscribers that request batched delivery.
package stream

import (
	"sync"
	"time"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// replayRingSize bounds how many events per session are retained for
// late subscribers.
const replayRingSize = 200

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind is dropped.
const subscriberBuffer = 64

// Subscription is a live event feed for one session.
type Subscription struct {
	C      <-chan types.StreamEvent
	cancel func()
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() { s.cancel() }

type subscriber struct {
	ch     chan types.StreamEvent
	closed bool
}

// sessionTopic holds the per-session fan-out state.
type sessionTopic struct {
	seq  uint64
	ring []types.StreamEvent // at most replayRingSize, oldest first
	subs map[*subscriber]struct{}
}

// Bus is the process-wide event hub.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*sessionTopic
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]*sessionTopic)}
}

var _ types.EventPublisher = (*Bus)(nil)

func (b *Bus) topic(sessionID string) *sessionTopic {
	t, ok := b.topics[sessionID]
	if !ok {
		t = &sessionTopic{subs: make(map[*subscriber]struct{})}
		b.topics[sessionID] = t
	}
	return t
}

// Publish stamps the event with the next sequence number for its
// session and delivers it to every subscriber. Slow subscribers are
// dropped rather than blocking the publisher.
func (b *Bus) Publish(event types.StreamEvent) {
	b.mu.Lock()
	t := b.topic(event.SessionID)
	t.seq++
	event.Seq = t.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	t.ring = append(t.ring, event)
	if len(t.ring) > replayRingSize {
		t.ring = t.ring[len(t.ring)-replayRingSize:]
	}

	var stalled []*subscriber
	for sub := range t.subs {
		select {
		case sub.ch <- event:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		delete(t.subs, sub)
		sub.closed = true
		close(sub.ch)
		logging.StreamWarn("dropped slow subscriber on session %s at seq %d", event.SessionID, event.Seq)
	}
	b.mu.Unlock()
}

// Subscribe attaches to a session's event feed. Events already in the
// replay ring with Seq > fromSeq are delivered first, then live events
// follow in order. fromSeq 0 means "from the beginning of the ring".
// ReplayGap reports whether events between fromSeq and the oldest
// retained event were lost.
func (b *Bus) Subscribe(sessionID string, fromSeq uint64) (*Subscription, bool) {
	b.mu.Lock()
	t := b.topic(sessionID)

	var backlog []types.StreamEvent
	for _, ev := range t.ring {
		if ev.Seq > fromSeq {
			backlog = append(backlog, ev)
		}
	}
	replayGap := false
	if len(t.ring) > 0 && t.ring[0].Seq > fromSeq+1 {
		replayGap = true
	}

	sub := &subscriber{ch: make(chan types.StreamEvent, subscriberBuffer+len(backlog))}
	for _, ev := range backlog {
		sub.ch <- ev
	}
	t.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := t.subs[sub]; ok {
			delete(t.subs, sub)
			sub.closed = true
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return &Subscription{C: sub.ch, cancel: cancel}, replayGap
}

// Subscribers reports how many live subscribers a session has.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[sessionID]; ok {
		return len(t.subs)
	}
	return 0
}

// LastSeq returns the highest sequence number published for a session,
// 0 when nothing was published yet.
func (b *Bus) LastSeq(sessionID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[sessionID]; ok {
		return t.seq
	}
	return 0
}

// Drop discards all state for a session. Remaining subscribers are
// closed. Called when a session is cleaned up.
func (b *Bus) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sessionID]
	if !ok {
		return
	}
	for sub := range t.subs {
		sub.closed = true
		close(sub.ch)
	}
	delete(b.topics, sessionID)
}
