package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"webforge/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func publishN(bus *Bus, sessionID string, n int) {
	for i := 0; i < n; i++ {
		bus.Publish(types.StreamEvent{
			Type:      types.EventContentChunk,
			SessionID: sessionID,
			Chunk:     fmt.Sprintf("chunk-%d", i),
		})
	}
}

func TestSequenceIsMonotonePerSession(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe("a", 0)
	defer sub.Cancel()

	publishN(bus, "a", 10)
	publishN(bus, "b", 3)

	for i := 1; i <= 10; i++ {
		ev := <-sub.C
		assert.Equal(t, uint64(i), ev.Seq)
		assert.Equal(t, "a", ev.SessionID)
	}
	assert.Equal(t, uint64(10), bus.LastSeq("a"))
	assert.Equal(t, uint64(3), bus.LastSeq("b"))
}

func TestReplayFromRing(t *testing.T) {
	bus := NewBus()
	publishN(bus, "s", 5)

	sub, gap := bus.Subscribe("s", 2)
	defer sub.Cancel()
	assert.False(t, gap)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		ev := <-sub.C
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []uint64{3, 4, 5}, seqs)
}

func TestReplayGapWhenRingOverflows(t *testing.T) {
	bus := NewBus()
	publishN(bus, "s", replayRingSize+50)

	sub, gap := bus.Subscribe("s", 0)
	defer sub.Cancel()
	assert.True(t, gap, "events 1..50 were evicted, gap must be reported")

	ev := <-sub.C
	assert.Equal(t, uint64(51), ev.Seq, "replay starts at the oldest retained event")
}

func TestLiveEventsFollowReplay(t *testing.T) {
	bus := NewBus()
	publishN(bus, "s", 2)

	sub, _ := bus.Subscribe("s", 0)
	defer sub.Cancel()
	publishN(bus, "s", 1)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.C:
			seqs = append(seqs, ev.Seq)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe("s", 0)
	defer sub.Cancel()

	// Never read: the buffer fills and the bus must not block.
	done := make(chan struct{})
	go func() {
		publishN(bus, "s", subscriberBuffer+10)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}

	// Channel was closed after the drop: draining terminates.
	for range sub.C {
	}
}

func TestDropClosesSubscribers(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe("s", 0)
	bus.Drop("s")

	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, uint64(0), bus.LastSeq("s"))

	// Cancel after Drop must not panic.
	sub.Cancel()
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe("s", 0)
	defer sub.Cancel()

	bus.Publish(types.StreamEvent{Type: types.EventTaskStarted, SessionID: "s"})
	ev := <-sub.C
	require.False(t, ev.Timestamp.IsZero())
}
