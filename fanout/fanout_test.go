package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parlorchat/parlor"
)

func TestMemoryQueueDeliversInOrder(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, id := range []string{"s1", "s2", "s3"} {
		ev := parlor.StreamEvent{Type: parlor.StreamStart, StreamID: id}
		_ = i
		if err := q.Push(ctx, ev); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	var mu sync.Mutex
	var got []string
	go q.Run(ctx, func(_ context.Context, ev parlor.StreamEvent) error {
		mu.Lock()
		got = append(got, ev.StreamID)
		if len(got) == 3 {
			cancel()
		}
		mu.Unlock()
		return nil
	})
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "s1" || got[1] != "s2" || got[2] != "s3" {
		t.Errorf("delivered = %v, want FIFO order", got)
	}
}

func TestMemoryQueueRedeliversThenDrops(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_ = q.Push(ctx, parlor.StreamEvent{Type: parlor.StreamEnd, StreamID: "s1"})

	var mu sync.Mutex
	attempts := 0
	go q.Run(ctx, func(_ context.Context, _ parlor.StreamEvent) error {
		mu.Lock()
		attempts++
		if attempts == queueMaxAttempts {
			cancel()
		}
		mu.Unlock()
		return errors.New("handler down")
	})
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	if attempts != queueMaxAttempts {
		t.Errorf("attempts = %d, want %d then drop", attempts, queueMaxAttempts)
	}
}

func TestPubSubDeliversToSubscribers(t *testing.T) {
	ps := NewMemoryPubSub()
	ch, cancel := ps.Subscribe("topic")
	defer cancel()

	ps.Publish("topic", []byte("hello"))

	select {
	case data := <-ch:
		if string(data) != "hello" {
			t.Errorf("got %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestPubSubDropsWhenSubscriberFull(t *testing.T) {
	ps := NewMemoryPubSub()
	ch, cancel := ps.Subscribe("topic")
	defer cancel()

	// Nobody drains: fill past the buffer. Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			ps.Publish("topic", []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if got := len(ch); got > subscriberBuffer {
		t.Errorf("buffered %d, want at most %d", got, subscriberBuffer)
	}
}

func TestPubSubCancelClosesChannel(t *testing.T) {
	ps := NewMemoryPubSub()
	ch, cancel := ps.Subscribe("topic")
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

// captureBroadcaster records everything relayed to the realtime transport.
type captureBroadcaster struct {
	mu     sync.Mutex
	events []parlor.StreamEvent
	notify chan struct{}
}

func newCaptureBroadcaster() *captureBroadcaster {
	return &captureBroadcaster{notify: make(chan struct{}, 16)}
}

func (c *captureBroadcaster) Broadcast(_ string, ev parlor.StreamEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *captureBroadcaster) captured() []parlor.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]parlor.StreamEvent(nil), c.events...)
}

func TestRelayEndToEnd(t *testing.T) {
	queue := NewMemoryQueue(16)
	pubsub := NewMemoryPubSub()
	emitter := NewEmitter(queue, pubsub)
	transport := newCaptureBroadcaster()
	bus := NewBus()

	busCh, busCancel := bus.Subscribe("c1")
	defer busCancel()

	relay := NewRelay(queue, pubsub, transport, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	// Give the chunk subscription a moment to attach before publishing.
	time.Sleep(20 * time.Millisecond)

	emitter.Start(ctx, "b1", "c1", "s1")
	emitter.Chunk("b1", "c1", "hel")
	emitter.Chunk("b1", "c1", "lo")
	emitter.End(ctx, "b1", "c1", "s1", "hello")

	for i := 0; i < 4; i++ {
		select {
		case <-transport.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for relayed event %d", i+1)
		}
	}

	byType := map[parlor.StreamEventType]int{}
	for _, ev := range transport.captured() {
		byType[ev.Type]++
	}
	if byType[parlor.StreamStart] != 1 || byType[parlor.StreamChunk] != 2 || byType[parlor.StreamEnd] != 1 {
		t.Errorf("relayed event counts = %v", byType)
	}

	// The internal bus saw the same traffic for the channel.
	busSeen := 0
	for busSeen < 4 {
		select {
		case <-busCh:
			busSeen++
		case <-time.After(2 * time.Second):
			t.Fatalf("bus received %d events, want 4", busSeen)
		}
	}
}
