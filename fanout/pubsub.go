package fanout

import (
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. A slow subscriber
// whose buffer fills loses chunks instead of slowing the publisher.
const subscriberBuffer = 256

// MemoryPubSub is a single-node PubSub: topic fan-out to in-process
// subscribers with non-blocking, lossy delivery.
type MemoryPubSub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// NewMemoryPubSub creates an empty pub/sub bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish delivers data to every current subscriber of topic. Subscribers
// with full buffers are skipped.
func (p *MemoryPubSub) Publish(topic string, data []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for ch := range p.subs[topic] {
		select {
		case ch <- data:
		default:
			// Backpressure: drop for this subscriber.
		}
	}
}

// Subscribe registers a subscriber for topic.
func (p *MemoryPubSub) Subscribe(topic string) (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	p.mu.Lock()
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[chan []byte]struct{})
	}
	p.subs[topic][ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[topic], ch)
			if len(p.subs[topic]) == 0 {
				delete(p.subs, topic)
			}
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

var _ PubSub = (*MemoryPubSub)(nil)
