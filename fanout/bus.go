package fanout

import (
	"sync"

	"github.com/parlorchat/parlor"
)

// Bus is an in-process event bus keyed by channel id, letting listeners other
// than the websocket hub (e.g. an HTTP long-lived stream endpoint) observe
// relayed stream events. Delivery is non-blocking; slow listeners lose events.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan parlor.StreamEvent]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan parlor.StreamEvent]struct{})}
}

// Subscribe registers a listener for one channel's stream events.
func (b *Bus) Subscribe(channelID string) (<-chan parlor.StreamEvent, func()) {
	ch := make(chan parlor.StreamEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[channelID] == nil {
		b.subs[channelID] = make(map[chan parlor.StreamEvent]struct{})
	}
	b.subs[channelID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channelID], ch)
			if len(b.subs[channelID]) == 0 {
				delete(b.subs, channelID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to the channel's listeners.
func (b *Bus) Publish(ev parlor.StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.ChannelID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
