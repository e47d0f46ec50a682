package api

import (
	"sync"
)

// SSEEvent is one broker message; keys are reservation or vehicle ids.
type SSEEvent struct {
	Type string
	Data map[string]any
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // key -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(key string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = map[chan SSEEvent]struct{}{}
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(key string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[key]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, key)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(key string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[key]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
