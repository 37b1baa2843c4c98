package api

import (
	"sync"

	"routeplan/internal/model"
)

// EventBroker fans plan events out to the stream subscribers of a tenant.
type EventBroker interface {
	Subscribe(tenantID string) chan model.Event
	Unsubscribe(tenantID string, ch chan model.Event)
	Publish(tenantID string, evt model.Event)
}

// Broker is the in-process EventBroker. Slow subscribers miss events rather
// than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Event]struct{} // tenantId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.Event]struct{}{}}
}

func (b *Broker) Subscribe(tenantID string) chan model.Event {
	ch := make(chan model.Event, 8)
	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = map[chan model.Event]struct{}{}
	}
	b.subs[tenantID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(tenantID string, ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[tenantID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, tenantID)
	}
	close(ch)
}

func (b *Broker) Publish(tenantID string, evt model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[tenantID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

var (
	_ EventBroker = (*Broker)(nil)
	_ EventBroker = (*RedisBroker)(nil)
)
