package api

import (
	"sync"

	"loyaltylink/internal/model"
)

// EventBroker fans pipeline stage events out to stream subscribers. Keys are
// order references; the firehose key "*" receives every event.
type EventBroker interface {
	Subscribe(orderRef string) chan model.StageEvent
	Unsubscribe(orderRef string, ch chan model.StageEvent)
	Publish(orderRef string, evt model.StageEvent)
}

// Firehose is the subscription key that matches all orders.
const Firehose = "*"

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.StageEvent]struct{} // orderRef -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.StageEvent]struct{}{}}
}

func (b *Broker) Subscribe(orderRef string) chan model.StageEvent {
	ch := make(chan model.StageEvent, 8)
	b.mu.Lock()
	if b.subs[orderRef] == nil {
		b.subs[orderRef] = map[chan model.StageEvent]struct{}{}
	}
	b.subs[orderRef][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(orderRef string, ch chan model.StageEvent) {
	b.mu.Lock()
	if m := b.subs[orderRef]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, orderRef)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish delivers to the order's subscribers and the firehose. Slow
// subscribers are skipped rather than blocking the pipeline.
func (b *Broker) Publish(orderRef string, evt model.StageEvent) {
	b.mu.Lock()
	for ch := range b.subs[orderRef] {
		select {
		case ch <- evt:
		default:
		}
	}
	if orderRef != Firehose {
		for ch := range b.subs[Firehose] {
			select {
			case ch <- evt:
			default:
			}
		}
	}
	b.mu.Unlock()
}
