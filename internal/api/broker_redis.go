package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"loyaltylink/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so stage events reach
// subscribers on every replica, not just the one that processed the webhook.
type RedisBroker struct {
	rdb  *redis.Client
	mu   sync.Mutex
	subs map[chan model.StageEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan model.StageEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(orderRef string) chan model.StageEvent {
	ch := make(chan model.StageEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(orderRef))
	// initial consume to ensure the subscription is active
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.StageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying pubsub; the reader goroutine exits and
// closes the channel.
func (b *RedisBroker) Unsubscribe(orderRef string, ch chan model.StageEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(orderRef string, evt model.StageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(orderRef), data).Err()
	if orderRef != Firehose {
		_ = b.rdb.Publish(ctx, b.chanName(Firehose), data).Err()
	}
}

func (b *RedisBroker) chanName(orderRef string) string { return "order:" + orderRef }
