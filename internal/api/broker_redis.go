package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"routeplan/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that every API
// replica sees the plans created by the others.
type RedisBroker struct {
	rdb *redis.Client
	log zerolog.Logger

	mu   sync.Mutex
	subs map[chan model.Event]*redis.PubSub
}

func NewRedisBroker(ctx context.Context, url string, log zerolog.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBroker{rdb: rdb, log: log, subs: map[chan model.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(tenantID string) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, chanName(tenantID))
	// wait for the subscription confirmation so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn().Err(err).Str("tenant", tenantID).Msg("redis subscribe")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Warn().Err(err).Msg("redis event decode")
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; ch is closed once its reader
// goroutine drains.
func (b *RedisBroker) Unsubscribe(tenantID string, ch chan model.Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(tenantID string, evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Error().Err(err).Str("event", evt.Type).Msg("redis event encode")
		return
	}
	if err := b.rdb.Publish(ctx, chanName(tenantID), data).Err(); err != nil {
		b.log.Warn().Err(err).Str("tenant", tenantID).Msg("redis publish")
	}
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func chanName(tenantID string) string { return "routeplan:plans:" + tenantID }
