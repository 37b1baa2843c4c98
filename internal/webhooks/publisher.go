package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"routeplan/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Event is the JSON body posted to subscribers.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit queues one delivery per subscription of the tenant to eventType and
// returns how many were queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		return 0, fmt.Errorf("webhooks: subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return 0, fmt.Errorf("webhooks: encode %s: %w", eventType, err)
	}
	queued := 0
	for _, s := range subs {
		id, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
		if err != nil {
			return queued, fmt.Errorf("webhooks: enqueue %s: %w", s.ID, err)
		}
		if id != "" {
			queued++
		}
	}
	return queued, nil
}
