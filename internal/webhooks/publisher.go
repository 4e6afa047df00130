package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shiproute/internal/store"
)

type Publisher struct {
	Store store.Store
	Log   zerolog.Logger
}

func NewPublisher(s store.Store, log zerolog.Logger) *Publisher {
	return &Publisher{Store: s, Log: log}
}

// Envelope is the JSON body POSTed to subscribers.
type Envelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit queues one delivery per subscription of tenantID to eventType and
// returns how many were queued. Failures are logged, never returned to the
// caller's request path.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		p.Log.Error().Err(err).Str("tenant", tenantID).Str("event", eventType).Msg("webhook subscriptions lookup failed")
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	body, err := json.Marshal(Envelope{
		ID:       "evt_" + uuid.New().String(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		p.Log.Error().Err(err).Str("event", eventType).Msg("webhook payload encode failed")
		return 0
	}
	queued := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn().Err(err).Str("subscription", s.ID).Msg("webhook enqueue failed")
			continue
		}
		queued++
	}
	return queued
}
