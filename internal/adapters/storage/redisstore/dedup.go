package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 72 * time.Hour

// WebhookDedup implementa billing.EventDeduper con SETNX.
// Stripe reintenta hasta tres días; el TTL cubre esa ventana.
type WebhookDedup struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewWebhookDedup(client redis.Cmdable, ttl time.Duration) *WebhookDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &WebhookDedup{client: client, ttl: ttl}
}

func (d *WebhookDedup) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(eventID), eventType, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("webhook dedup claim: %w", err)
	}
	return ok, nil
}

func (d *WebhookDedup) Release(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, d.key(eventID)).Err(); err != nil {
		return fmt.Errorf("webhook dedup release: %w", err)
	}
	return nil
}

func (d *WebhookDedup) key(eventID string) string {
	return "webhook:event:" + eventID
}
