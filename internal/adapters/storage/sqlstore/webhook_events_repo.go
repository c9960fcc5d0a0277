package sqlstore

import (
	"context"
	"time"
)

// WebhookEventsRepo deduplica eventos del procesador con la PK de processed_webhook_events.
// Implementa billing.EventDeduper.
type WebhookEventsRepo struct {
	db  *DB
	now func() time.Time
}

func NewWebhookEventsRepo(db *DB) *WebhookEventsRepo {
	return &WebhookEventsRepo{db: db, now: time.Now}
}

func (r *WebhookEventsRepo) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := r.db.Run(ctx, `
		INSERT INTO processed_webhook_events (event_id, event_type, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, utc(r.now()))
	if err != nil {
		return false, err
	}
	return res.Affected == 1, nil
}

func (r *WebhookEventsRepo) Release(ctx context.Context, eventID string) error {
	_, err := r.db.Run(ctx, `DELETE FROM processed_webhook_events WHERE event_id = ?`, eventID)
	return err
}
