package billing

import (
	"context"
	"time"
)

type Repository interface {
	CreateClinic(ctx context.Context, c Clinic) error
	GetClinic(ctx context.Context, id string) (Clinic, error)

	SetCustomerID(ctx context.Context, clinicID, customerID string, at time.Time) error
	ActivateSubscription(ctx context.Context, clinicID string, tier Tier, subscriptionID string, at time.Time) error
	SetStatus(ctx context.Context, clinicID string, status SubscriptionStatus, at time.Time) error
	// SetStatusBySubscription devuelve cuántas clínicas se actualizaron.
	SetStatusBySubscription(ctx context.Context, subscriptionID string, status SubscriptionStatus, at time.Time) (int64, error)

	Usage(ctx context.Context, clinicID string) (Usage, error)
}

// EventDeduper recuerda los ids de eventos ya procesados.
type EventDeduper interface {
	// Claim devuelve true la primera vez que ve eventID.
	Claim(ctx context.Context, eventID, eventType string) (bool, error)
	// Release libera el id si el procesamiento falló, para que el reintento entre.
	Release(ctx context.Context, eventID string) error
}

// Gateway es el procesador de pagos visto desde billing.
type Gateway interface {
	CreateCustomer(ctx context.Context, c Clinic) (string, error)
	AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, customerID, priceID string) (string, error)
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error
	// ParseWebhook verifica la firma antes de devolver el evento.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
