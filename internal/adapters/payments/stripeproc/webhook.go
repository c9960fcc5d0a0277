package stripeproc

import (
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// constructEvent valida Stripe-Signature (HMAC + tolerancia de timestamp).
// La versión de API del evento puede no coincidir con la de la librería; solo se leen
// id, type y data.object.
func constructEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
