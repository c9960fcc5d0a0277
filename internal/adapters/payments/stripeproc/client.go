// Package stripeproc habla con Stripe. Implementa billing.Gateway y payments.Gateway
// detrás de un circuit breaker.
package stripeproc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/tidwall/gjson"

	"petsched/internal/domain/billing"
	"petsched/internal/domain/payments"
	"petsched/internal/platform/breaker"
	"petsched/internal/platform/httpclient"
)

var (
	ErrNotConfigured = errors.New("stripe is not configured")
	ErrWebhookSecret = errors.New("stripe webhook secret is not configured")
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BreakerTimeout: cuánto queda abierto el breaker antes de probar de nuevo.
	BreakerTimeout time.Duration
	// RequestTimeout acota cada llamada HTTP a Stripe.
	RequestTimeout time.Duration
	// APIURL reemplaza la URL base de Stripe (tests). Vacío => api.stripe.com.
	APIURL string
	// Transport se inyecta en tests.
	Transport http.RoundTripper
}

type Client struct {
	api           *client.API
	webhookSecret string
	cb            *gobreaker.CircuitBreaker
}

var (
	_ billing.Gateway  = (*Client)(nil)
	_ payments.Gateway = (*Client)(nil)
)

// New devuelve un cliente aunque falte la clave: las llamadas fallan con ErrNotConfigured
// y el resto de la API sigue funcionando.
func New(cfg Config, log zerolog.Logger) *Client {
	c := &Client{
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		cb: breaker.New(breaker.Settings{
			Name:         "stripe",
			Timeout:      cfg.BreakerTimeout,
			IsSuccessful: isSuccessful,
		}, log),
	}
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		hc := httpclient.New(httpclient.Options{
			Name:      "stripe",
			Timeout:   cfg.RequestTimeout,
			Transport: cfg.Transport,
		}, log)
		bc := &stripe.BackendConfig{
			HTTPClient:        hc,
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(cfg.APIURL)
		}
		c.api = client.New(key, stripe.NewBackendsWithConfig(bc))
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

// isSuccessful: un 4xx de Stripe es un rechazo de negocio, no una caída del upstream.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500
	}
	return errors.Is(err, ErrNotConfigured)
}

// call corre fn dentro del breaker.
func call[T any](c *Client, fn func(api *client.API) (T, error)) (T, error) {
	var zero T
	if !c.Configured() {
		return zero, ErrNotConfigured
	}
	out, err := c.cb.Execute(func() (interface{}, error) {
		return fn(c.api)
	})
	if err != nil {
		return zero, message(err)
	}
	return out.(T), nil
}

// message deja solo el texto legible del error de Stripe.
func message(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return errors.New(se.Msg)
	}
	return err
}

func params(ctx context.Context) stripe.Params {
	return stripe.Params{Context: ctx}
}

// --- billing.Gateway ---

func (c *Client) CreateCustomer(ctx context.Context, clinic billing.Clinic) (string, error) {
	return call(c, func(api *client.API) (string, error) {
		p := &stripe.CustomerParams{
			Params: params(ctx),
			Email:  optional(clinic.Email),
			Name:   optional(clinic.Name),
		}
		p.AddMetadata("clinic_id", clinic.ID)
		cus, err := api.Customers.New(p)
		if err != nil {
			return "", err
		}
		return cus.ID, nil
	})
}

func (c *Client) AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := call(c, func(api *client.API) (struct{}, error) {
		if _, err := api.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
			Params:   params(ctx),
			Customer: stripe.String(customerID),
		}); err != nil {
			return struct{}{}, err
		}
		_, err := api.Customers.Update(customerID, &stripe.CustomerParams{
			Params: params(ctx),
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		})
		return struct{}{}, err
	})
	return err
}

func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string) (string, error) {
	return call(c, func(api *client.API) (string, error) {
		p := &stripe.SubscriptionParams{
			Params:   params(ctx),
			Customer: stripe.String(customerID),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(priceID)},
			},
			PaymentBehavior: stripe.String("default_incomplete"),
			PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
				SaveDefaultPaymentMethod: stripe.String("on_subscription"),
			},
		}
		p.AddExpand("latest_invoice.payment_intent")
		sub, err := api.Subscriptions.New(p)
		if err != nil {
			return "", err
		}
		return sub.ID, nil
	})
}

func (c *Client) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	_, err := call(c, func(api *client.API) (string, error) {
		sub, err := api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
			Params:            params(ctx),
			CancelAtPeriodEnd: stripe.Bool(true),
		})
		if err != nil {
			return "", err
		}
		return sub.ID, nil
	})
	return err
}

// ParseWebhook verifica la firma y extrae el id de suscripción del objeto del evento.
// En eventos de invoice viene en "subscription"; en los de subscription es el "id" del objeto.
func (c *Client) ParseWebhook(payload []byte, signature string) (billing.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return billing.WebhookEvent{}, ErrWebhookSecret
	}
	ev, err := constructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return billing.WebhookEvent{}, err
	}

	out := billing.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		obj := gjson.ParseBytes(ev.Data.Raw)
		switch {
		case strings.HasPrefix(out.Type, "customer.subscription."):
			out.SubscriptionID = obj.Get("id").String()
		default:
			// subscription puede venir como id o expandido.
			sub := obj.Get("subscription")
			if sub.IsObject() {
				out.SubscriptionID = sub.Get("id").String()
			} else {
				out.SubscriptionID = sub.String()
			}
		}
	}
	return out, nil
}

// --- payments.Gateway ---

func (c *Client) CreatePaymentIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (payments.Intent, error) {
	return call(c, func(api *client.API) (payments.Intent, error) {
		p := &stripe.PaymentIntentParams{
			Params:   params(ctx),
			Amount:   stripe.Int64(amountCents),
			Currency: stripe.String(currency),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		for k, v := range metadata {
			p.AddMetadata(k, v)
		}
		pi, err := api.PaymentIntents.New(p)
		if err != nil {
			return payments.Intent{}, err
		}
		return toIntent(pi), nil
	})
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (payments.Intent, error) {
	return call(c, func(api *client.API) (payments.Intent, error) {
		pi, err := api.PaymentIntents.Get(id, &stripe.PaymentIntentParams{Params: params(ctx)})
		if err != nil {
			return payments.Intent{}, err
		}
		return toIntent(pi), nil
	})
}

func (c *Client) CreatePaymentCustomer(ctx context.Context, in payments.CustomerInput) (payments.Customer, error) {
	return call(c, func(api *client.API) (payments.Customer, error) {
		p := &stripe.CustomerParams{
			Params: params(ctx),
			Email:  stripe.String(in.Email),
			Name:   stripe.String(in.Name),
		}
		if in.ID != "" {
			p.AddMetadata("user_id", in.ID)
		}
		cus, err := api.Customers.New(p)
		if err != nil {
			return payments.Customer{}, err
		}
		return payments.Customer{ID: cus.ID, Email: cus.Email, Name: cus.Name, Metadata: cus.Metadata}, nil
	})
}

func (c *Client) ListCardPaymentMethods(ctx context.Context, customerID string) ([]payments.PaymentMethod, error) {
	return call(c, func(api *client.API) ([]payments.PaymentMethod, error) {
		it := api.PaymentMethods.List(&stripe.PaymentMethodListParams{
			ListParams: stripe.ListParams{Context: ctx},
			Customer:   stripe.String(customerID),
			Type:       stripe.String(string(stripe.PaymentMethodTypeCard)),
		})
		out := make([]payments.PaymentMethod, 0)
		for it.Next() {
			pm := it.PaymentMethod()
			m := payments.PaymentMethod{ID: pm.ID}
			if pm.Card != nil {
				m.Brand = string(pm.Card.Brand)
				m.Last4 = pm.Card.Last4
				m.ExpMonth = pm.Card.ExpMonth
				m.ExpYear = pm.Card.ExpYear
			}
			out = append(out, m)
		}
		return out, it.Err()
	})
}

func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (payments.Refund, error) {
	return call(c, func(api *client.API) (payments.Refund, error) {
		p := &stripe.RefundParams{
			Params:        params(ctx),
			PaymentIntent: stripe.String(paymentIntentID),
		}
		if amountCents > 0 {
			p.Amount = stripe.Int64(amountCents)
		}
		ref, err := api.Refunds.New(p)
		if err != nil {
			return payments.Refund{}, err
		}
		return payments.Refund{
			ID:              ref.ID,
			PaymentIntentID: paymentIntentID,
			AmountCents:     ref.Amount,
			Status:          string(ref.Status),
		}, nil
	})
}

func toIntent(pi *stripe.PaymentIntent) payments.Intent {
	return payments.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return stripe.String(s)
}
