package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"petsched/internal/platform/metrics"
)

var (
	ErrInvalidTier      = errors.New("invalid tier")
	ErrInvalidInput     = errors.New("invalid input")
	ErrClinicNotFound   = errors.New("clinic not found")
	ErrNoSubscription   = errors.New("no active subscription")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	// ErrUpstream envuelve fallas del procesador de pagos; el mensaje del procesador se conserva.
	ErrUpstream = errors.New("payment processor error")
)

type Service struct {
	repo     Repository
	gateway  Gateway
	dedup    EventDeduper
	priceIDs map[Tier]string
	now      func() time.Time
}

func NewService(repo Repository, gateway Gateway, dedup EventDeduper, priceIDs map[Tier]string) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		dedup:    dedup,
		priceIDs: priceIDs,
		now:      time.Now,
	}
}

type PlanView struct {
	Tier     Tier    `json:"tier"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"` // dólares
	Features Limits  `json:"features"`
}

func (s *Service) Pricing() []PlanView {
	out := make([]PlanView, 0, len(TierOrder))
	for _, t := range TierOrder {
		p := Plans[t]
		out = append(out, PlanView{
			Tier:     p.Tier,
			Name:     p.Name,
			Price:    float64(p.PriceCents) / 100,
			Features: p.Limits,
		})
	}
	return out
}

type SubscriptionView struct {
	Tier     Tier               `json:"tier"`
	Status   SubscriptionStatus `json:"status"`
	Features Limits             `json:"features"`
	Usage    Usage              `json:"usage"`
	Limits   Limits             `json:"limits"`
}

func (s *Service) Subscription(ctx context.Context, clinicID string) (SubscriptionView, error) {
	c, err := s.clinic(ctx, clinicID)
	if err != nil {
		return SubscriptionView{}, err
	}

	usage, err := s.repo.Usage(ctx, c.ID)
	if err != nil {
		return SubscriptionView{}, err
	}

	plan := PlanFor(c.Tier)
	return SubscriptionView{
		Tier:     plan.Tier,
		Status:   c.Status,
		Features: plan.Limits,
		Usage:    usage,
		Limits:   plan.Limits,
	}, nil
}

type SubscriptionResult struct {
	SubscriptionID string             `json:"subscriptionId"`
	Tier           Tier               `json:"tier"`
	Status         SubscriptionStatus `json:"status"`
}

func (s *Service) CreateSubscription(ctx context.Context, clinicID string, tier Tier, paymentMethodID string) (SubscriptionResult, error) {
	if _, ok := Plans[tier]; !ok {
		return SubscriptionResult{}, ErrInvalidTier
	}
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return SubscriptionResult{}, fmt.Errorf("%w: paymentMethodId is required", ErrInvalidInput)
	}

	c, err := s.clinic(ctx, clinicID)
	if err != nil {
		return SubscriptionResult{}, err
	}

	customerID := c.CustomerID
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, c)
		if err != nil {
			return SubscriptionResult{}, upstream(err)
		}
		if err := s.repo.SetCustomerID(ctx, c.ID, customerID, s.now()); err != nil {
			return SubscriptionResult{}, err
		}
	}

	if err := s.gateway.AttachDefaultPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		return SubscriptionResult{}, upstream(err)
	}

	priceID := s.priceIDs[tier]
	if priceID == "" {
		priceID = "price_" + string(tier)
	}
	subID, err := s.gateway.CreateSubscription(ctx, customerID, priceID)
	if err != nil {
		return SubscriptionResult{}, upstream(err)
	}

	if err := s.repo.ActivateSubscription(ctx, c.ID, tier, subID, s.now()); err != nil {
		return SubscriptionResult{}, err
	}

	return SubscriptionResult{SubscriptionID: subID, Tier: tier, Status: StatusActive}, nil
}

func (s *Service) CancelSubscription(ctx context.Context, clinicID string) error {
	c, err := s.clinic(ctx, clinicID)
	if err != nil {
		return err
	}
	if c.SubscriptionID == "" {
		return ErrNoSubscription
	}

	if err := s.gateway.CancelSubscriptionAtPeriodEnd(ctx, c.SubscriptionID); err != nil {
		return upstream(err)
	}
	return s.repo.SetStatus(ctx, c.ID, StatusCancelled, s.now())
}

type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Applied   bool
}

// HandleWebhook verifica la firma (sin tocar estado si falla), deduplica por event id
// y aplica el cambio de estado de la suscripción.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	res := WebhookResult{EventID: ev.ID, EventType: ev.Type}

	if s.dedup != nil && ev.ID != "" {
		first, err := s.dedup.Claim(ctx, ev.ID, ev.Type)
		if err != nil {
			return res, err
		}
		if !first {
			res.Duplicate = true
			metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
			return res, nil
		}
	}

	applied, err := s.apply(ctx, ev)
	if err != nil {
		if s.dedup != nil && ev.ID != "" {
			if rerr := s.dedup.Release(ctx, ev.ID); rerr != nil {
				zerolog.Ctx(ctx).Error().Err(rerr).Str("event_id", ev.ID).Msg("release webhook event claim")
			}
		}
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return res, err
	}

	res.Applied = applied
	result := "ignored"
	if applied {
		result = "applied"
	}
	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, result).Inc()
	return res, nil
}

func (s *Service) apply(ctx context.Context, ev WebhookEvent) (bool, error) {
	var status SubscriptionStatus
	switch ev.Type {
	case EventPaymentSucceeded:
		status = StatusActive
	case EventPaymentFailed:
		status = StatusSuspended
	case EventSubscriptionDeleted:
		status = StatusCancelled
	default:
		zerolog.Ctx(ctx).Info().Str("event_type", ev.Type).Msg("unhandled webhook event type")
		return false, nil
	}

	if ev.SubscriptionID == "" {
		return false, nil
	}
	n, err := s.repo.SetStatusBySubscription(ctx, ev.SubscriptionID, status, s.now())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) clinic(ctx context.Context, clinicID string) (Clinic, error) {
	if strings.TrimSpace(clinicID) == "" {
		return Clinic{}, ErrClinicNotFound
	}
	return s.repo.GetClinic(ctx, clinicID)
}

func upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
