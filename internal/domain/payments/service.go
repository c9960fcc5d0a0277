package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotCompleted: el intent existe pero todavía no se cobró.
	ErrNotCompleted = errors.New("payment not completed")
	ErrUpstream     = errors.New("payment processor error")
)

type Service struct {
	gateway Gateway
}

func NewService(gateway Gateway) *Service {
	return &Service{gateway: gateway}
}

func (s *Service) Pricing() map[string]ServicePrice {
	out := make(map[string]ServicePrice, len(ServicePricing))
	for k, v := range ServicePricing {
		out[k] = v
	}
	return out
}

type IntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (s *Service) CreateIntent(ctx context.Context, appt AppointmentRef, amount float64) (IntentResult, error) {
	if strings.TrimSpace(appt.ID) == "" || amount <= 0 {
		return IntentResult{}, fmt.Errorf("%w: Appointment and amount are required", ErrInvalidInput)
	}

	in, err := s.gateway.CreatePaymentIntent(ctx, ToCents(amount), Currency, map[string]string{
		"appointment_id": appt.ID,
		"pet_name":       appt.PetName,
		"service_type":   appt.ServiceType,
	})
	if err != nil {
		return IntentResult{}, upstream(err)
	}
	return IntentResult{ClientSecret: in.ClientSecret, PaymentIntentID: in.ID}, nil
}

// Confirm sólo acepta intents en estado succeeded.
func (s *Service) Confirm(ctx context.Context, paymentIntentID string) (Intent, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return Intent{}, fmt.Errorf("%w: Payment intent ID is required", ErrInvalidInput)
	}

	in, err := s.gateway.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return Intent{}, upstream(err)
	}
	if in.Status != "succeeded" {
		return in, ErrNotCompleted
	}
	return in, nil
}

func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Name == "" {
		return Customer{}, fmt.Errorf("%w: User email and name are required", ErrInvalidInput)
	}

	c, err := s.gateway.CreatePaymentCustomer(ctx, in)
	if err != nil {
		return Customer{}, upstream(err)
	}
	return c, nil
}

func (s *Service) PaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}

	pms, err := s.gateway.ListCardPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, upstream(err)
	}
	if pms == nil {
		pms = []PaymentMethod{}
	}
	return pms, nil
}

func (s *Service) Refund(ctx context.Context, paymentIntentID string, amount float64) (Refund, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" || amount <= 0 {
		return Refund{}, fmt.Errorf("%w: Payment intent ID and amount are required", ErrInvalidInput)
	}

	ref, err := s.gateway.CreateRefund(ctx, paymentIntentID, ToCents(amount))
	if err != nil {
		return Refund{}, upstream(err)
	}
	return ref, nil
}

type CostQuote struct {
	ServiceType string `json:"serviceType"`
	Duration    int    `json:"duration"`
	Cost        int    `json:"cost"`
}

func (s *Service) Quote(serviceType string, duration int) (CostQuote, error) {
	if strings.TrimSpace(serviceType) == "" {
		return CostQuote{}, fmt.Errorf("%w: Service type is required", ErrInvalidInput)
	}
	if duration <= 0 {
		duration = defaultDurationMinutes
	}
	return CostQuote{ServiceType: serviceType, Duration: duration, Cost: CalculateCost(serviceType, duration)}, nil
}

func upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
