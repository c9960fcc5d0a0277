package payments

import (
	"context"
	"math"
	"strings"
)

// Tarifas base por hora, en dólares.
var baseRates = map[string]int{
	"checkup":      75,
	"vaccination":  45,
	"surgery":      300,
	"emergency":    150,
	"grooming":     60,
	"dental":       120,
	"consultation": 50,
}

const (
	defaultRate            = 75
	defaultDurationMinutes = 60
	Currency               = "usd"
)

type ServicePrice struct {
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
}

var ServicePricing = map[string]ServicePrice{
	"checkup":      {Name: "Regular Checkup", Price: 75, Duration: 60, Description: "Comprehensive health examination"},
	"vaccination":  {Name: "Vaccination", Price: 45, Duration: 30, Description: "Essential vaccinations"},
	"surgery":      {Name: "Surgery", Price: 300, Duration: 120, Description: "Surgical procedures"},
	"emergency":    {Name: "Emergency Care", Price: 150, Duration: 90, Description: "Urgent medical attention"},
	"grooming":     {Name: "Grooming", Price: 60, Duration: 60, Description: "Pet grooming services"},
	"dental":       {Name: "Dental Care", Price: 120, Duration: 90, Description: "Dental cleaning and care"},
	"consultation": {Name: "Consultation", Price: 50, Duration: 30, Description: "General consultation"},
}

// CalculateCost prorratea la tarifa base del servicio por la duración en minutos.
// Servicios desconocidos usan la tarifa de checkup; duration <= 0 vale una hora.
func CalculateCost(serviceType string, durationMinutes int) int {
	rate, ok := baseRates[strings.ToLower(strings.TrimSpace(serviceType))]
	if !ok {
		rate = defaultRate
	}
	if durationMinutes <= 0 {
		durationMinutes = defaultDurationMinutes
	}
	return int(math.Round(float64(rate) * float64(durationMinutes) / 60))
}

// ToCents convierte dólares a centavos.
func ToCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

type AppointmentRef struct {
	ID          string `json:"id"`
	PetName     string `json:"pet_name"`
	ServiceType string `json:"service_type"`
}

type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"clientSecret,omitempty"`
	Status       string            `json:"status"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type CustomerInput struct {
	ID    string `json:"id"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type PaymentMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int64  `json:"exp_month,omitempty"`
	ExpYear  int64  `json:"exp_year,omitempty"`
}

type Refund struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	AmountCents     int64  `json:"amount"`
	Status          string `json:"status"`
}

// Gateway es el procesador de pagos visto desde payments.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (Intent, error)
	CreatePaymentCustomer(ctx context.Context, in CustomerInput) (Customer, error)
	ListCardPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	// amountCents == 0 reembolsa el total.
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (Refund, error)
}
