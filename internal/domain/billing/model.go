package billing

import "time"

type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusSuspended SubscriptionStatus = "suspended"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Unlimited marca un límite sin tope.
const Unlimited = -1

type Limits struct {
	MaxPets         int `json:"maxPets"`
	MaxAppointments int `json:"maxAppointments"`
	MaxUsers        int `json:"maxUsers"`
	MaxLocations    int `json:"maxLocations"`
}

type Plan struct {
	Tier       Tier
	Name       string
	PriceCents int64
	Limits     Limits
}

// TierOrder fija el orden en que se muestran los planes.
var TierOrder = []Tier{TierBasic, TierProfessional, TierEnterprise}

var Plans = map[Tier]Plan{
	TierBasic: {
		Tier: TierBasic, Name: "Basic", PriceCents: 2900,
		Limits: Limits{MaxPets: 100, MaxAppointments: 1000, MaxUsers: 2, MaxLocations: 1},
	},
	TierProfessional: {
		Tier: TierProfessional, Name: "Professional", PriceCents: 7900,
		Limits: Limits{MaxPets: 500, MaxAppointments: 5000, MaxUsers: 5, MaxLocations: 3},
	},
	TierEnterprise: {
		Tier: TierEnterprise, Name: "Enterprise", PriceCents: 19900,
		Limits: Limits{MaxPets: Unlimited, MaxAppointments: Unlimited, MaxUsers: Unlimited, MaxLocations: Unlimited},
	},
}

// PlanFor devuelve el plan del tier; un tier desconocido cae en basic.
func PlanFor(t Tier) Plan {
	if p, ok := Plans[t]; ok {
		return p
	}
	return Plans[TierBasic]
}

// Clinic se crea por fuera de la API; billing solo la lee y actualiza su suscripción.
type Clinic struct {
	ID      string
	Name    string
	Email   string
	Address string
	Phone   string
	Website string

	Tier   Tier
	Status SubscriptionStatus

	CustomerID     string
	SubscriptionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Usage struct {
	Pets         int `json:"pets"`
	Appointments int `json:"appointments"`
	Users        int `json:"users"`
}

// WebhookEvent es lo mínimo que billing necesita de un evento del procesador.
type WebhookEvent struct {
	ID             string
	Type           string
	SubscriptionID string
}

const (
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)
