package appointments

import "time"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultDurationMinutes = 60
)

// Status de la cita. Se puede sobrescribir libremente entre estos tres valores.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Appointment usa fecha y hora locales como texto (sin zona horaria).
type Appointment struct {
	ID    string
	PetID string

	ServiceType     string
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	DurationMinutes int
	Notes           *string // nil = sin notas; "" = notas borradas explícitamente
	Status          Status

	ClinicID string
	UserID   string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Pet viene del LEFT JOIN; nil si la mascota ya no existe.
	Pet *PetSummary
}

type PetSummary struct {
	Name      string
	Species   string
	Breed     string
	OwnerName string
}

// Slot es la terna que no puede repetirse entre citas no canceladas.
type Slot struct {
	PetID string
	Date  string
	Time  string
}

func (a Appointment) Slot() Slot {
	return Slot{PetID: a.PetID, Date: a.Date, Time: a.Time}
}

// Recipient de los emails de la cita.
type Recipient struct {
	Name  string
	Email string
}
