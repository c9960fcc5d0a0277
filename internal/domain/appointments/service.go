package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"petsched/internal/platform/metrics"
	"petsched/internal/ports/capabilities"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("appointment not found")
	ErrPetNotFound  = errors.New("pet not found")
	ErrConflict     = errors.New("scheduling conflict")
	ErrLimitReached = errors.New("tier appointment limit reached")
)

// PetLookup evita importar el paquete pets completo.
type PetLookup interface {
	Exists(ctx context.Context, petID string) (bool, error)
}

// Notifier manda la confirmación de la cita. Best-effort: un error no falla el request.
type Notifier interface {
	AppointmentBooked(ctx context.Context, a Appointment, to Recipient) error
}

type Service struct {
	repo     Repository
	pets     PetLookup
	caps     capabilities.CapabilitiesResolver
	notifier Notifier
	now      func() time.Time
}

// NewService: caps y notifier pueden ser nil.
func NewService(repo Repository, pets PetLookup, caps capabilities.CapabilitiesResolver, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		pets:     pets,
		caps:     caps,
		notifier: notifier,
		now:      time.Now,
	}
}

type CreateInput struct {
	PetID           string
	ServiceType     string
	Date            string
	Time            string
	DurationMinutes *int
	Notes           *string
	Status          *Status

	ClinicID string
	UserID   string

	// NotifyTo: si viene email se manda la confirmación.
	NotifyTo Recipient
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Appointment, error) {
	a := Appointment{
		PetID:           strings.TrimSpace(in.PetID),
		ServiceType:     strings.TrimSpace(in.ServiceType),
		Date:            strings.TrimSpace(in.Date),
		Time:            strings.TrimSpace(in.Time),
		DurationMinutes: DefaultDurationMinutes,
		Notes:           in.Notes,
		Status:          StatusScheduled,
		ClinicID:        strings.TrimSpace(in.ClinicID),
		UserID:          strings.TrimSpace(in.UserID),
	}
	if a.PetID == "" || a.ServiceType == "" || a.Date == "" || a.Time == "" {
		return Appointment{}, fmt.Errorf("%w: pet_id, service_type, appointment_date and appointment_time are required", ErrInvalidInput)
	}
	if in.DurationMinutes != nil {
		a.DurationMinutes = *in.DurationMinutes
	}
	if in.Status != nil {
		a.Status = *in.Status
	}
	if err := validate(a); err != nil {
		return Appointment{}, err
	}

	if err := s.requirePet(ctx, a.PetID); err != nil {
		return Appointment{}, err
	}
	if err := s.checkCapacity(ctx, a.ClinicID); err != nil {
		return Appointment{}, err
	}

	now := s.now()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.repo.CreateIfFree(ctx, a); err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.AppointmentConflictsTotal.Inc()
		}
		return Appointment{}, err
	}
	metrics.AppointmentsCreatedTotal.WithLabelValues(strings.ToLower(a.ServiceType)).Inc()

	created, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return Appointment{}, err
	}

	s.notify(ctx, created, in.NotifyTo)
	return created, nil
}

func (s *Service) notify(ctx context.Context, a Appointment, to Recipient) {
	if s.notifier == nil || strings.TrimSpace(to.Email) == "" {
		return
	}
	if err := s.notifier.AppointmentBooked(ctx, a, to); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("appointment_id", a.ID).Msg("appointment confirmation email failed")
	}
}

func (s *Service) requirePet(ctx context.Context, petID string) error {
	ok, err := s.pets.Exists(ctx, petID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPetNotFound
	}
	return nil
}

func (s *Service) checkCapacity(ctx context.Context, clinicID string) error {
	if s.caps == nil || clinicID == "" {
		return nil
	}
	ok, err := s.caps.HasCapacity(ctx, capabilities.CapacityCheck{
		ClinicID: clinicID,
		Resource: capabilities.ResourceAppointments,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrLimitReached
	}
	return nil
}

// NotesPatch distingue "no enviado" de null y de "".
type NotesPatch struct {
	Present bool
	Value   *string
}

// UpdateInput: nil, "" o 0 = conservar valor actual. Notes es la excepción.
type UpdateInput struct {
	PetID           *string
	ServiceType     *string
	Date            *string
	Time            *string
	DurationMinutes *int
	Notes           NotesPatch
	Status          *Status
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Appointment, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	next := current

	if petID := trimmed(in.PetID); petID != "" && petID != current.PetID {
		if err := s.requirePet(ctx, petID); err != nil {
			return Appointment{}, err
		}
		next.PetID = petID
	}
	if v := trimmed(in.ServiceType); v != "" {
		next.ServiceType = v
	}
	if v := trimmed(in.Date); v != "" {
		next.Date = v
	}
	if v := trimmed(in.Time); v != "" {
		next.Time = v
	}
	if in.DurationMinutes != nil && *in.DurationMinutes != 0 {
		next.DurationMinutes = *in.DurationMinutes
	}
	if in.Notes.Present {
		next.Notes = in.Notes.Value
	}
	if in.Status != nil && *in.Status != "" {
		next.Status = *in.Status
	}

	if err := validate(next); err != nil {
		return Appointment{}, err
	}

	// Solo se re-chequea el slot si cambió la terna o si una cita cancelada vuelve a activarse.
	slotChanged := next.Slot() != current.Slot() ||
		(current.Status == StatusCancelled && next.Status != StatusCancelled)
	next.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, next, slotChanged); err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.AppointmentConflictsTotal.Inc()
		}
		return Appointment{}, err
	}

	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) GetByID(ctx context.Context, id string) (Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return Appointment{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Appointment, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByPet(ctx context.Context, petID string) ([]Appointment, error) {
	return s.repo.ListByPet(ctx, strings.TrimSpace(petID))
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Upcoming devuelve las citas no canceladas desde hoy hasta hoy+days (fecha local del server).
func (s *Service) Upcoming(ctx context.Context, days int) ([]Appointment, error) {
	if days <= 0 {
		days = 7
	}
	today := s.now()
	return s.repo.ListActiveBetween(ctx, today.Format(DateLayout), today.AddDate(0, 0, days).Format(DateLayout))
}

// OnDate devuelve las citas no canceladas de un día (lo usa el job de recordatorios).
func (s *Service) OnDate(ctx context.Context, day time.Time) ([]Appointment, error) {
	d := day.Format(DateLayout)
	return s.repo.ListActiveBetween(ctx, d, d)
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func validate(a Appointment) error {
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return fmt.Errorf("%w: appointment_date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if _, err := time.Parse(TimeLayout, a.Time); err != nil {
		return fmt.Errorf("%w: appointment_time must be HH:MM", ErrInvalidInput)
	}
	if a.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidInput)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: status must be scheduled, completed or cancelled", ErrInvalidInput)
	}
	return nil
}
