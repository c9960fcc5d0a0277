// Package dashboard arma los números de la pantalla principal.
package dashboard

import (
	"context"
	"fmt"

	"petsched/internal/domain/appointments"
	"petsched/internal/domain/pets"
)

const (
	UpcomingDays = 7
	RecentPets   = 5
)

type PetStats interface {
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]pets.Pet, error)
}

type AppointmentStats interface {
	Count(ctx context.Context) (int, error)
	Upcoming(ctx context.Context, days int) ([]appointments.Appointment, error)
}

type Stats struct {
	TotalPets            int
	TotalAppointments    int
	UpcomingAppointments int
	RecentPets           []pets.Pet
}

type Service struct {
	pets  PetStats
	appts AppointmentStats
}

func NewService(p PetStats, a AppointmentStats) *Service {
	return &Service{pets: p, appts: a}
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error

	if st.TotalPets, err = s.pets.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("count pets: %w", err)
	}
	if st.TotalAppointments, err = s.appts.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("count appointments: %w", err)
	}
	upcoming, err := s.appts.Upcoming(ctx, UpcomingDays)
	if err != nil {
		return Stats{}, fmt.Errorf("upcoming appointments: %w", err)
	}
	st.UpcomingAppointments = len(upcoming)

	if st.RecentPets, err = s.pets.Recent(ctx, RecentPets); err != nil {
		return Stats{}, fmt.Errorf("recent pets: %w", err)
	}
	return st, nil
}
