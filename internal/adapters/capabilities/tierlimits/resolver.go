// Package tierlimits decide si una clínica puede crear un recurso más según los
// límites de su tier.
package tierlimits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"petsched/internal/domain/billing"
	"petsched/internal/ports/capabilities"
)

// ClinicUsage es lo que el resolver necesita del repositorio de billing.
type ClinicUsage interface {
	GetClinic(ctx context.Context, id string) (billing.Clinic, error)
	Usage(ctx context.Context, clinicID string) (billing.Usage, error)
}

type Resolver struct {
	clinics  ClinicUsage
	allowAll bool
}

// NewResolver crea un resolver. Con allowAll todo devuelve true sin consultar la base.
func NewResolver(clinics ClinicUsage, allowAll bool) *Resolver {
	return &Resolver{clinics: clinics, allowAll: allowAll}
}

var _ capabilities.CapabilitiesResolver = (*Resolver)(nil)

// HasCapacity compara el uso actual con el límite del plan.
// Una clínica que no existe en la tabla no tiene plan que hacer cumplir.
func (r *Resolver) HasCapacity(ctx context.Context, in capabilities.CapacityCheck) (bool, error) {
	if r.allowAll {
		return true, nil
	}
	clinicID := strings.TrimSpace(in.ClinicID)
	if clinicID == "" || r.clinics == nil {
		return true, nil
	}

	c, err := r.clinics.GetClinic(ctx, clinicID)
	if errors.Is(err, billing.ErrClinicNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	limits := billing.PlanFor(c.Tier).Limits
	var limit int
	switch in.Resource {
	case capabilities.ResourcePets:
		limit = limits.MaxPets
	case capabilities.ResourceAppointments:
		limit = limits.MaxAppointments
	case capabilities.ResourceUsers:
		limit = limits.MaxUsers
	default:
		return false, fmt.Errorf("unknown resource %q", in.Resource)
	}
	if limit == billing.Unlimited {
		return true, nil
	}

	usage, err := r.clinics.Usage(ctx, clinicID)
	if err != nil {
		return false, err
	}

	var used int
	switch in.Resource {
	case capabilities.ResourcePets:
		used = usage.Pets
	case capabilities.ResourceAppointments:
		used = usage.Appointments
	case capabilities.ResourceUsers:
		used = usage.Users
	}
	return used < limit, nil
}
