package capabilities

import "context"

// Resource es lo que cuenta contra los límites del tier de una clínica.
type Resource string

const (
	ResourcePets         Resource = "pets"
	ResourceAppointments Resource = "appointments"
	ResourceUsers        Resource = "users"
)

// CapacityCheck pregunta si la clínica puede crear un recurso más.
type CapacityCheck struct {
	ClinicID string
	Resource Resource
}

type CapabilitiesResolver interface {
	HasCapacity(ctx context.Context, in CapacityCheck) (bool, error)
}
