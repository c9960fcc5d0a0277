package appointments

import "context"

type Repository interface {
	// CreateIfFree inserta la cita si no existe otra no cancelada en el mismo Slot.
	// Chequeo e insert van en la misma transacción; un índice único parcial cubre la carrera.
	// Errores: ErrConflict.
	CreateIfFree(ctx context.Context, a Appointment) error

	// Update sobrescribe la fila. Con checkSlot re-chequea el Slot excluyendo a.ID.
	// Errores: ErrNotFound, ErrConflict.
	Update(ctx context.Context, a Appointment, checkSlot bool) error

	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Appointment, error)

	// List y ListByPet ordenan por fecha y hora descendente.
	List(ctx context.Context) ([]Appointment, error)
	ListByPet(ctx context.Context, petID string) ([]Appointment, error)

	// ListActiveBetween: citas no canceladas con fecha en [from, to], ascendente.
	ListActiveBetween(ctx context.Context, from, to string) ([]Appointment, error)

	Count(ctx context.Context) (int, error)
}
