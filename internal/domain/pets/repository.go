package pets

import "context"

type Repository interface {
	Create(ctx context.Context, p Pet) error
	Update(ctx context.Context, p Pet) error
	GetByID(ctx context.Context, id string) (Pet, error)
	List(ctx context.Context) ([]Pet, error)
	ListRecent(ctx context.Context, limit int) ([]Pet, error)
	Count(ctx context.Context) (int, error)

	// DeleteIfUnreferenced borra la mascota solo si ninguna cita la referencia.
	// Chequeo y borrado van en la misma transacción.
	// Errores: ErrNotFound, ErrHasAppointments.
	DeleteIfUnreferenced(ctx context.Context, id string) error
}
