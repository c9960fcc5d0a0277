package pets

import "time"

// Pet es el paciente de la clínica. Breed, OwnerPhone y PhotoURL son opcionales ("" = NULL).
type Pet struct {
	ID string

	Name    string
	Species string
	Breed   string
	Age     *int

	OwnerName  string
	OwnerPhone string
	PhotoURL   string

	// Se completan desde el token cuando el request viene autenticado.
	ClinicID string
	UserID   string

	CreatedAt time.Time
	UpdatedAt time.Time
}
