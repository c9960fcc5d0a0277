package auth

// Roles soportados por el sistema.
const (
	RoleAdmin  = "admin"
	RoleVet    = "vet"
	RoleClient = "client"
)

// Claims representa la información extraída del access token.
type Claims struct {
	UserID   string
	Email    string
	Role     string
	ClinicID string // vacío si el usuario no pertenece a una clínica
}

// HasRole indica si el rol de los claims está en la allow-list.
func (c Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}
