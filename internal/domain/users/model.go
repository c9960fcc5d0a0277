package users

import "time"

// User nunca se serializa directo: PasswordHash y RefreshToken no salen del servicio.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	ClinicID     string

	RefreshToken  string
	EmailVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session es lo que devuelve login.
type Session struct {
	User         User
	Token        string
	RefreshToken string
}

type Tokens struct {
	Token        string
	RefreshToken string
}
