package users

import "context"

type Repository interface {
	// Create falla con ErrEmailTaken si el email ya existe (índice único).
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)

	// SetRefreshToken guarda el único refresh token activo; "" lo borra.
	SetRefreshToken(ctx context.Context, id, token string) error
	// GetByRefreshToken busca al usuario solo si token coincide con el guardado.
	GetByRefreshToken(ctx context.Context, id, token string) (User, error)

	UpdateProfile(ctx context.Context, u User) error
	UpdatePassword(ctx context.Context, u User) error
}
