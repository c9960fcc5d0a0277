package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"petsched/internal/domain/users"
)

type UsersRepo struct {
	db *DB
}

func NewUsersRepo(db *DB) *UsersRepo {
	return &UsersRepo{db: db}
}

const userColumns = `
	id, email, password, name, role, clinic_id,
	refresh_token, email_verified, created_at, updated_at`

type userRow struct {
	ID            string         `db:"id"`
	Email         string         `db:"email"`
	Password      string         `db:"password"`
	Name          string         `db:"name"`
	Role          string         `db:"role"`
	ClinicID      sql.NullString `db:"clinic_id"`
	RefreshToken  sql.NullString `db:"refresh_token"`
	EmailVerified bool           `db:"email_verified"`
	CreatedAt     timestamp      `db:"created_at"`
	UpdatedAt     timestamp      `db:"updated_at"`
}

func (r userRow) toDomain() users.User {
	return users.User{
		ID:            r.ID,
		Email:         r.Email,
		PasswordHash:  r.Password,
		Name:          r.Name,
		Role:          r.Role,
		ClinicID:      r.ClinicID.String,
		RefreshToken:  r.RefreshToken.String,
		EmailVerified: r.EmailVerified,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
}

func (r *UsersRepo) Create(ctx context.Context, u users.User) error {
	_, err := r.db.Run(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, nullString(u.ClinicID),
		nullString(u.RefreshToken), u.EmailVerified, utc(u.CreatedAt), utc(u.UpdatedAt),
	)
	if errors.Is(err, ErrUniqueViolation) {
		return users.ErrEmailTaken
	}
	return err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UsersRepo) GetByRefreshToken(ctx context.Context, id, token string) (users.User, error) {
	if token == "" {
		return users.User{}, users.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? AND refresh_token = ?`, id, token)
}

func (r *UsersRepo) getOne(ctx context.Context, query string, args ...any) (users.User, error) {
	var row userRow
	err := r.db.Get(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	if err != nil {
		return users.User{}, err
	}
	return row.toDomain(), nil
}

func (r *UsersRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, `UPDATE users SET refresh_token = ? WHERE id = ?`, nullString(token), id)
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, u users.User) error {
	return r.exec(ctx, `UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ?`,
		u.Name, u.Email, utc(u.UpdatedAt), u.ID)
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, u users.User) error {
	return r.exec(ctx, `UPDATE users SET password = ?, updated_at = ? WHERE id = ?`,
		u.PasswordHash, utc(u.UpdatedAt), u.ID)
}

func (r *UsersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.Run(ctx, query, args...)
	if errors.Is(err, ErrUniqueViolation) {
		return users.ErrEmailTaken
	}
	if err != nil {
		return err
	}
	if res.Affected == 0 {
		return users.ErrNotFound
	}
	return nil
}
