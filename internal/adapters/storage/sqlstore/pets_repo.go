package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"petsched/internal/domain/pets"
)

type PetsRepo struct {
	db *DB
}

func NewPetsRepo(db *DB) *PetsRepo {
	return &PetsRepo{db: db}
}

const petColumns = `
	id, name, species, breed, age,
	owner_name, owner_phone, photo_url,
	clinic_id, user_id,
	created_at, updated_at`

type petRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	Species    string         `db:"species"`
	Breed      sql.NullString `db:"breed"`
	Age        sql.NullInt64  `db:"age"`
	OwnerName  string         `db:"owner_name"`
	OwnerPhone sql.NullString `db:"owner_phone"`
	PhotoURL   sql.NullString `db:"photo_url"`
	ClinicID   sql.NullString `db:"clinic_id"`
	UserID     sql.NullString `db:"user_id"`
	CreatedAt  timestamp      `db:"created_at"`
	UpdatedAt  timestamp      `db:"updated_at"`
}

func (r petRow) toDomain() pets.Pet {
	p := pets.Pet{
		ID:         r.ID,
		Name:       r.Name,
		Species:    r.Species,
		Breed:      r.Breed.String,
		OwnerName:  r.OwnerName,
		OwnerPhone: r.OwnerPhone.String,
		PhotoURL:   r.PhotoURL.String,
		ClinicID:   r.ClinicID.String,
		UserID:     r.UserID.String,
		CreatedAt:  r.CreatedAt.Time,
		UpdatedAt:  r.UpdatedAt.Time,
	}
	if r.Age.Valid {
		age := int(r.Age.Int64)
		p.Age = &age
	}
	return p
}

func nullAge(age *int) any {
	if age == nil {
		return nil
	}
	return *age
}

func (r *PetsRepo) Create(ctx context.Context, p pets.Pet) error {
	_, err := r.db.Run(ctx, `
		INSERT INTO pets (`+petColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		p.ID, p.Name, p.Species, nullString(p.Breed), nullAge(p.Age),
		p.OwnerName, nullString(p.OwnerPhone), nullString(p.PhotoURL),
		nullString(p.ClinicID), nullString(p.UserID),
		utc(p.CreatedAt), utc(p.UpdatedAt),
	)
	return err
}

func (r *PetsRepo) Update(ctx context.Context, p pets.Pet) error {
	res, err := r.db.Run(ctx, `
		UPDATE pets
		SET name = ?, species = ?, breed = ?, age = ?,
		    owner_name = ?, owner_phone = ?, photo_url = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		p.Name, p.Species, nullString(p.Breed), nullAge(p.Age),
		p.OwnerName, nullString(p.OwnerPhone), nullString(p.PhotoURL),
		utc(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return err
	}
	if res.Affected == 0 {
		return pets.ErrNotFound
	}
	return nil
}

func (r *PetsRepo) GetByID(ctx context.Context, id string) (pets.Pet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return pets.Pet{}, pets.ErrNotFound
	}

	var row petRow
	err := r.db.Get(ctx, &row, `SELECT `+petColumns+` FROM pets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return pets.Pet{}, pets.ErrNotFound
	}
	if err != nil {
		return pets.Pet{}, err
	}
	return row.toDomain(), nil
}

func (r *PetsRepo) List(ctx context.Context) ([]pets.Pet, error) {
	return r.selectPets(ctx, `SELECT `+petColumns+` FROM pets ORDER BY created_at DESC, id`)
}

func (r *PetsRepo) ListRecent(ctx context.Context, limit int) ([]pets.Pet, error) {
	return r.selectPets(ctx, `SELECT `+petColumns+` FROM pets ORDER BY created_at DESC, id LIMIT ?`, limit)
}

func (r *PetsRepo) selectPets(ctx context.Context, query string, args ...any) ([]pets.Pet, error) {
	var rows []petRow
	if err := r.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]pets.Pet, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *PetsRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Get(ctx, &n, `SELECT COUNT(*) FROM pets`)
	return n, err
}

func (r *PetsRepo) DeleteIfUnreferenced(ctx context.Context, id string) error {
	return r.db.WithTx(ctx, func(tx *Tx) error {
		var refs int
		if err := tx.Get(ctx, &refs, `SELECT COUNT(*) FROM appointments WHERE pet_id = ?`, id); err != nil {
			return err
		}
		if refs > 0 {
			return pets.ErrHasAppointments
		}

		res, err := tx.Run(ctx, `DELETE FROM pets WHERE id = ?`, id)
		if errors.Is(err, ErrForeignKeyViolation) {
			return pets.ErrHasAppointments
		}
		if err != nil {
			return err
		}
		if res.Affected == 0 {
			return pets.ErrNotFound
		}
		return nil
	})
}
