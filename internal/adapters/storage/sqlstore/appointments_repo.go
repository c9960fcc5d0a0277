package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"petsched/internal/domain/appointments"
)

type AppointmentsRepo struct {
	db *DB
}

func NewAppointmentsRepo(db *DB) *AppointmentsRepo {
	return &AppointmentsRepo{db: db}
}

// Todas las lecturas traen los datos de la mascota vía LEFT JOIN.
const appointmentSelect = `
	SELECT
		a.id, a.pet_id, a.service_type,
		a.appointment_date, a.appointment_time, a.duration_minutes,
		a.notes, a.status, a.clinic_id, a.user_id,
		a.created_at, a.updated_at,
		p.name AS pet_name, p.species AS pet_species,
		p.breed AS pet_breed, p.owner_name AS pet_owner_name
	FROM appointments a
	LEFT JOIN pets p ON p.id = a.pet_id`

type appointmentRow struct {
	ID              string         `db:"id"`
	PetID           string         `db:"pet_id"`
	ServiceType     string         `db:"service_type"`
	Date            string         `db:"appointment_date"`
	Time            string         `db:"appointment_time"`
	DurationMinutes int            `db:"duration_minutes"`
	Notes           sql.NullString `db:"notes"`
	Status          string         `db:"status"`
	ClinicID        sql.NullString `db:"clinic_id"`
	UserID          sql.NullString `db:"user_id"`
	CreatedAt       timestamp      `db:"created_at"`
	UpdatedAt       timestamp      `db:"updated_at"`

	PetName      sql.NullString `db:"pet_name"`
	PetSpecies   sql.NullString `db:"pet_species"`
	PetBreed     sql.NullString `db:"pet_breed"`
	PetOwnerName sql.NullString `db:"pet_owner_name"`
}

func (r appointmentRow) toDomain() appointments.Appointment {
	a := appointments.Appointment{
		ID:              r.ID,
		PetID:           r.PetID,
		ServiceType:     r.ServiceType,
		Date:            r.Date,
		Time:            r.Time,
		DurationMinutes: r.DurationMinutes,
		Status:          appointments.Status(r.Status),
		ClinicID:        r.ClinicID.String,
		UserID:          r.UserID.String,
		CreatedAt:       r.CreatedAt.Time,
		UpdatedAt:       r.UpdatedAt.Time,
	}
	if r.Notes.Valid {
		notes := r.Notes.String
		a.Notes = &notes
	}
	if r.PetName.Valid {
		a.Pet = &appointments.PetSummary{
			Name:      r.PetName.String,
			Species:   r.PetSpecies.String,
			Breed:     r.PetBreed.String,
			OwnerName: r.PetOwnerName.String,
		}
	}
	return a
}

func nullNotes(n *string) any {
	if n == nil {
		return nil
	}
	return *n
}

func (r *AppointmentsRepo) CreateIfFree(ctx context.Context, a appointments.Appointment) error {
	return r.db.WithTx(ctx, func(tx *Tx) error {
		if a.Status != appointments.StatusCancelled {
			taken, err := r.slotTaken(ctx, tx, a.Slot(), "")
			if err != nil {
				return err
			}
			if taken {
				return appointments.ErrConflict
			}
		}

		_, err := tx.Run(ctx, `
			INSERT INTO appointments (
				id, pet_id, service_type,
				appointment_date, appointment_time, duration_minutes,
				notes, status, clinic_id, user_id,
				created_at, updated_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		`,
			a.ID, a.PetID, a.ServiceType,
			a.Date, a.Time, a.DurationMinutes,
			nullNotes(a.Notes), string(a.Status), nullString(a.ClinicID), nullString(a.UserID),
			utc(a.CreatedAt), utc(a.UpdatedAt),
		)
		return r.writeErr(err)
	})
}

func (r *AppointmentsRepo) Update(ctx context.Context, a appointments.Appointment, checkSlot bool) error {
	return r.db.WithTx(ctx, func(tx *Tx) error {
		if checkSlot && a.Status != appointments.StatusCancelled {
			taken, err := r.slotTaken(ctx, tx, a.Slot(), a.ID)
			if err != nil {
				return err
			}
			if taken {
				return appointments.ErrConflict
			}
		}

		res, err := tx.Run(ctx, `
			UPDATE appointments
			SET pet_id = ?, service_type = ?,
			    appointment_date = ?, appointment_time = ?, duration_minutes = ?,
			    notes = ?, status = ?, updated_at = ?
			WHERE id = ?
		`,
			a.PetID, a.ServiceType,
			a.Date, a.Time, a.DurationMinutes,
			nullNotes(a.Notes), string(a.Status), utc(a.UpdatedAt),
			a.ID,
		)
		if err != nil {
			return r.writeErr(err)
		}
		if res.Affected == 0 {
			return appointments.ErrNotFound
		}
		return nil
	})
}

// slotTaken busca otra cita no cancelada en el mismo slot, ignorando excludeID.
func (r *AppointmentsRepo) slotTaken(ctx context.Context, tx *Tx, s appointments.Slot, excludeID string) (bool, error) {
	var n int
	err := tx.Get(ctx, &n, `
		SELECT COUNT(*) FROM appointments
		WHERE pet_id = ? AND appointment_date = ? AND appointment_time = ?
		  AND status <> 'cancelled' AND id <> ?
	`, s.PetID, s.Date, s.Time, excludeID)
	return n > 0, err
}

// writeErr: el índice único cubre la carrera entre el chequeo y el insert.
func (r *AppointmentsRepo) writeErr(err error) error {
	switch {
	case errors.Is(err, ErrUniqueViolation):
		return appointments.ErrConflict
	case errors.Is(err, ErrForeignKeyViolation):
		return appointments.ErrPetNotFound
	default:
		return err
	}
}

func (r *AppointmentsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.Run(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if res.Affected == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func (r *AppointmentsRepo) GetByID(ctx context.Context, id string) (appointments.Appointment, error) {
	var row appointmentRow
	err := r.db.Get(ctx, &row, appointmentSelect+` WHERE a.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return appointments.Appointment{}, appointments.ErrNotFound
	}
	if err != nil {
		return appointments.Appointment{}, err
	}
	return row.toDomain(), nil
}

func (r *AppointmentsRepo) List(ctx context.Context) ([]appointments.Appointment, error) {
	return r.selectAppointments(ctx, appointmentSelect+`
		ORDER BY a.appointment_date DESC, a.appointment_time DESC`)
}

func (r *AppointmentsRepo) ListByPet(ctx context.Context, petID string) ([]appointments.Appointment, error) {
	return r.selectAppointments(ctx, appointmentSelect+`
		WHERE a.pet_id = ?
		ORDER BY a.appointment_date DESC, a.appointment_time DESC`, petID)
}

func (r *AppointmentsRepo) ListActiveBetween(ctx context.Context, from, to string) ([]appointments.Appointment, error) {
	return r.selectAppointments(ctx, appointmentSelect+`
		WHERE a.appointment_date >= ? AND a.appointment_date <= ? AND a.status <> 'cancelled'
		ORDER BY a.appointment_date ASC, a.appointment_time ASC`, from, to)
}

func (r *AppointmentsRepo) selectAppointments(ctx context.Context, query string, args ...any) ([]appointments.Appointment, error) {
	var rows []appointmentRow
	if err := r.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]appointments.Appointment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *AppointmentsRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Get(ctx, &n, `SELECT COUNT(*) FROM appointments`)
	return n, err
}
