package sqlstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petsched/internal/domain/appointments"
	"petsched/internal/domain/billing"
	"petsched/internal/domain/pets"
	"petsched/internal/domain/users"
)

// newTestDB abre una base SQLite en memoria, propia de cada test, con las migraciones aplicadas.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	opts := Options{Backend: BackendSQLite, DSN: "file:" + name + "?mode=memory&cache=shared"}

	db, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(opts, zerolog.Nop()))
	return db
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return &DB{x: sqlx.NewDb(raw, "pgx"), d: postgresDialect{}}, mock
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func seedPet(t *testing.T, repo *PetsRepo, id, name string) pets.Pet {
	t.Helper()
	age := 3
	p := pets.Pet{
		ID: id, Name: name, Species: "Dog", Breed: "Labrador", Age: &age,
		OwnerName: "John Doe", CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestPetsRepo_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewPetsRepo(db)
	ctx := context.Background()

	seedPet(t, repo, "p1", "Rex")

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Rex", got.Name)
	assert.Equal(t, "Labrador", got.Breed)
	require.NotNil(t, got.Age)
	assert.Equal(t, 3, *got.Age)
	assert.Empty(t, got.OwnerPhone)
	assert.True(t, got.CreatedAt.Equal(t0))

	got.Name = "Rexy"
	got.Age = nil
	got.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Rexy", got.Name)
	assert.Nil(t, got.Age)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, pets.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, pets.Pet{ID: "missing"}), pets.ErrNotFound)
}

func TestPetsRepo_ListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := NewPetsRepo(db)
	ctx := context.Background()

	for i, name := range []string{"A", "B", "C"} {
		p := pets.Pet{
			ID: name, Name: name, Species: "Cat", OwnerName: "Jane",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute), UpdatedAt: t0,
		}
		require.NoError(t, repo.Create(ctx, p))
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].Name)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, []string{"C", "B"}, []string{recent[0].Name, recent[1].Name})

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPetsRepo_DeleteIfUnreferenced(t *testing.T) {
	db := newTestDB(t)
	petsRepo := NewPetsRepo(db)
	apptRepo := NewAppointmentsRepo(db)
	ctx := context.Background()

	seedPet(t, petsRepo, "p1", "Rex")
	seedPet(t, petsRepo, "p2", "Luna")
	require.NoError(t, apptRepo.CreateIfFree(ctx, appointment("a1", "p1", "2025-03-10", "10:00")))

	assert.ErrorIs(t, petsRepo.DeleteIfUnreferenced(ctx, "p1"), pets.ErrHasAppointments)
	assert.NoError(t, petsRepo.DeleteIfUnreferenced(ctx, "p2"))
	assert.ErrorIs(t, petsRepo.DeleteIfUnreferenced(ctx, "p2"), pets.ErrNotFound)
}

func appointment(id, petID, date, hhmm string) appointments.Appointment {
	return appointments.Appointment{
		ID: id, PetID: petID, ServiceType: "Checkup",
		Date: date, Time: hhmm, DurationMinutes: 60,
		Status: appointments.StatusScheduled, CreatedAt: t0, UpdatedAt: t0,
	}
}

func TestAppointmentsRepo_SlotConflict(t *testing.T) {
	db := newTestDB(t)
	seedPet(t, NewPetsRepo(db), "p1", "Rex")
	repo := NewAppointmentsRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateIfFree(ctx, appointment("a1", "p1", "2025-03-10", "10:00")))
	assert.ErrorIs(t, repo.CreateIfFree(ctx, appointment("a2", "p1", "2025-03-10", "10:00")), appointments.ErrConflict)

	// Cancelar libera el slot.
	a1, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	a1.Status = appointments.StatusCancelled
	require.NoError(t, repo.Update(ctx, a1, false))
	assert.NoError(t, repo.CreateIfFree(ctx, appointment("a2", "p1", "2025-03-10", "10:00")))

	// Reactivar la cancelada choca contra a2.
	a1.Status = appointments.StatusScheduled
	assert.ErrorIs(t, repo.Update(ctx, a1, true), appointments.ErrConflict)
}

func TestAppointmentsRepo_UniqueIndexBacksTheCheck(t *testing.T) {
	db := newTestDB(t)
	seedPet(t, NewPetsRepo(db), "p1", "Rex")
	repo := NewAppointmentsRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateIfFree(ctx, appointment("a1", "p1", "2025-03-10", "10:00")))
	require.NoError(t, repo.CreateIfFree(ctx, appointment("a2", "p1", "2025-03-10", "11:00")))

	// Sin el chequeo previo, el índice parcial rechaza el update.
	a2, err := repo.GetByID(ctx, "a2")
	require.NoError(t, err)
	a2.Time = "10:00"
	assert.ErrorIs(t, repo.Update(ctx, a2, false), appointments.ErrConflict)
}

func TestAppointmentsRepo_UnknownPet(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentsRepo(db)

	err := repo.CreateIfFree(context.Background(), appointment("a1", "ghost", "2025-03-10", "10:00"))
	assert.ErrorIs(t, err, appointments.ErrPetNotFound)
}

func TestAppointmentsRepo_ReadsJoinPetAndOrder(t *testing.T) {
	db := newTestDB(t)
	seedPet(t, NewPetsRepo(db), "p1", "Rex")
	repo := NewAppointmentsRepo(db)
	ctx := context.Background()

	notes := "bring records"
	a := appointment("a1", "p1", "2025-03-10", "09:00")
	a.Notes = &notes
	require.NoError(t, repo.CreateIfFree(ctx, a))
	require.NoError(t, repo.CreateIfFree(ctx, appointment("a2", "p1", "2025-03-12", "08:00")))
	cancelled := appointment("a3", "p1", "2025-03-11", "08:00")
	cancelled.Status = appointments.StatusCancelled
	require.NoError(t, repo.CreateIfFree(ctx, cancelled))

	got, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got.Pet)
	assert.Equal(t, "Rex", got.Pet.Name)
	assert.Equal(t, "John Doe", got.Pet.OwnerName)
	require.NotNil(t, got.Notes)
	assert.Equal(t, notes, *got.Notes)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a2", all[0].ID)

	active, err := repo.ListActiveBetween(ctx, "2025-03-10", "2025-03-12")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a1", active[0].ID)
	assert.Equal(t, "a2", active[1].ID)

	byPet, err := repo.ListByPet(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, byPet, 3)

	require.NoError(t, repo.Delete(ctx, "a3"))
	assert.ErrorIs(t, repo.Delete(ctx, "a3"), appointments.ErrNotFound)
}

func TestUsersRepo_EmailUniqueAndRefreshToken(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsersRepo(db)
	ctx := context.Background()

	u := users.User{
		ID: "u1", Email: "vet@clinic.com", PasswordHash: "hash", Name: "Vet",
		Role: "vet", ClinicID: "c1", CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, repo.Create(ctx, u))

	dup := u
	dup.ID = "u2"
	assert.ErrorIs(t, repo.Create(ctx, dup), users.ErrEmailTaken)

	require.NoError(t, repo.SetRefreshToken(ctx, "u1", "r1"))
	got, err := repo.GetByRefreshToken(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "vet@clinic.com", got.Email)

	_, err = repo.GetByRefreshToken(ctx, "u1", "old")
	assert.ErrorIs(t, err, users.ErrNotFound)

	require.NoError(t, repo.SetRefreshToken(ctx, "u1", ""))
	_, err = repo.GetByRefreshToken(ctx, "u1", "")
	assert.ErrorIs(t, err, users.ErrNotFound)

	_, err = repo.GetByEmail(ctx, "nobody@clinic.com")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestClinicsRepo_SubscriptionAndUsage(t *testing.T) {
	db := newTestDB(t)
	repo := NewClinicsRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateClinic(ctx, billing.Clinic{ID: "c1", Name: "Happy Paws", CreatedAt: t0, UpdatedAt: t0}))
	c, err := repo.GetClinic(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, billing.TierBasic, c.Tier)
	assert.Equal(t, billing.StatusActive, c.Status)

	require.NoError(t, repo.ActivateSubscription(ctx, "c1", billing.TierProfessional, "sub_1", t0))
	n, err := repo.SetStatusBySubscription(ctx, "sub_1", billing.StatusSuspended, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c, err = repo.GetClinic(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, billing.TierProfessional, c.Tier)
	assert.Equal(t, billing.StatusSuspended, c.Status)
	assert.Equal(t, "sub_1", c.SubscriptionID)

	p := pets.Pet{ID: "p1", Name: "Rex", Species: "Dog", OwnerName: "Ann", ClinicID: "c1", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, NewPetsRepo(db).Create(ctx, p))

	usage, err := repo.Usage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, billing.Usage{Pets: 1}, usage)

	_, err = repo.GetClinic(ctx, "nope")
	assert.ErrorIs(t, err, billing.ErrClinicNotFound)
}

func TestWebhookEventsRepo_ClaimOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventsRepo(db)
	ctx := context.Background()

	first, err := repo.Claim(ctx, "evt_1", billing.EventPaymentFailed)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.Claim(ctx, "evt_1", billing.EventPaymentFailed)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, repo.Release(ctx, "evt_1"))
	retry, err := repo.Claim(ctx, "evt_1", billing.EventPaymentFailed)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestPostgresDialect_RebindsAndMapsUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsersRepo(db)

	mock.ExpectExec(`INSERT INTO users .* VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8,\$9,\$10\)`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := repo.Create(context.Background(), users.User{ID: "u1", Email: "a@b.c", Role: "client"})
	assert.ErrorIs(t, err, users.ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDialect_WebhookClaimConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookEventsRepo(db)

	mock.ExpectExec(`INSERT INTO processed_webhook_events .* ON CONFLICT \(event_id\) DO NOTHING`).
		WithArgs("evt_1", "invoice.payment_failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.Claim(context.Background(), "evt_1", "invoice.payment_failed")
	require.NoError(t, err)
	assert.False(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDialect_AppointmentForeignKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentsRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO appointments`).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := repo.CreateIfFree(context.Background(), appointment("a1", "ghost", "2025-03-10", "10:00"))
	assert.ErrorIs(t, err, appointments.ErrPetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimestampScan(t *testing.T) {
	cases := []any{
		t0,
		"2025-03-01 09:00:00+00:00",
		"2025-03-01T09:00:00Z",
		[]byte("2025-03-01 09:00:00"),
	}
	for _, c := range cases {
		var ts timestamp
		require.NoError(t, ts.Scan(c), "%v", c)
		assert.True(t, ts.Equal(t0), "%v parsed as %v", c, ts.Time)
	}

	var ts timestamp
	assert.Error(t, ts.Scan("yesterday"))
}

func TestShim_PlaceholdersPerDialect(t *testing.T) {
	cases := []struct {
		driver   string
		d        dialect
		sel, upd string
		insertID int64
	}{
		{"sqlite", sqliteDialect{},
			`SELECT id, name FROM pets WHERE species = ? AND age > ?`,
			`UPDATE pets SET name = ? WHERE id = ?`, 7},
		{"pgx", postgresDialect{},
			`SELECT id, name FROM pets WHERE species = $1 AND age > $2`,
			`UPDATE pets SET name = $1 WHERE id = $2`, 0},
	}

	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
			require.NoError(t, err)
			t.Cleanup(func() { _ = raw.Close() })
			db := &DB{x: sqlx.NewDb(raw, tc.driver), d: tc.d}
			ctx := context.Background()

			mock.ExpectQuery(tc.sel).WithArgs("Dog", 2).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("p1", []byte("Rex")))
			rows, err := db.Query(ctx, `SELECT id, name FROM pets WHERE species = ? AND age > ?`, "Dog", 2)
			require.NoError(t, err)
			assert.Equal(t, []map[string]any{{"id": "p1", "name": "Rex"}}, rows)

			mock.ExpectExec(tc.upd).WithArgs("Max", "p1").WillReturnResult(sqlmock.NewResult(7, 1))
			res, err := db.Run(ctx, `UPDATE pets SET name = ? WHERE id = ?`, "Max", "p1")
			require.NoError(t, err)
			assert.Equal(t, Result{InsertID: tc.insertID, Affected: 1}, res)

			mock.ExpectBegin()
			mock.ExpectQuery(tc.sel).WithArgs("Cat", 1).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
			mock.ExpectExec(tc.upd).WithArgs("Tom", "p2").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
			err = db.WithTx(ctx, func(tx *Tx) error {
				found, err := tx.Query(ctx, `SELECT id, name FROM pets WHERE species = ? AND age > ?`, "Cat", 1)
				if err != nil {
					return err
				}
				assert.Empty(t, found)
				_, err = tx.Run(ctx, `UPDATE pets SET name = ? WHERE id = ?`, "Tom", "p2")
				return err
			})
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestShim_RunReportsRowsAffectedError(t *testing.T) {
	db, mock := newMockDB(t)
	driverErr := errors.New("driver lost the count")

	mock.ExpectExec(`UPDATE pets`).WillReturnResult(sqlmock.NewErrorResult(driverErr))

	err := NewPetsRepo(db).Update(context.Background(), pets.Pet{ID: "p1", Name: "Rex", Species: "Dog", OwnerName: "Ann"})
	assert.ErrorIs(t, err, driverErr)
	assert.NotErrorIs(t, err, pets.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShim_TxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pets WHERE id = \$1`).WithArgs("p1").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.Run(context.Background(), `DELETE FROM pets WHERE id = ?`, "p1")
		return err
	})
	assert.ErrorIs(t, err, ErrForeignKeyViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
