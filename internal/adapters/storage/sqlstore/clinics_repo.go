package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"petsched/internal/domain/billing"
)

// ClinicsRepo guarda clínicas y su suscripción; implementa billing.Repository.
type ClinicsRepo struct {
	db *DB
}

func NewClinicsRepo(db *DB) *ClinicsRepo {
	return &ClinicsRepo{db: db}
}

const clinicColumns = `
	id, name, email, address, phone, website,
	subscription_tier, subscription_status,
	stripe_customer_id, stripe_subscription_id,
	created_at, updated_at`

type clinicRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Email          sql.NullString `db:"email"`
	Address        sql.NullString `db:"address"`
	Phone          sql.NullString `db:"phone"`
	Website        sql.NullString `db:"website"`
	Tier           string         `db:"subscription_tier"`
	Status         string         `db:"subscription_status"`
	CustomerID     sql.NullString `db:"stripe_customer_id"`
	SubscriptionID sql.NullString `db:"stripe_subscription_id"`
	CreatedAt      timestamp      `db:"created_at"`
	UpdatedAt      timestamp      `db:"updated_at"`
}

func (r clinicRow) toDomain() billing.Clinic {
	return billing.Clinic{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email.String,
		Address:        r.Address.String,
		Phone:          r.Phone.String,
		Website:        r.Website.String,
		Tier:           billing.Tier(r.Tier),
		Status:         billing.SubscriptionStatus(r.Status),
		CustomerID:     r.CustomerID.String,
		SubscriptionID: r.SubscriptionID.String,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}

func (r *ClinicsRepo) CreateClinic(ctx context.Context, c billing.Clinic) error {
	if c.Tier == "" {
		c.Tier = billing.TierBasic
	}
	if c.Status == "" {
		c.Status = billing.StatusActive
	}
	_, err := r.db.Run(ctx, `
		INSERT INTO clinics (`+clinicColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		c.ID, c.Name, nullString(c.Email), nullString(c.Address), nullString(c.Phone), nullString(c.Website),
		string(c.Tier), string(c.Status),
		nullString(c.CustomerID), nullString(c.SubscriptionID),
		utc(c.CreatedAt), utc(c.UpdatedAt),
	)
	return err
}

func (r *ClinicsRepo) GetClinic(ctx context.Context, id string) (billing.Clinic, error) {
	var row clinicRow
	err := r.db.Get(ctx, &row, `SELECT `+clinicColumns+` FROM clinics WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Clinic{}, billing.ErrClinicNotFound
	}
	if err != nil {
		return billing.Clinic{}, err
	}
	return row.toDomain(), nil
}

func (r *ClinicsRepo) SetCustomerID(ctx context.Context, clinicID, customerID string, at time.Time) error {
	return r.update(ctx, `UPDATE clinics SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, utc(at), clinicID)
}

func (r *ClinicsRepo) ActivateSubscription(ctx context.Context, clinicID string, tier billing.Tier, subscriptionID string, at time.Time) error {
	return r.update(ctx, `
		UPDATE clinics
		SET subscription_tier = ?, subscription_status = ?, stripe_subscription_id = ?, updated_at = ?
		WHERE id = ?
	`, string(tier), string(billing.StatusActive), subscriptionID, utc(at), clinicID)
}

func (r *ClinicsRepo) SetStatus(ctx context.Context, clinicID string, status billing.SubscriptionStatus, at time.Time) error {
	return r.update(ctx, `UPDATE clinics SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		string(status), utc(at), clinicID)
}

func (r *ClinicsRepo) SetStatusBySubscription(ctx context.Context, subscriptionID string, status billing.SubscriptionStatus, at time.Time) (int64, error) {
	res, err := r.db.Run(ctx, `
		UPDATE clinics SET subscription_status = ?, updated_at = ? WHERE stripe_subscription_id = ?
	`, string(status), utc(at), subscriptionID)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

func (r *ClinicsRepo) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.Run(ctx, query, args...)
	if err != nil {
		return err
	}
	if res.Affected == 0 {
		return billing.ErrClinicNotFound
	}
	return nil
}

// Usage cuenta lo que la clínica consume contra los límites del plan.
func (r *ClinicsRepo) Usage(ctx context.Context, clinicID string) (billing.Usage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pets WHERE clinic_id = ?)         AS pets,
			(SELECT COUNT(*) FROM appointments WHERE clinic_id = ?) AS appointments,
			(SELECT COUNT(*) FROM users WHERE clinic_id = ?)        AS users
	`, clinicID, clinicID, clinicID)
	if err != nil {
		return billing.Usage{}, err
	}
	if len(rows) == 0 {
		return billing.Usage{}, nil
	}

	var u billing.Usage
	for col, dst := range map[string]*int{"pets": &u.Pets, "appointments": &u.Appointments, "users": &u.Users} {
		if *dst, err = intValue(rows[0][col]); err != nil {
			return billing.Usage{}, fmt.Errorf("usage %s: %w", col, err)
		}
	}
	return u, nil
}
