package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	ErrLicenseNotFound = errors.New("license not found")
	ErrDuplicateKey    = errors.New("license key already exists")
	ErrDeviceConflict  = errors.New("license bound to another device")
)

// License mirrors one row in the licenses table.
// LicenseKey is the primary key; device fields stay NULL until first activation.
type License struct {
	LicenseKey     string     `json:"licenseKey"`
	Status         string     `json:"status"`
	DeviceID       *string    `json:"deviceId,omitempty"`
	DeviceName     *string    `json:"deviceName,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ActivationDate *time.Time `json:"activationDate,omitempty"`
	LastValidation *time.Time `json:"lastValidation,omitempty"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
}

type LicenseModel struct {
	DB DBTX
}

// Insert persists a freshly generated record. A unique violation on the
// primary key surfaces as ErrDuplicateKey so the generator can retry.
func (m LicenseModel) Insert(ctx context.Context, l *License) error {
	query := `
		INSERT INTO licenses (license_key, status, created_at, expiry_date)
		VALUES ($1, $2, $3, $4)
	`
	_, err := m.DB.ExecContext(ctx, query, l.LicenseKey, l.Status, l.CreatedAt, l.ExpiryDate)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (m LicenseModel) Get(ctx context.Context, key string) (*License, error) {
	query := `
		SELECT license_key, status, device_id, device_name, created_at, activation_date, last_validation, expiry_date
		FROM licenses
		WHERE license_key = $1
	`
	var l License
	err := m.DB.QueryRowContext(ctx, query, key).Scan(
		&l.LicenseKey, &l.Status, &l.DeviceID, &l.DeviceName, &l.CreatedAt, &l.ActivationDate, &l.LastValidation, &l.ExpiryDate,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return &l, nil
}

// BindDevice performs the device binding as a single conditional update.
// The WHERE clause only matches when the license is unbound or already bound
// to the same device, so two racing first activations cannot both win:
// the loser sees zero rows and gets ErrDeviceConflict.
// activation_date is set once and never overwritten on re-activation.
func (m LicenseModel) BindDevice(ctx context.Context, key, deviceID, deviceName string, now time.Time) error {
	query := `
		UPDATE licenses
		SET device_id = $2,
		    device_name = $3,
		    status = 'ACTIVE',
		    activation_date = COALESCE(activation_date, $4),
		    last_validation = $4
		WHERE license_key = $1 AND (device_id IS NULL OR device_id = $2)
	`
	res, err := m.DB.ExecContext(ctx, query, key, deviceID, deviceName, now)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrDeviceConflict
	}
	return nil
}

// TouchValidation refreshes last_validation only. Status and binding are
// never mutated here.
func (m LicenseModel) TouchValidation(ctx context.Context, key string, now time.Time) error {
	query := `
		UPDATE licenses
		SET last_validation = $2
		WHERE license_key = $1
	`
	res, err := m.DB.ExecContext(ctx, query, key, now)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// List returns every record, newest first. The fleet is small enough
// (hundreds of keys) that the admin dashboard takes a full scan.
func (m LicenseModel) List(ctx context.Context) ([]*License, error) {
	query := `
		SELECT license_key, status, device_id, device_name, created_at, activation_date, last_validation, expiry_date
		FROM licenses
		ORDER BY created_at DESC
	`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		var l License
		if err := rows.Scan(&l.LicenseKey, &l.Status, &l.DeviceID, &l.DeviceName, &l.CreatedAt, &l.ActivationDate, &l.LastValidation, &l.ExpiryDate); err != nil {
			return nil, err
		}
		licenses = append(licenses, &l)
	}
	return licenses, rows.Err()
}

// Counts returns (total, active) in one round trip.
func (m LicenseModel) Counts(ctx context.Context) (int, int, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'ACTIVE')
		FROM licenses
	`
	var total, active int
	if err := m.DB.QueryRowContext(ctx, query).Scan(&total, &active); err != nil {
		return 0, 0, err
	}
	return total, active, nil
}
