package license

import (
	"context"
	"errors"
	"time"

	"github.com/technosupport/ts-license/internal/data"
)

// Store is the durable license storage the engine decides against.
type Store interface {
	Insert(ctx context.Context, l *data.License) error
	Get(ctx context.Context, key string) (*data.License, error)
	BindDevice(ctx context.Context, key, deviceID, deviceName string, now time.Time) error
	TouchValidation(ctx context.Context, key string, now time.Time) error
	List(ctx context.Context) ([]*data.License, error)
	Counts(ctx context.Context) (int, int, error)
}

// Service holds the lifecycle decision logic. Time is injected so tests
// can pin "now"; no global clock or DB handle.
type Service struct {
	store Store
	now   func() time.Time
}

const generateRetries = 3

func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, now: now}
}

// Generate mints a new PENDING key. durationDays == nil means lifetime.
// A unique-constraint collision is retried with a fresh key; after
// generateRetries attempts we give up rather than loop.
func (s *Service) Generate(ctx context.Context, durationDays *int) (string, error) {
	now := s.now()

	var expiry *time.Time
	if durationDays != nil {
		e := now.AddDate(0, 0, *durationDays)
		expiry = &e
	}

	for attempt := 0; attempt < generateRetries; attempt++ {
		key, err := NewKey()
		if err != nil {
			return "", err
		}
		rec := &data.License{
			LicenseKey: key,
			Status:     string(StatusPending),
			CreatedAt:  now,
			ExpiryDate: expiry,
		}
		err = s.store.Insert(ctx, rec)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, data.ErrDuplicateKey) {
			return "", err
		}
	}
	return "", ErrKeyExhausted
}

// Activate binds a device to a key. Binding is permanent: once device_id
// is set, only the same device may re-activate (idempotent, refreshes the
// device name but not activation_date). The write itself is a conditional
// update, so a concurrent first activation from a second device loses
// cleanly instead of last-write-wins.
func (s *Service) Activate(ctx context.Context, key, deviceID, deviceName string) error {
	if key == "" || deviceID == "" {
		return ErrBadRequest
	}

	rec, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, data.ErrLicenseNotFound) {
			return ErrNotFound
		}
		return err
	}

	now := s.now()
	if rec.ExpiryDate != nil && rec.ExpiryDate.Before(now) {
		return ErrExpired
	}
	if rec.Status == string(StatusBanned) {
		return ErrDeviceMismatch // Banned keys answer the same as a binding conflict
	}
	if rec.DeviceID != nil && *rec.DeviceID != deviceID {
		return ErrDeviceMismatch
	}

	if deviceName == "" {
		deviceName = DefaultDeviceName
	}

	err = s.store.BindDevice(ctx, key, deviceID, deviceName, now)
	if errors.Is(err, data.ErrDeviceConflict) {
		// Lost the race to another device between Get and BindDevice.
		return ErrDeviceMismatch
	}
	return err
}

// Validate is the lightweight recurring check. It must be safe to call on
// every app launch: reads the record, refreshes last_validation on
// success, and never touches status or binding.
func (s *Service) Validate(ctx context.Context, key, deviceID string) (bool, error) {
	if key == "" || deviceID == "" {
		return false, nil
	}

	rec, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, data.ErrLicenseNotFound) {
			return false, nil
		}
		return false, err
	}

	if rec.DeviceID == nil || *rec.DeviceID != deviceID {
		return false, nil
	}
	if rec.Status != string(StatusActive) {
		return false, nil
	}
	now := s.now()
	if rec.ExpiryDate != nil && rec.ExpiryDate.Before(now) {
		return false, nil
	}

	if err := s.store.TouchValidation(ctx, key, now); err != nil {
		return false, err
	}
	return true, nil
}

// Overview is the license half of the admin stats payload.
type Overview struct {
	Total    int             `json:"total"`
	Active   int             `json:"active"`
	Licenses []*data.License `json:"licenses"`
}

// Stats lists all records plus counts. The two reads are not one
// snapshot; a key generated mid-call may appear in one and not the other,
// which is acceptable for a dashboard.
func (s *Service) Stats(ctx context.Context) (*Overview, error) {
	total, active, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	licenses, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{Total: total, Active: active, Licenses: licenses}, nil
}
