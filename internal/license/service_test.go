package license_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/technosupport/ts-license/internal/data"
	"github.com/technosupport/ts-license/internal/license"
)

// fakeStore is an in-memory stand-in for the postgres model. BindDevice
// reproduces the conditional-update semantics under a mutex so the race
// test below is meaningful.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*data.License
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*data.License{}}
}

func (f *fakeStore) Insert(_ context.Context, l *data.License) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[l.LicenseKey]; ok {
		return data.ErrDuplicateKey
	}
	cp := *l
	f.records[l.LicenseKey] = &cp
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (*data.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return nil, data.ErrLicenseNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) BindDevice(_ context.Context, key, deviceID, deviceName string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return data.ErrDeviceConflict
	}
	if rec.DeviceID != nil && *rec.DeviceID != deviceID {
		return data.ErrDeviceConflict
	}
	rec.DeviceID = &deviceID
	rec.DeviceName = &deviceName
	rec.Status = string(license.StatusActive)
	if rec.ActivationDate == nil {
		t := now
		rec.ActivationDate = &t
	}
	t := now
	rec.LastValidation = &t
	return nil
}

func (f *fakeStore) TouchValidation(_ context.Context, key string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return data.ErrLicenseNotFound
	}
	t := now
	rec.LastValidation = &t
	return nil
}

func (f *fakeStore) List(_ context.Context) ([]*data.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.License
	for _, rec := range f.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) Counts(_ context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := len(f.records)
	active := 0
	for _, rec := range f.records {
		if rec.Status == string(license.StatusActive) {
			active++
		}
	}
	return total, active, nil
}

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*license.Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc := license.NewService(store, func() time.Time { return testNow })
	return svc, store
}

func TestGenerate_PendingLifetime(t *testing.T) {
	svc, store := setup(t)

	key, err := svc.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rec := store.records[key]
	if rec == nil {
		t.Fatal("record not persisted")
	}
	if rec.Status != "PENDING" {
		t.Errorf("expected PENDING, got %s", rec.Status)
	}
	if rec.ExpiryDate != nil {
		t.Error("lifetime key should have no expiry")
	}
	if !rec.CreatedAt.Equal(testNow) {
		t.Errorf("createdAt = %v, want %v", rec.CreatedAt, testNow)
	}
}

func TestGenerate_WithDuration(t *testing.T) {
	svc, store := setup(t)

	days := 30
	key, err := svc.Generate(context.Background(), &days)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rec := store.records[key]
	want := testNow.AddDate(0, 0, 30)
	if rec.ExpiryDate == nil || !rec.ExpiryDate.Equal(want) {
		t.Errorf("expiry = %v, want %v", rec.ExpiryDate, want)
	}
}

func TestActivate_BindsAndIsIdempotent(t *testing.T) {
	svc, store := setup(t)
	key, _ := svc.Generate(context.Background(), nil)

	if err := svc.Activate(context.Background(), key, "dev1", "Phone"); err != nil {
		t.Fatalf("first activation failed: %v", err)
	}

	rec := store.records[key]
	if rec.Status != "ACTIVE" || rec.DeviceID == nil || *rec.DeviceID != "dev1" {
		t.Fatalf("unexpected record after activation: %+v", rec)
	}
	firstActivation := *rec.ActivationDate

	// Same device again: success, activationDate unchanged, name may refresh.
	if err := svc.Activate(context.Background(), key, "dev1", "Phone Renamed"); err != nil {
		t.Fatalf("idempotent re-activation failed: %v", err)
	}
	if !store.records[key].ActivationDate.Equal(firstActivation) {
		t.Error("activationDate must not change on re-activation")
	}
	if *store.records[key].DeviceName != "Phone Renamed" {
		t.Error("deviceName should refresh on re-activation")
	}
}

func TestActivate_DeviceMismatch(t *testing.T) {
	svc, _ := setup(t)
	key, _ := svc.Generate(context.Background(), nil)

	if err := svc.Activate(context.Background(), key, "dev1", "Phone"); err != nil {
		t.Fatal(err)
	}
	err := svc.Activate(context.Background(), key, "dev2", "Other")
	if err != license.ErrDeviceMismatch {
		t.Errorf("expected ErrDeviceMismatch, got %v", err)
	}
}

func TestActivate_NotFound(t *testing.T) {
	svc, _ := setup(t)
	err := svc.Activate(context.Background(), "VIA-DOESNOTEXIST", "dev1", "Phone")
	if err != license.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestActivate_Expired(t *testing.T) {
	svc, store := setup(t)
	days := 7
	key, _ := svc.Generate(context.Background(), &days)

	// Push expiry into the past
	past := testNow.AddDate(0, 0, -1)
	store.records[key].ExpiryDate = &past

	err := svc.Activate(context.Background(), key, "dev1", "Phone")
	if err != license.ErrExpired {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestActivate_EmptyDeviceNameDefaults(t *testing.T) {
	svc, store := setup(t)
	key, _ := svc.Generate(context.Background(), nil)

	if err := svc.Activate(context.Background(), key, "dev1", ""); err != nil {
		t.Fatal(err)
	}
	if *store.records[key].DeviceName != license.DefaultDeviceName {
		t.Errorf("deviceName = %q", *store.records[key].DeviceName)
	}
}

func TestActivate_BannedKeyRejected(t *testing.T) {
	svc, store := setup(t)
	key, _ := svc.Generate(context.Background(), nil)
	store.records[key].Status = string(license.StatusBanned)

	if err := svc.Activate(context.Background(), key, "dev1", "Phone"); err != license.ErrDeviceMismatch {
		t.Errorf("expected rejection for banned key, got %v", err)
	}
}

func TestActivate_ConcurrentFirstActivation(t *testing.T) {
	svc, store := setup(t)
	key, _ := svc.Generate(context.Background(), nil)

	// Two devices race on a never-activated key. Exactly one must win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, dev := range []string{"dev1", "dev2"} {
		wg.Add(1)
		go func(i int, dev string) {
			defer wg.Done()
			errs[i] = svc.Activate(context.Background(), key, dev, "racer")
		}(i, dev)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch err {
		case nil:
			wins++
		case license.ErrDeviceMismatch:
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d, want exactly one winner", wins, losses)
	}
	rec := store.records[key]
	if rec.DeviceID == nil {
		t.Fatal("no device bound after race")
	}
}

func TestValidate_HappyPath(t *testing.T) {
	svc, store := setup(t)
	key, _ := svc.Generate(context.Background(), nil)
	if err := svc.Activate(context.Background(), key, "dev1", "Phone"); err != nil {
		t.Fatal(err)
	}

	valid, err := svc.Validate(context.Background(), key, "dev1")
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("expected valid=true")
	}
	if store.records[key].LastValidation == nil {
		t.Error("lastValidation not refreshed")
	}
}

func TestValidate_Rejections(t *testing.T) {
	svc, store := setup(t)
	key, _ := svc.Generate(context.Background(), nil)
	if err := svc.Activate(context.Background(), key, "dev1", "Phone"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		key     string
		device  string
		mutate  func()
		restore func()
	}{
		{name: "unknown key", key: "VIA-NOPE", device: "dev1"},
		{name: "wrong device", key: key, device: "dev2"},
		{
			name: "not active", key: key, device: "dev1",
			mutate:  func() { store.records[key].Status = string(license.StatusBanned) },
			restore: func() { store.records[key].Status = string(license.StatusActive) },
		},
		{
			name: "expired", key: key, device: "dev1",
			mutate: func() {
				past := testNow.AddDate(0, 0, -1)
				store.records[key].ExpiryDate = &past
			},
			restore: func() { store.records[key].ExpiryDate = nil },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.mutate != nil {
				tc.mutate()
				defer tc.restore()
			}
			valid, err := svc.Validate(context.Background(), tc.key, tc.device)
			if err != nil {
				t.Fatal(err)
			}
			if valid {
				t.Error("expected valid=false")
			}
		})
	}
}

func TestValidate_NeverValidForPending(t *testing.T) {
	svc, _ := setup(t)
	key, _ := svc.Generate(context.Background(), nil)

	// Matching device id on a PENDING record is still invalid: status gates.
	valid, err := svc.Validate(context.Background(), key, "dev1")
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Error("PENDING license must never validate")
	}
}

func TestStats_Counts(t *testing.T) {
	svc, _ := setup(t)
	k1, _ := svc.Generate(context.Background(), nil)
	_, _ = svc.Generate(context.Background(), nil)
	if err := svc.Activate(context.Background(), k1, "dev1", "Phone"); err != nil {
		t.Fatal(err)
	}

	ov, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ov.Total != 2 || ov.Active != 1 {
		t.Errorf("total=%d active=%d, want 2/1", ov.Total, ov.Active)
	}
	if len(ov.Licenses) != 2 {
		t.Errorf("listing has %d records", len(ov.Licenses))
	}
}
