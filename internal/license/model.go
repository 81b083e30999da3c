package license

import "errors"

// Status Enum for the license lifecycle
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusBanned  Status = "BANNED"
)

var (
	ErrNotFound       = errors.New("license not found")
	ErrDeviceMismatch = errors.New("license already used by another device")
	ErrExpired        = errors.New("license expired")
	ErrNotActive      = errors.New("license not active")
	ErrKeyExhausted   = errors.New("key generation retries exhausted")
	ErrBadRequest     = errors.New("license key and device id are required")
)

// DefaultDeviceName is written when a device activates without a label.
const DefaultDeviceName = "Unknown Device"
