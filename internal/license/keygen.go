package license

import (
	"crypto/rand"
	"fmt"
)

const (
	// KeyPrefix matches the format issued to existing customers.
	KeyPrefix = "VIA-"

	keySuffixLen = 12
	keyAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // No 0/O/1/I, field techs read these over the phone
)

// NewKey produces a key like VIA-7KQ2M9XWPR4T.
// 32^12 possible suffixes, so collision at our volume (thousands of keys)
// is negligible; the store's unique constraint is the backstop.
func NewKey() (string, error) {
	buf := make([]byte, keySuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("keygen entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return KeyPrefix + string(buf), nil
}
