package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	LockoutTTL       = 15 * time.Minute
	LockoutThreshold = 5
)

// Manager tracks failed admin logins in redis and hard-locks the account
// for LockoutTTL after LockoutThreshold failures.
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// CheckLockout returns true if the username is currently locked out.
func (m *Manager) CheckLockout(ctx context.Context, username string) (bool, error) {
	key := fmt.Sprintf("lockout:%s", username)
	val, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "locked", nil
}

// RecordFailedAttempt increments the failure count and locks at threshold.
func (m *Manager) RecordFailedAttempt(ctx context.Context, username string) error {
	key := fmt.Sprintf("lockout_count:%s", username)
	count, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}

	// Set expiry on first fail so the window resets
	if count == 1 {
		m.client.Expire(ctx, key, LockoutTTL)
	}

	if count >= LockoutThreshold {
		lockKey := fmt.Sprintf("lockout:%s", username)
		m.client.Set(ctx, lockKey, "locked", LockoutTTL)
		m.client.Del(ctx, key)
	}
	return nil
}

// ClearFailures resets the counter after a successful login.
func (m *Manager) ClearFailures(ctx context.Context, username string) error {
	return m.client.Del(ctx, fmt.Sprintf("lockout_count:%s", username)).Err()
}
