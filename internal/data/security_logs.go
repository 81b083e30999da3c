package data

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SecurityLog is one violation report from a device. Append-only: no
// Update or Delete methods are exposed on this model.
type SecurityLog struct {
	ID            int64     `json:"id"`
	EventID       uuid.UUID `json:"event_id"` // Idempotency key for spool replay
	DeviceID      string    `json:"deviceId"`
	ViolationType string    `json:"violationType"`
	Details       string    `json:"details"`
	IP            string    `json:"ip,omitempty"`
	CreatedAt     time.Time `json:"timestamp"`
}

type SecurityLogModel struct {
	DB DBTX
}

func (m SecurityLogModel) Insert(ctx context.Context, e *SecurityLog) error {
	query := `
		INSERT INTO security_logs (event_id, device_id, violation_type, details, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := m.DB.ExecContext(ctx, query,
		e.EventID, e.DeviceID, e.ViolationType, e.Details, e.IP, e.CreatedAt,
	)
	return err
}

// Recent returns the newest entries first, bounded by limit.
func (m SecurityLogModel) Recent(ctx context.Context, limit int) ([]*SecurityLog, error) {
	query := `
		SELECT id, event_id, device_id, violation_type, details, client_ip, created_at
		FROM security_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := m.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*SecurityLog
	for rows.Next() {
		var e SecurityLog
		if err := rows.Scan(&e.ID, &e.EventID, &e.DeviceID, &e.ViolationType, &e.Details, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &e)
	}
	return logs, rows.Err()
}
