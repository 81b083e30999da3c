package seclog

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-license/internal/data"
)

const DefaultRecentLimit = 50

// LogStore is the durable side of the violation log.
type LogStore interface {
	Insert(ctx context.Context, e *data.SecurityLog) error
	Recent(ctx context.Context, limit int) ([]*data.SecurityLog, error)
}

// Publisher pushes a violation onto the alerting bus. Optional.
type Publisher interface {
	Publish(e *data.SecurityLog) error
}

// Service records violation reports. Recording is telemetry, not a gate:
// it must never fail or delay the caller's activation/validation flow, so
// DB failures fall back to the local spool and bus publishes are fire-and-forget.
type Service struct {
	store     LogStore
	dedup     *Dedup
	publisher Publisher
	now       func() time.Time
}

func NewService(store LogStore, dedup *Dedup, publisher Publisher) *Service {
	return &Service{
		store:     store,
		dedup:     dedup,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record persists one violation. Returns an error only when both the DB
// write and the spool fail; duplicates within the dedup window are
// silently dropped.
func (s *Service) Record(ctx context.Context, deviceID, violationType, details, ip string) error {
	evt := &data.SecurityLog{
		EventID:       uuid.New(),
		DeviceID:      deviceID,
		ViolationType: violationType,
		Details:       details,
		IP:            ip,
		CreatedAt:     s.now(),
	}

	if s.dedup != nil && s.dedup.IsDuplicate(dedupKey(evt)) {
		return nil
	}

	if err := s.store.Insert(ctx, evt); err != nil {
		log.Printf("SecLog DB write failed: %v. Spooling event %s", err, evt.EventID)
		if spoolErr := SpoolEvent(evt); spoolErr != nil {
			log.Printf("CRITICAL: SecLog spool failed for event %s: %v", evt.EventID, spoolErr)
			return fmt.Errorf("seclog write failure: %v", spoolErr)
		}
		return nil // Swallow DB error if spooled successfully
	}

	if s.publisher != nil {
		go func() {
			if err := s.publisher.Publish(evt); err != nil {
				log.Printf("SecLog publish failed for event %s: %v", evt.EventID, err)
			}
		}()
	}

	return nil
}

// Recent returns the newest entries, capped at DefaultRecentLimit when the
// caller passes 0 or a value above the cap.
func (s *Service) Recent(ctx context.Context, limit int) ([]*data.SecurityLog, error) {
	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}
	return s.store.Recent(ctx, limit)
}

// TamperCount counts TAMPER-class violations among the given entries.
// Convention carried over from the client: severe categories embed the
// literal "TAMPER" in the violation type.
func TamperCount(logs []*data.SecurityLog) int {
	n := 0
	for _, e := range logs {
		if strings.Contains(e.ViolationType, "TAMPER") {
			n++
		}
	}
	return n
}

func dedupKey(e *data.SecurityLog) string {
	// A broken client re-reporting the same violation in a loop collapses
	// to one row per dedup window.
	return fmt.Sprintf("%s|%s", e.DeviceID, e.ViolationType)
}
