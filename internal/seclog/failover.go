package seclog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/technosupport/ts-license/internal/data"
)

var (
	SpoolDir           = "/var/lib/ts-license/seclog_spool"
	MaxSpoolSize int64 = 64 * 1024 * 1024 // 64MB
)

func ConfigureFailover(dir string, maxMB int64) {
	if dir != "" {
		SpoolDir = dir
	}
	if maxMB > 0 {
		MaxSpoolSize = maxMB * 1024 * 1024
	}
	_ = os.MkdirAll(SpoolDir, 0750)
}

// FailoverEvent wrapper for JSONL spooling
type FailoverEvent struct {
	EventID   string           `json:"event_id"`
	Payload   data.SecurityLog `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// SpoolEvent appends one event to the local spool file.
func SpoolEvent(evt *data.SecurityLog) error {
	if isSpoolFull() {
		// Drop rather than grow unbounded; violation telemetry is
		// best-effort and a full spool means the DB has been down a while.
		return fmt.Errorf("spool full (%d bytes)", MaxSpoolSize)
	}

	line, err := json.Marshal(FailoverEvent{
		EventID:   evt.EventID.String(),
		Payload:   *evt,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	filename := filepath.Join(SpoolDir, "seclog_spool.log")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func isSpoolFull() bool {
	var size int64
	filepath.Walk(SpoolDir, func(_ string, info fs.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size >= MaxSpoolSize
}

var replayLock sync.Mutex

// StartReplayer retries spooled events every 30s until ctx is done.
func (s *Service) StartReplayer(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

// ReplaySpool drains the spool file back into the store. Events that
// still fail re-spool via Record's normal failover path, so nothing is
// lost while the DB stays down. Inserts are idempotent on event_id.
func (s *Service) ReplaySpool(ctx context.Context) {
	replayLock.Lock()
	defer replayLock.Unlock()

	filename := filepath.Join(SpoolDir, "seclog_spool.log")
	info, err := os.Stat(filename)
	if os.IsNotExist(err) || (info != nil && info.Size() == 0) {
		return
	}

	replayFile := filepath.Join(SpoolDir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(filename, replayFile); err != nil {
		log.Printf("SecLog replay: rotate failed: %v", err)
		return
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var succeeded int
	for scanner.Scan() {
		var fe FailoverEvent
		if err := json.Unmarshal(scanner.Bytes(), &fe); err != nil {
			continue
		}
		evt := fe.Payload
		if err := s.store.Insert(ctx, &evt); err != nil {
			// DB still down, push it back onto the spool.
			_ = SpoolEvent(&evt)
			continue
		}
		succeeded++
	}

	os.Remove(replayFile)

	if succeeded > 0 {
		log.Printf("SecLog replay: %d events flushed", succeeded)
	}
}
