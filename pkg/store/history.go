package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// HistoryLog is the append-only compliance record of status changes. Each
// record is one JSON line; the file is only ever appended to. Records are
// kept in memory for querying.
type HistoryLog struct {
	mu      sync.RWMutex
	f       *os.File
	records []models.HistoryRecord
	nextSeq map[uint64]uint64
}

// OpenHistory opens (or creates) the JSONL history file at path and loads
// all existing records.
func OpenHistory(path string) (*HistoryLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history log: %w", err)
	}

	h := &HistoryLog{f: f, nextSeq: make(map[uint64]uint64)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec models.HistoryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			f.Close()
			return nil, fmt.Errorf("parse history line %d: %w", line, err)
		}
		h.records = append(h.records, rec)
		if rec.Seq >= h.nextSeq[rec.OpID] {
			h.nextSeq[rec.OpID] = rec.Seq + 1
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read history log: %w", err)
	}
	return h, nil
}

// Append assigns the record's per-operation sequence number, writes it to
// the log file, and retains it for querying. The file write happens before
// the record becomes visible to Query.
func (h *HistoryLog) Append(rec models.HistoryRecord) (models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.Seq = h.nextSeq[rec.OpID]

	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("marshal history record: %w", err)
	}
	if _, err := h.f.Write(append(data, '\n')); err != nil {
		return rec, fmt.Errorf("append history record: %w", err)
	}

	h.nextSeq[rec.OpID] = rec.Seq + 1
	h.records = append(h.records, rec)
	return rec, nil
}

// Close releases the underlying file.
func (h *HistoryLog) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}

// HistoryFilter selects history records. Zero-valued fields do not filter.
type HistoryFilter struct {
	OpID      *uint64
	Actor     string
	Component string
	Tag       string
	From      *time.Time
	To        *time.Time
}

// Query returns matching records in append order.
func (h *HistoryLog) Query(f HistoryFilter) []models.HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []models.HistoryRecord
	for _, rec := range h.records {
		if f.OpID != nil && rec.OpID != *f.OpID {
			continue
		}
		if f.Actor != "" && rec.Actor != f.Actor {
			continue
		}
		if f.Component != "" && !containsString(rec.Components, f.Component) {
			continue
		}
		if f.Tag != "" && !containsString(rec.Tags, f.Tag) {
			continue
		}
		if f.From != nil && rec.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && rec.Timestamp.After(*f.To) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
