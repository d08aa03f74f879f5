package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"
)

// Event types recorded by the platform.
const (
	TypeTestStarted   = "test_started"
	TypeTestSubmitted = "test_submitted"
	TypeReportCreated = "report_created"
	TypeCSVImported   = "csv_imported"
)

type Event struct {
	ID        int64  `json:"id"`
	Type      string `json:"typ"`
	Key       string `json:"key"`  // natural key: test id, import blob key, ...
	DataJSON  string `json:"data"` // JSON payload
	CreatedAt int64  `json:"created_at"`
}

// Recorder is the append side; components record, the admin surface reads.
type Recorder interface {
	Record(ctx context.Context, typ, key string, data any) error
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Record(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(buf), time.Now().Unix())
	return err
}

func (r *EventRepo) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, typ, key, data, created_at FROM event_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryLog collects events in-process; used by tests and dev runs.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (l *MemoryLog) Record(_ context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{
		ID:        int64(len(l.events) + 1),
		Type:      typ,
		Key:       key,
		DataJSON:  string(buf),
		CreatedAt: time.Now().Unix(),
	})
	return nil
}

func (l *MemoryLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
