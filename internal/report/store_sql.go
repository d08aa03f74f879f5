package report

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetByTest(ctx context.Context, testID string) (Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, test_id, summary_text, strengths, weaknesses, suggestions, created_at
		 FROM ai_reports WHERE test_id=$1`, testID)
	var r Report
	err := row.Scan(&r.ID, &r.TestID, &r.Summary, &r.Strengths, &r.Weaknesses, &r.Suggestions, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrNotFound
		}
		return Report{}, err
	}
	return r, nil
}

func (s *SQLStore) Insert(ctx context.Context, r Report) (Report, error) {
	// The unique index on test_id settles concurrent generation: losers read
	// back whatever the winner stored.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_reports (id, test_id, summary_text, strengths, weaknesses, suggestions, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (test_id) DO NOTHING`,
		r.ID, r.TestID, r.Summary, r.Strengths, r.Weaknesses, r.Suggestions, r.CreatedAt)
	if err != nil {
		return Report{}, err
	}
	return s.GetByTest(ctx, r.TestID)
}

type memoryStore struct {
	mu     sync.RWMutex
	byTest map[string]Report
}

func NewInMemoryStore() Store {
	return &memoryStore{byTest: map[string]Report{}}
}

func (m *memoryStore) GetByTest(_ context.Context, testID string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byTest[testID]
	if !ok {
		return Report{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) Insert(_ context.Context, r Report) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byTest[r.TestID]; ok {
		return existing, nil
	}
	m.byTest[r.TestID] = r
	return r, nil
}
