package session

import (
	"context"
	"sort"
	"sync"
)

type answerKey struct{ testID, questionID string }

type memoryStore struct {
	mu      sync.RWMutex
	tests   map[string]Test
	answers map[answerKey]Answer
}

func NewInMemoryStore() Store {
	return &memoryStore{
		tests:   map[string]Test{},
		answers: map[answerKey]Answer{},
	}
}

func (m *memoryStore) CreateTest(_ context.Context, t Test) (Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return t, nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context, opts ListOpts) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Test{}
	for _, t := range m.tests {
		if opts.UserID != "" && t.UserID != opts.UserID {
			continue
		}
		if opts.CompletedOnly && t.CompletedAt == nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Test{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) CompleteTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tests[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.CorrectAnswers = t.CorrectAnswers
	cur.WrongAnswers = t.WrongAnswers
	cur.Score = t.Score
	cur.CompletedAt = t.CompletedAt
	cur.DurationSeconds = t.DurationSeconds
	m.tests[t.ID] = cur
	return nil
}

func (m *memoryStore) UpsertAnswer(_ context.Context, a Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := answerKey{a.TestID, a.QuestionID}
	if cur, ok := m.answers[k]; ok {
		cur.Selected = a.Selected
		m.answers[k] = cur
		return nil
	}
	m.answers[k] = a
	return nil
}

func (m *memoryStore) ListAnswers(_ context.Context, testID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Answer{}
	for k, a := range m.answers {
		if k.testID == testID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *memoryStore) SetAnswerCorrect(_ context.Context, testID, questionID string, correct bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := answerKey{testID, questionID}
	a, ok := m.answers[k]
	if !ok {
		return nil // parity with SQL UPDATE on a missing row
	}
	c := correct
	a.Correct = &c
	m.answers[k] = a
	return nil
}

func (m *memoryStore) ListExpiredInProgress(_ context.Context, now int64, secondsPerQuestion int) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Test{}
	for _, t := range m.tests {
		if t.CompletedAt != nil {
			continue
		}
		if t.StartedAt+int64(t.TotalQuestions*secondsPerQuestion) < now {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out, nil
}
