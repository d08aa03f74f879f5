package bank

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore backs tests and single-process dev runs.
type memoryStore struct {
	mu        sync.RWMutex
	questions map[string]Question
	companies map[string]Company
	seq       int64
}

func NewInMemoryStore() Store {
	return &memoryStore{
		questions: map[string]Question{},
		companies: map[string]Company{},
	}
}

func (m *memoryStore) CreateQuestion(_ context.Context, q Question) (Question, error) {
	if err := ValidateQuestion(q); err != nil {
		return Question{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Category == "" {
		q.Category = "General"
	}
	q.Active = true
	m.seq++
	q.CreatedAt = time.Now().Unix() + m.seq // keep insertion order distinct
	m.questions[q.ID] = q
	return q, nil
}

func (m *memoryStore) UpdateQuestion(_ context.Context, q Question) (Question, error) {
	if err := ValidateQuestion(q); err != nil {
		return Question{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.questions[q.ID]
	if !ok {
		return Question{}, ErrNotFound
	}
	q.Active = cur.Active
	q.CreatedAt = cur.CreatedAt
	if q.Category == "" {
		q.Category = "General"
	}
	m.questions[q.ID] = q
	return q, nil
}

func (m *memoryStore) DeactivateQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return ErrNotFound
	}
	q.Active = false
	m.questions[id] = q
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) ListQuestions(_ context.Context, f QuestionFilter) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Question{}
	for _, q := range m.questions {
		if f.ActiveOnly && !q.Active {
			continue
		}
		if f.Difficulty != "" && q.Difficulty != f.Difficulty {
			continue
		}
		if f.Category != "" && q.Category != f.Category {
			continue
		}
		if f.GeneralOnly {
			if q.CompanyID != nil {
				continue
			}
		} else if f.CompanyID != "" {
			if q.CompanyID == nil || *q.CompanyID != f.CompanyID {
				continue
			}
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Question{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryStore) CreateCompany(_ context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.Name == name {
			return Company{}, ErrDuplicateName
		}
	}
	c := Company{ID: uuid.NewString(), Name: name, Active: true}
	m.companies[c.ID] = c
	return c, nil
}

func (m *memoryStore) GetCompanyByName(_ context.Context, name string) (Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.companies {
		if c.Name == name {
			return c, nil
		}
	}
	return Company{}, ErrNotFound
}

func (m *memoryStore) ListCompanies(_ context.Context, activeOnly bool) ([]Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Company{}
	for _, c := range m.companies {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) SetCompanyActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	m.companies[id] = c
	return nil
}

func (m *memoryStore) DeleteCompany(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[id]; !ok {
		return ErrNotFound
	}
	delete(m.companies, id)
	return nil
}
