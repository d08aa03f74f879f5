package report

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("report not found")
	ErrNotCompleted = errors.New("test is not completed")
)

// Report is the narrative feedback bundle for one completed test. At most one
// exists per test; it never changes after creation.
type Report struct {
	ID          string `json:"id"`
	TestID      string `json:"test_id"`
	Summary     string `json:"summary_text"`
	Strengths   string `json:"strengths"`
	Weaknesses  string `json:"weaknesses"`
	Suggestions string `json:"suggestions"`
	CreatedAt   int64  `json:"created_at"`
}

// CategoryPerf is one category's tally over the answered questions.
type CategoryPerf struct {
	Category string
	Correct  int
	Total    int
}

func (p CategoryPerf) Accuracy() float64 {
	if p.Total == 0 {
		return 0
	}
	return 100 * float64(p.Correct) / float64(p.Total)
}

type Store interface {
	GetByTest(ctx context.Context, testID string) (Report, error)
	// Insert is insert-once per test id: when a report already exists (or a
	// concurrent insert wins the race) the stored row is returned unchanged.
	Insert(ctx context.Context, r Report) (Report, error)
}
