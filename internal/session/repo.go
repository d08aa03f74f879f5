package session

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("test not found")

type ListOpts struct {
	UserID        string // "" => all users
	CompletedOnly bool
	Limit         int
	Offset        int
}

type Store interface {
	CreateTest(ctx context.Context, t Test) (Test, error)
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, opts ListOpts) ([]Test, error)

	// CompleteTest writes counts, score, completed_at and duration in one go.
	// It is the only mutation a Test row ever sees after creation.
	CompleteTest(ctx context.Context, t Test) error

	// UpsertAnswer is keyed on (test_id, question_id); last write wins.
	UpsertAnswer(ctx context.Context, a Answer) error
	ListAnswers(ctx context.Context, testID string) ([]Answer, error)
	SetAnswerCorrect(ctx context.Context, testID, questionID string, correct bool) error

	// ListExpiredInProgress finds tests whose time budget lapsed without a
	// submission (crashed tab, dead server). Used by the startup sweep.
	ListExpiredInProgress(ctx context.Context, now int64, secondsPerQuestion int) ([]Test, error)
}
