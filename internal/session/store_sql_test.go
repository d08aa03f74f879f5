package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/db"
	"github.com/aptibase/aptibase/internal/session"
)

var dbSeq int

func openStore(t *testing.T) session.Store {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:sessionstore%d?mode=memory&cache=shared", dbSeq)
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return session.NewSQLStore(conn)
}

func seedTest(t *testing.T, store session.Store, id string, startedAt int64, totalQuestions int) session.Test {
	t.Helper()
	tt, err := store.CreateTest(context.Background(), session.Test{
		ID:             id,
		UserID:         "u1",
		Type:           session.TypeGeneral,
		Difficulty:     bank.DifficultyEasy,
		TotalQuestions: totalQuestions,
		StartedAt:      startedAt,
	})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	return tt
}

func TestSQLStore_UpsertAnswerConflict(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	tt := seedTest(t, store, "t1", 1000, 5)

	for _, sel := range []string{"A", "C", "B"} {
		if err := store.UpsertAnswer(ctx, session.Answer{TestID: tt.ID, QuestionID: "q1", Selected: sel}); err != nil {
			t.Fatalf("upsert %s: %v", sel, err)
		}
	}
	answers, err := store.ListAnswers(ctx, tt.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("got %d rows, want 1 after repeated upserts", len(answers))
	}
	if answers[0].Selected != "B" || answers[0].Correct != nil {
		t.Fatalf("got %+v", answers[0])
	}

	if err := store.SetAnswerCorrect(ctx, tt.ID, "q1", true); err != nil {
		t.Fatalf("flag: %v", err)
	}
	answers, _ = store.ListAnswers(ctx, tt.ID)
	if answers[0].Correct == nil || !*answers[0].Correct {
		t.Fatalf("correctness flag not persisted: %+v", answers[0])
	}
}

func TestSQLStore_CompleteAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	done := seedTest(t, store, "t1", 1000, 5)
	seedTest(t, store, "t2", 2000, 5)

	completedAt := int64(1400)
	done.CorrectAnswers = 3
	done.WrongAnswers = 2
	done.Score = 60
	done.CompletedAt = &completedAt
	done.DurationSeconds = 400
	if err := store.CompleteTest(ctx, done); err != nil {
		t.Fatalf("complete: %v", err)
	}

	all, err := store.ListTests(ctx, session.ListOpts{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d tests, want 2", len(all))
	}
	if all[0].ID != "t2" {
		t.Fatalf("expected newest first, got %s", all[0].ID)
	}

	completed, err := store.ListTests(ctx, session.ListOpts{UserID: "u1", CompletedOnly: true})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "t1" {
		t.Fatalf("completed=%+v", completed)
	}
	if completed[0].Score != 60 || completed[0].CompletedAt == nil {
		t.Fatalf("score fields lost: %+v", completed[0])
	}
}

func TestSQLStore_ListExpiredInProgress(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// 5 questions at 60s each: expires at started_at+300.
	seedTest(t, store, "overdue", 1000, 5)
	seedTest(t, store, "fresh", 1200, 5)
	closed := seedTest(t, store, "closed", 900, 5)
	completedAt := int64(1100)
	closed.CompletedAt = &completedAt
	if err := store.CompleteTest(ctx, closed); err != nil {
		t.Fatalf("complete: %v", err)
	}

	expired, err := store.ListExpiredInProgress(ctx, 1400, session.SecondsPerQuestion)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "overdue" {
		t.Fatalf("expired=%+v, want just the overdue test", expired)
	}
}

func TestSQLStore_GetMissing(t *testing.T) {
	store := openStore(t)
	if _, err := store.GetTest(context.Background(), "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}
