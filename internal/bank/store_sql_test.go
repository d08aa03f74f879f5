package bank_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/db"
)

var dbSeq int

func openStore(t *testing.T) *bank.SQLStore {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:bankstore%d?mode=memory&cache=shared", dbSeq)
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return bank.NewSQLStore(conn)
}

func TestSQLStore_QuestionLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	created, err := store.CreateQuestion(ctx, bank.Question{
		Text:    "What comes next: 2, 4, 8?",
		OptionA: "10", OptionB: "12", OptionC: "16", OptionD: "32",
		CorrectOption: "C",
		Difficulty:    bank.DifficultyMedium,
		Category:      "Numerical",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || !created.Active {
		t.Fatalf("bad created question: %+v", created)
	}

	created.Text = "What comes next in the series 2, 4, 8?"
	updated, err := store.UpdateQuestion(ctx, created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Text != created.Text {
		t.Fatalf("update not persisted: %+v", updated)
	}

	if err := store.DeactivateQuestion(ctx, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := store.GetQuestion(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after deactivate: %v", err)
	}
	if got.Active {
		t.Fatal("deactivated question still active")
	}
	active, err := store.ListQuestions(ctx, bank.QuestionFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active list still returns deactivated question")
	}
}

func TestSQLStore_QuestionFilters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	co, err := store.CreateCompany(ctx, "Initech")
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	mk := func(diff bank.Difficulty, cat string, companyID *string) {
		t.Helper()
		_, err := store.CreateQuestion(ctx, bank.Question{
			Text:    "q",
			OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d",
			CorrectOption: "A",
			Difficulty:    diff,
			Category:      cat,
			CompanyID:     companyID,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk(bank.DifficultyEasy, "Verbal", nil)
	mk(bank.DifficultyEasy, "Numerical", nil)
	mk(bank.DifficultyHard, "Verbal", nil)
	mk(bank.DifficultyEasy, "Verbal", &co.ID)

	cases := []struct {
		name   string
		filter bank.QuestionFilter
		want   int
	}{
		{"by difficulty", bank.QuestionFilter{Difficulty: bank.DifficultyEasy}, 3},
		{"by category", bank.QuestionFilter{Category: "Verbal"}, 3},
		{"general pool only", bank.QuestionFilter{GeneralOnly: true}, 3},
		{"company pool", bank.QuestionFilter{CompanyID: co.ID}, 1},
		{"combined", bank.QuestionFilter{Difficulty: bank.DifficultyEasy, Category: "Verbal", GeneralOnly: true}, 1},
		{"limit", bank.QuestionFilter{Limit: 2}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.ListQuestions(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d questions, want %d", len(got), tc.want)
			}
		})
	}
}

func TestSQLStore_CompanyNameUnique(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.CreateCompany(ctx, "Umbrella"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateCompany(ctx, "Umbrella"); !errors.Is(err, bank.ErrDuplicateName) {
		t.Fatalf("err=%v, want ErrDuplicateName", err)
	}
	got, err := store.GetCompanyByName(ctx, "Umbrella")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Name != "Umbrella" {
		t.Fatalf("got %+v", got)
	}
	if _, err := store.GetCompanyByName(ctx, "Nonesuch"); !errors.Is(err, bank.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestSQLStore_GetMissingQuestion(t *testing.T) {
	store := openStore(t)
	if _, err := store.GetQuestion(context.Background(), "does-not-exist"); !errors.Is(err, bank.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}
