package report_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/report"
	"github.com/aptibase/aptibase/internal/session"
)

type fixture struct {
	gen     *report.Generator
	reports report.Store
	tests   session.Store
	bank    bank.Store
}

func newFixture(t *testing.T, composer report.Composer) *fixture {
	t.Helper()
	f := &fixture{
		reports: report.NewInMemoryStore(),
		tests:   session.NewInMemoryStore(),
		bank:    bank.NewInMemoryStore(),
	}
	f.gen = report.NewGenerator(f.reports, f.tests, f.bank, composer, nil, func() time.Time {
		return time.Unix(1_700_000_000, 0)
	})
	return f
}

// completedTest seeds a finished attempt with answered questions across the
// given categories. correctByCat maps category -> (correct, total).
func (f *fixture) completedTest(t *testing.T, correctByCat map[string][2]int) session.Test {
	t.Helper()
	ctx := context.Background()

	totalQ, totalCorrect := 0, 0
	for _, v := range correctByCat {
		totalQ += v[1]
		totalCorrect += v[0]
	}
	completed := int64(1_700_000_000)
	tt, err := f.tests.CreateTest(ctx, session.Test{
		ID:             "t1",
		UserID:         "u1",
		Type:           session.TypeGeneral,
		Difficulty:     bank.DifficultyEasy,
		TotalQuestions: totalQ,
		StartedAt:      completed - 600,
	})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	tt.CorrectAnswers = totalCorrect
	tt.WrongAnswers = totalQ - totalCorrect
	tt.Score = 100 * float64(totalCorrect) / float64(totalQ)
	tt.CompletedAt = &completed
	tt.DurationSeconds = 600
	if err := f.tests.CompleteTest(ctx, tt); err != nil {
		t.Fatalf("complete test: %v", err)
	}

	i := 0
	for cat, v := range correctByCat {
		for n := 0; n < v[1]; n++ {
			i++
			q, err := f.bank.CreateQuestion(ctx, bank.Question{
				Text:    fmt.Sprintf("q%d", i),
				OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d",
				CorrectOption: "A",
				Difficulty:    bank.DifficultyEasy,
				Category:      cat,
			})
			if err != nil {
				t.Fatalf("seed question: %v", err)
			}
			sel := "A"
			if n >= v[0] {
				sel = "B"
			}
			if err := f.tests.UpsertAnswer(ctx, session.Answer{TestID: tt.ID, QuestionID: q.ID, Selected: sel}); err != nil {
				t.Fatalf("answer: %v", err)
			}
			if err := f.tests.SetAnswerCorrect(ctx, tt.ID, q.ID, sel == "A"); err != nil {
				t.Fatalf("flag: %v", err)
			}
		}
	}
	return tt
}

func TestGenerate_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	tt := f.completedTest(t, map[string][2]int{"Math": {3, 4}})

	first, err := f.gen.Generate(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := f.gen.Generate(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("second call produced a new report: %s vs %s", first.ID, second.ID)
	}
	if first.Summary != second.Summary {
		t.Fatalf("report changed between calls")
	}
}

func TestGenerate_UnknownAndIncompleteTests(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.gen.Generate(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("err=%v, want session.ErrNotFound", err)
	}

	inProgress, err := f.tests.CreateTest(context.Background(), session.Test{
		ID: "t2", UserID: "u1", Type: session.TypeGeneral,
		Difficulty: bank.DifficultyEasy, TotalQuestions: 20, StartedAt: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.gen.Generate(context.Background(), inProgress.ID); !errors.Is(err, report.ErrNotCompleted) {
		t.Fatalf("err=%v, want ErrNotCompleted", err)
	}
}

func TestGenerate_TemplateNamesBestAndWorstCategories(t *testing.T) {
	f := newFixture(t, nil)
	tt := f.completedTest(t, map[string][2]int{
		"Verbal": {4, 4}, // 100% - strength
		"Math":   {4, 5}, // 80%  - above threshold but not best
		"Logic":  {1, 4}, // 25%  - weakness
	})

	r, err := f.gen.Generate(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(r.Strengths, "Verbal") {
		t.Fatalf("strengths should name the best category: %q", r.Strengths)
	}
	if !strings.Contains(r.Weaknesses, "Logic") {
		t.Fatalf("weaknesses should name the worst category: %q", r.Weaknesses)
	}
	if !strings.Contains(r.Summary, "69.2%") {
		t.Fatalf("summary should carry the score: %q", r.Summary)
	}
}

func TestGenerate_TemplateGenericWhenNothingQualifies(t *testing.T) {
	f := newFixture(t, nil)
	// 60% everywhere: no category above 75, none below 50.
	tt := f.completedTest(t, map[string][2]int{"Math": {3, 5}, "Logic": {3, 5}})

	r, err := f.gen.Generate(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(r.Strengths, "core concepts") {
		t.Fatalf("strengths should fall back to generic phrase: %q", r.Strengths)
	}
	if !strings.Contains(r.Weaknesses, "specific areas") {
		t.Fatalf("weaknesses should fall back to generic phrase: %q", r.Weaknesses)
	}
}

func chatReply(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
}

func TestGenerate_ComposerReplyWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			http.Error(w, "bad auth", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, chatReply("```json\n{\"summary\":\"Sharp work.\",\"strengths\":\"s\",\"weaknesses\":\"w\",\"suggestions\":\"x\"}\n```"))
	}))
	defer srv.Close()

	f := newFixture(t, report.NewLLMClient(srv.URL, "secret", "mentor-1"))
	tt := f.completedTest(t, map[string][2]int{"Math": {4, 5}})

	r, err := f.gen.Generate(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r.Summary != "Sharp work." {
		t.Fatalf("summary=%q, want the composed reply", r.Summary)
	}
}

func TestGenerate_ComposerFailureFallsBackToTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newFixture(t, report.NewLLMClient(srv.URL, "secret", "mentor-1"))
	tt := f.completedTest(t, map[string][2]int{"Math": {4, 5}})

	r, err := f.gen.Generate(context.Background(), tt.ID)
	if err != nil {
		t.Fatalf("generate should not surface composer errors: %v", err)
	}
	if !strings.Contains(r.Summary, "Good effort!") {
		t.Fatalf("expected template summary, got %q", r.Summary)
	}
}

func TestLLMClient_RejectsMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("sorry, I cannot produce JSON today"))
	}))
	defer srv.Close()

	c := report.NewLLMClient(srv.URL, "k", "m")
	if _, err := c.Compose(context.Background(), "prompt"); err == nil {
		t.Fatal("expected parse error for non-JSON reply")
	}
}
