package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aptibase/aptibase/internal/audit"
	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/session"
)

// Composer turns a prompt into a Narrative. *LLMClient implements it; tests
// substitute fakes.
type Composer interface {
	Compose(ctx context.Context, prompt string) (Narrative, error)
}

// Generator builds the per-test narrative report. Creation is idempotent per
// test id: an existing report is returned unchanged, never regenerated.
type Generator struct {
	store    Store
	tests    session.Store
	bank     bank.Store
	composer Composer       // nil => template only
	events   audit.Recorder // optional
	now      func() time.Time
}

func NewGenerator(store Store, tests session.Store, qs bank.Store, composer Composer, events audit.Recorder, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{store: store, tests: tests, bank: qs, composer: composer, events: events, now: now}
}

// Generate returns the report for a completed test, creating it on first
// request. Unknown test => session.ErrNotFound; in-progress => ErrNotCompleted.
func (g *Generator) Generate(ctx context.Context, testID string) (Report, error) {
	t, err := g.tests.GetTest(ctx, testID)
	if err != nil {
		return Report{}, err
	}
	if existing, err := g.store.GetByTest(ctx, testID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Report{}, err
	}
	if t.CompletedAt == nil {
		return Report{}, ErrNotCompleted
	}

	answers, err := g.tests.ListAnswers(ctx, testID)
	if err != nil {
		return Report{}, err
	}
	perf := g.aggregate(ctx, answers)

	n := fallbackNarrative(t, perf)
	if g.composer != nil {
		composed, err := g.composer.Compose(ctx, BuildPrompt(t, perf))
		if err != nil {
			// Best-effort contract: the test record stays valid and the
			// deterministic template stands in.
			log.Printf("report compose for test %s: %v", testID, err)
		} else {
			n = composed
		}
	}

	r := Report{
		ID:          uuid.NewString(),
		TestID:      testID,
		Summary:     n.Summary,
		Strengths:   n.Strengths,
		Weaknesses:  n.Weaknesses,
		Suggestions: n.Suggestions,
		CreatedAt:   g.now().Unix(),
	}
	stored, err := g.store.Insert(ctx, r)
	if err != nil {
		return Report{}, err
	}
	if stored.ID == r.ID && g.events != nil {
		if err := g.events.Record(ctx, audit.TypeReportCreated, testID, map[string]any{"report_id": r.ID}); err != nil {
			log.Printf("audit report for test %s: %v", testID, err)
		}
	}
	return stored, nil
}

// aggregate groups answers by the owning question's category. Answers whose
// question can no longer be resolved land in "Unknown".
func (g *Generator) aggregate(ctx context.Context, answers []session.Answer) []CategoryPerf {
	tally := map[string]*CategoryPerf{}
	order := []string{}
	for _, a := range answers {
		category := "Unknown"
		if q, err := g.bank.GetQuestion(ctx, a.QuestionID); err == nil && q.Category != "" {
			category = q.Category
		}
		p, ok := tally[category]
		if !ok {
			p = &CategoryPerf{Category: category}
			tally[category] = p
			order = append(order, category)
		}
		p.Total++
		if a.Correct != nil && *a.Correct {
			p.Correct++
		}
	}
	sort.Strings(order)
	out := make([]CategoryPerf, 0, len(order))
	for _, c := range order {
		out = append(out, *tally[c])
	}
	return out
}

// BuildPrompt embeds score, duration, difficulty and the category table the
// way the mentor model expects them.
func BuildPrompt(t session.Test, perf []CategoryPerf) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an aptitude test mentor. A student has just completed an aptitude test. Here's their performance data:\n\n")
	fmt.Fprintf(&b, "Test Results:\n")
	fmt.Fprintf(&b, "- Total Score: %.1f%%\n", t.Score)
	fmt.Fprintf(&b, "- Correct Answers: %d/%d\n", t.CorrectAnswers, t.TotalQuestions)
	fmt.Fprintf(&b, "- Difficulty Level: %s\n", t.Difficulty)
	fmt.Fprintf(&b, "- Time Taken: %d minutes\n\n", durationMinutes(t))
	fmt.Fprintf(&b, "Category-wise Performance:\n")
	for _, p := range perf {
		fmt.Fprintf(&b, "- %s: %d/%d correct (%.0f%%)\n", p.Category, p.Correct, p.Total, p.Accuracy())
	}
	fmt.Fprintf(&b, "\nPlease provide:\n")
	fmt.Fprintf(&b, "1. A brief 3-4 line summary of their overall performance in simple English.\n")
	fmt.Fprintf(&b, "2. 3-4 bullet points of their strengths based on categories where they scored above 70%%.\n")
	fmt.Fprintf(&b, "3. 3-4 bullet points of weaknesses based on categories where they scored below 50%%.\n")
	fmt.Fprintf(&b, "4. 3-4 practical suggestions to improve their weak areas.\n\n")
	fmt.Fprintf(&b, "Format your response as JSON with keys: summary, strengths, weaknesses, suggestions")
	return b.String()
}

// fallbackNarrative is the deterministic template used when no composer is
// configured or the external call fails. Strengths name the best category
// above 75% accuracy, weaknesses the worst below 50%, with generic phrases
// when nothing qualifies.
func fallbackNarrative(t session.Test, perf []CategoryPerf) Narrative {
	strong := "core concepts"
	if p, ok := bestAbove(perf, 75); ok {
		strong = p.Category
	}
	weak := "specific areas"
	if p, ok := worstBelow(perf, 50); ok {
		weak = p.Category
	}
	return Narrative{
		Summary: fmt.Sprintf(
			"Good effort! You scored %.1f%% on the %s level test. You answered %d out of %d questions correctly in %d minutes. Your performance shows room for improvement in specific areas.",
			t.Score, t.Difficulty, t.CorrectAnswers, t.TotalQuestions, durationMinutes(t)),
		Strengths: fmt.Sprintf(
			"• Strong performance in %s\n• Consistent accuracy in multiple question types\n• Good time management throughout the test",
			strong),
		Weaknesses: fmt.Sprintf(
			"• Performance below average in %s\n• Some gaps in concept understanding\n• Could benefit from more practice in weaker sections",
			weak),
		Suggestions: "• Focus on strengthening fundamentals in weak areas\n• Practice more questions in problem categories\n• Allocate more time for difficult topics\n• Take regular mock tests to track progress",
	}
}

// bestAbove picks the highest-accuracy category strictly above the threshold;
// ties break on category name so the output is stable.
func bestAbove(perf []CategoryPerf, threshold float64) (CategoryPerf, bool) {
	var best CategoryPerf
	found := false
	for _, p := range perf {
		if p.Accuracy() <= threshold {
			continue
		}
		if !found || p.Accuracy() > best.Accuracy() {
			best = p
			found = true
		}
	}
	return best, found
}

func worstBelow(perf []CategoryPerf, threshold float64) (CategoryPerf, bool) {
	var worst CategoryPerf
	found := false
	for _, p := range perf {
		if p.Accuracy() >= threshold {
			continue
		}
		if !found || p.Accuracy() < worst.Accuracy() {
			worst = p
			found = true
		}
	}
	return worst, found
}

func durationMinutes(t session.Test) int {
	return int(float64(t.DurationSeconds)/60 + 0.5)
}
