package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aptibase/aptibase/internal/audit"
	"github.com/aptibase/aptibase/internal/bank"
)

// SecondsPerQuestion sets the session time budget: 60s per question.
const SecondsPerQuestion = 60

var (
	ErrNoQuestions      = errors.New("no questions available")
	ErrAlreadySubmitted = errors.New("test already submitted")
	ErrBadOption        = errors.New("selected option must be one of A, B, C, D")
	ErrNotInSession     = errors.New("question is not part of this test")
)

// liveSession is the in-process state of one running attempt. Exactly one
// exists per in-progress test; it dies with submission.
type liveSession struct {
	test      Test
	questions []bank.Question // shuffled order, answer keys included
	cursor    int
	selected  map[string]string // questionID -> option
	deadline  time.Time
	timer     *time.Timer
	submitted bool
}

func (s *liveSession) budget() time.Duration {
	return time.Duration(len(s.questions)*SecondsPerQuestion) * time.Second
}

// Manager drives test sessions: seeding, navigation, answer capture, the
// countdown, and the single-shot submission path shared by manual submit and
// timeout.
type Manager struct {
	store  Store
	bank   bank.Store
	events audit.Recorder // optional
	now    func() time.Time

	mu   sync.Mutex
	live map[string]*liveSession // testID -> session
}

func NewManager(store Store, qs bank.Store, events audit.Recorder, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  store,
		bank:   qs,
		events: events,
		now:    now,
		live:   map[string]*liveSession{},
	}
}

// Start seeds a session with up to N active questions for the difficulty
// (N = 20/25/30 for EASY/MEDIUM/HARD), shuffled. companyID nil draws from the
// general pool. Zero matching questions fails without creating a Test row.
func (m *Manager) Start(ctx context.Context, userID string, difficulty bank.Difficulty, companyID *string) (View, error) {
	filter := bank.QuestionFilter{
		Difficulty: difficulty,
		ActiveOnly: true,
		Limit:      difficulty.QuestionCount(),
	}
	testType := TypeGeneral
	if companyID != nil && *companyID != "" {
		filter.CompanyID = *companyID
		testType = TypeCompany
	} else {
		filter.GeneralOnly = true
	}

	questions, err := m.bank.ListQuestions(ctx, filter)
	if err != nil {
		return View{}, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return View{}, ErrNoQuestions
	}
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})

	t := Test{
		ID:             uuid.NewString(),
		UserID:         userID,
		Type:           testType,
		Difficulty:     difficulty,
		TotalQuestions: len(questions),
		StartedAt:      m.now().Unix(),
	}
	if t, err = m.store.CreateTest(ctx, t); err != nil {
		return View{}, fmt.Errorf("create test: %w", err)
	}

	sess := &liveSession{
		test:      t,
		questions: questions,
		selected:  map[string]string{},
	}
	sess.deadline = m.now().Add(sess.budget())
	sess.timer = time.AfterFunc(sess.budget(), func() {
		if _, err := m.Submit(context.Background(), t.ID); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			log.Printf("auto-submit test %s: %v", t.ID, err)
		}
	})

	m.mu.Lock()
	m.live[t.ID] = sess
	m.mu.Unlock()

	m.record(ctx, audit.TypeTestStarted, t.ID, map[string]any{
		"user_id": userID, "difficulty": difficulty, "questions": len(questions),
	})
	return m.view(sess), nil
}

// Get returns the live view of an in-progress session.
func (m *Manager) Get(testID string) (View, error) {
	m.mu.Lock()
	sess, ok := m.live[testID]
	m.mu.Unlock()
	if !ok {
		return View{}, ErrNotFound
	}
	return m.view(sess), nil
}

// SelectAnswer records the student's choice for a question: local state plus
// an immediate upsert keyed on (test, question). Re-selecting overwrites.
func (m *Manager) SelectAnswer(ctx context.Context, testID, questionID, option string) error {
	switch option {
	case "A", "B", "C", "D":
	default:
		return ErrBadOption
	}

	m.mu.Lock()
	sess, ok := m.live[testID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if sess.submitted {
		m.mu.Unlock()
		return ErrAlreadySubmitted
	}
	found := false
	for _, q := range sess.questions {
		if q.ID == questionID {
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return ErrNotInSession
	}
	sess.selected[questionID] = option
	m.mu.Unlock()

	return m.store.UpsertAnswer(ctx, Answer{TestID: testID, QuestionID: questionID, Selected: option})
}

// Next moves the cursor forward one question, clamped to the last.
func (m *Manager) Next(testID string) (int, error) { return m.move(testID, 1) }

// Prev moves the cursor back one question, clamped to the first.
func (m *Manager) Prev(testID string) (int, error) { return m.move(testID, -1) }

func (m *Manager) move(testID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.live[testID]
	if !ok {
		return 0, ErrNotFound
	}
	sess.cursor += delta
	if sess.cursor < 0 {
		sess.cursor = 0
	}
	if max := len(sess.questions) - 1; sess.cursor > max {
		sess.cursor = max
	}
	return sess.cursor, nil
}

// Submit closes the session, manual or timeout alike. Only the first
// invocation executes; later calls return ErrAlreadySubmitted. Every question
// is scored: unanswered counts as wrong.
func (m *Manager) Submit(ctx context.Context, testID string) (Test, error) {
	m.mu.Lock()
	sess, ok := m.live[testID]
	if !ok {
		m.mu.Unlock()
		return Test{}, ErrNotFound
	}
	if sess.submitted {
		m.mu.Unlock()
		return Test{}, ErrAlreadySubmitted
	}
	sess.submitted = true
	sess.timer.Stop()

	remaining := sess.deadline.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	questions := sess.questions
	selected := make(map[string]string, len(sess.selected))
	for k, v := range sess.selected {
		selected[k] = v
	}
	t := sess.test
	budget := sess.budget()
	m.mu.Unlock()

	correct, wrong, pct := Score(questions, selected)
	completedAt := m.now().Unix()
	t.CorrectAnswers = correct
	t.WrongAnswers = wrong
	t.Score = pct
	t.CompletedAt = &completedAt
	t.DurationSeconds = int((budget - remaining) / time.Second)

	if err := m.store.CompleteTest(ctx, t); err != nil {
		return Test{}, fmt.Errorf("complete test: %w", err)
	}
	for _, q := range questions {
		sel, answered := selected[q.ID]
		if !answered {
			continue // no row to flag; the question still counted as wrong above
		}
		if err := m.store.SetAnswerCorrect(ctx, testID, q.ID, sel == q.CorrectOption); err != nil {
			return Test{}, fmt.Errorf("mark answer %s: %w", q.ID, err)
		}
	}

	m.mu.Lock()
	delete(m.live, testID)
	m.mu.Unlock()

	m.record(ctx, audit.TypeTestSubmitted, t.ID, map[string]any{
		"score": t.Score, "correct": correct, "wrong": wrong, "duration_seconds": t.DurationSeconds,
	})
	return t, nil
}

// RecoverAbandoned closes out in-progress tests whose budget lapsed while no
// live session exists for them (crashed client or a server restart). Scored
// from whatever answers made it to the store; duration is the full budget.
func (m *Manager) RecoverAbandoned(ctx context.Context) (int, error) {
	expired, err := m.store.ListExpiredInProgress(ctx, m.now().Unix(), SecondsPerQuestion)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range expired {
		m.mu.Lock()
		_, isLive := m.live[t.ID]
		m.mu.Unlock()
		if isLive {
			continue // the session timer owns it
		}
		if err := m.recoverOne(ctx, t); err != nil {
			log.Printf("recover test %s: %v", t.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func (m *Manager) recoverOne(ctx context.Context, t Test) error {
	answers, err := m.store.ListAnswers(ctx, t.ID)
	if err != nil {
		return err
	}
	correct := 0
	for _, a := range answers {
		q, err := m.bank.GetQuestion(ctx, a.QuestionID)
		if err != nil {
			continue
		}
		ok := a.Selected == q.CorrectOption
		if err := m.store.SetAnswerCorrect(ctx, t.ID, a.QuestionID, ok); err != nil {
			return err
		}
		if ok {
			correct++
		}
	}
	completedAt := m.now().Unix()
	t.CorrectAnswers = correct
	t.WrongAnswers = t.TotalQuestions - correct
	if t.TotalQuestions > 0 {
		t.Score = 100 * float64(correct) / float64(t.TotalQuestions)
	}
	t.CompletedAt = &completedAt
	t.DurationSeconds = t.TotalQuestions * SecondsPerQuestion
	if err := m.store.CompleteTest(ctx, t); err != nil {
		return err
	}
	m.record(ctx, audit.TypeTestSubmitted, t.ID, map[string]any{
		"score": t.Score, "recovered": true,
	})
	return nil
}

func (m *Manager) view(sess *liveSession) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := make([]SessionQuestion, len(sess.questions))
	for i, q := range sess.questions {
		qs[i] = SessionQuestion{
			ID:      q.ID,
			Text:    q.Text,
			OptionA: q.OptionA,
			OptionB: q.OptionB,
			OptionC: q.OptionC,
			OptionD: q.OptionD,
		}
	}
	left := sess.deadline.Sub(m.now())
	if left < 0 {
		left = 0
	}
	return View{
		Test:         sess.test,
		Questions:    qs,
		Cursor:       sess.cursor,
		TimeLimitSec: int(sess.budget() / time.Second),
		TimeLeftSec:  int(left / time.Second),
	}
}

func (m *Manager) record(ctx context.Context, typ, key string, data any) {
	if m.events == nil {
		return
	}
	if err := m.events.Record(ctx, typ, key, data); err != nil {
		log.Printf("audit %s %s: %v", typ, key, err)
	}
}
