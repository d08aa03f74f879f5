package session

import "github.com/aptibase/aptibase/internal/bank"

type TestType string

const (
	TypeGeneral TestType = "GENERAL"
	TypeCompany TestType = "COMPANY"
)

// Test is one student's attempt. Score fields are written exactly once, at
// submission; CompletedAt nil means the attempt is still in progress.
type Test struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Type            TestType        `json:"test_type"`
	Difficulty      bank.Difficulty `json:"difficulty_level"`
	TotalQuestions  int             `json:"total_questions"`
	CorrectAnswers  int             `json:"correct_answers"`
	WrongAnswers    int             `json:"wrong_answers"`
	Score           float64         `json:"score"`
	StartedAt       int64           `json:"started_at"`
	CompletedAt     *int64          `json:"completed_at,omitempty"`
	DurationSeconds int             `json:"duration_seconds"`
}

// Answer is the latest selection for one question of one test. Correct stays
// nil until submission fills it in.
type Answer struct {
	TestID     string `json:"test_id"`
	QuestionID string `json:"question_id"`
	Selected   string `json:"selected_option"`
	Correct    *bool  `json:"is_correct,omitempty"`
}

// SessionQuestion is the student-facing view: no correct option.
type SessionQuestion struct {
	ID      string `json:"id"`
	Text    string `json:"question_text"`
	OptionA string `json:"option_a"`
	OptionB string `json:"option_b"`
	OptionC string `json:"option_c"`
	OptionD string `json:"option_d"`
}

// View is what a client needs to run a session.
type View struct {
	Test         Test              `json:"test"`
	Questions    []SessionQuestion `json:"questions"`
	Cursor       int               `json:"current_question"`
	TimeLimitSec int               `json:"time_limit_sec"`
	TimeLeftSec  int               `json:"time_left_sec"`
}
