package bank

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// QuestionCount is how many questions seed a session at this difficulty.
func (d Difficulty) QuestionCount() int {
	switch d {
	case DifficultyMedium:
		return 25
	case DifficultyHard:
		return 30
	default:
		return 20
	}
}

func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToUpper(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyMedium:
		return DifficultyMedium, nil
	case DifficultyHard:
		return DifficultyHard, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

type Question struct {
	ID            string     `json:"id"`
	Text          string     `json:"question_text" validate:"required"`
	OptionA       string     `json:"option_a" validate:"required"`
	OptionB       string     `json:"option_b" validate:"required"`
	OptionC       string     `json:"option_c" validate:"required"`
	OptionD       string     `json:"option_d" validate:"required"`
	CorrectOption string     `json:"correct_option" validate:"required,oneof=A B C D"`
	Difficulty    Difficulty `json:"difficulty_level" validate:"required,oneof=EASY MEDIUM HARD"`
	Category      string     `json:"category"`
	CompanyID     *string    `json:"company_id,omitempty"`
	Active        bool       `json:"is_active"`
	CreatedAt     int64      `json:"created_at,omitempty"`
}

type Company struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"is_active"`
}

var validate = validator.New()

// ValidateQuestion rejects questions with missing fields or a correct option
// outside A-D before anything reaches the store.
func ValidateQuestion(q Question) error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("invalid question: %w", err)
	}
	return nil
}
