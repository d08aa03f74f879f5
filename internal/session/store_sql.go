package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aptibase/aptibase/internal/bank"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) CreateTest(ctx context.Context, t Test) (Test, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tests
		   (id, user_id, test_type, difficulty_level, total_questions, started_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.UserID, string(t.Type), string(t.Difficulty), t.TotalQuestions, t.StartedAt)
	if err != nil {
		return Test{}, err
	}
	return t, nil
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, test_type, difficulty_level, total_questions,
		        correct_answers, wrong_answers, score, started_at, completed_at, duration_seconds
		 FROM tests WHERE id=$1`, id)
	return scanTest(row)
}

func (s *SQLStore) ListTests(ctx context.Context, opts ListOpts) ([]Test, error) {
	var (
		cond []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.UserID != "" {
		cond = append(cond, "user_id="+arg(opts.UserID))
	}
	if opts.CompletedOnly {
		cond = append(cond, "completed_at IS NOT NULL")
	}
	q := `SELECT id, user_id, test_type, difficulty_level, total_questions,
	             correct_answers, wrong_answers, score, started_at, completed_at, duration_seconds
	      FROM tests`
	if len(cond) > 0 {
		q += " WHERE " + strings.Join(cond, " AND ")
	}
	q += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		q += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		q += " OFFSET " + arg(opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) CompleteTest(ctx context.Context, t Test) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tests SET correct_answers=$1, wrong_answers=$2, score=$3,
		   completed_at=$4, duration_seconds=$5
		 WHERE id=$6`,
		t.CorrectAnswers, t.WrongAnswers, t.Score, t.CompletedAt, t.DurationSeconds, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, a Answer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_answers (test_id, question_id, selected_option)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (test_id, question_id) DO UPDATE SET selected_option=excluded.selected_option`,
		a.TestID, a.QuestionID, a.Selected)
	return err
}

func (s *SQLStore) ListAnswers(ctx context.Context, testID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id, question_id, selected_option, is_correct
		 FROM test_answers WHERE test_id=$1`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var (
			a  Answer
			ok sql.NullBool
		)
		if err := rows.Scan(&a.TestID, &a.QuestionID, &a.Selected, &ok); err != nil {
			return nil, err
		}
		if ok.Valid {
			a.Correct = &ok.Bool
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetAnswerCorrect(ctx context.Context, testID, questionID string, correct bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE test_answers SET is_correct=$1 WHERE test_id=$2 AND question_id=$3`,
		correct, testID, questionID)
	return err
}

func (s *SQLStore) ListExpiredInProgress(ctx context.Context, now int64, secondsPerQuestion int) ([]Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, test_type, difficulty_level, total_questions,
		        correct_answers, wrong_answers, score, started_at, completed_at, duration_seconds
		 FROM tests
		 WHERE completed_at IS NULL AND started_at + total_questions*$1 < $2`,
		secondsPerQuestion, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (Test, error) {
	var (
		t         Test
		typ, diff string
		completed sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserID, &typ, &diff, &t.TotalQuestions,
		&t.CorrectAnswers, &t.WrongAnswers, &t.Score, &t.StartedAt, &completed, &t.DurationSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrNotFound
		}
		return Test{}, err
	}
	t.Type = TestType(typ)
	t.Difficulty = bank.Difficulty(diff)
	if completed.Valid {
		t.CompletedAt = &completed.Int64
	}
	return t, nil
}
