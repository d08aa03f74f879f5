package bank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	if err := ValidateQuestion(q); err != nil {
		return Question{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Category == "" {
		q.Category = "General"
	}
	q.Active = true
	q.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO questions
		   (id, question_text, option_a, option_b, option_c, option_d, correct_option,
		    difficulty_level, category, company_id, is_active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption,
		string(q.Difficulty), q.Category, q.CompanyID, q.Active, q.CreatedAt)
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, q Question) (Question, error) {
	if err := ValidateQuestion(q); err != nil {
		return Question{}, err
	}
	if q.Category == "" {
		q.Category = "General"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET question_text=$1, option_a=$2, option_b=$3, option_c=$4,
		   option_d=$5, correct_option=$6, difficulty_level=$7, category=$8, company_id=$9
		 WHERE id=$10`,
		q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption,
		string(q.Difficulty), q.Category, q.CompanyID, q.ID)
	if err != nil {
		return Question{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Question{}, ErrNotFound
	}
	return s.GetQuestion(ctx, q.ID)
}

func (s *SQLStore) DeactivateQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET is_active=$1 WHERE id=$2`, false, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question_text, option_a, option_b, option_c, option_d, correct_option,
		        difficulty_level, category, company_id, is_active, created_at
		 FROM questions WHERE id=$1`, id)
	return scanQuestion(row)
}

func (s *SQLStore) ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error) {
	var (
		cond []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ActiveOnly {
		cond = append(cond, "is_active="+arg(true))
	}
	if f.Difficulty != "" {
		cond = append(cond, "difficulty_level="+arg(string(f.Difficulty)))
	}
	if f.Category != "" {
		cond = append(cond, "category="+arg(f.Category))
	}
	if f.GeneralOnly {
		cond = append(cond, "company_id IS NULL")
	} else if f.CompanyID != "" {
		cond = append(cond, "company_id="+arg(f.CompanyID))
	}
	q := `SELECT id, question_text, option_a, option_b, option_c, option_d, correct_option,
	             difficulty_level, category, company_id, is_active, created_at
	      FROM questions`
	if len(cond) > 0 {
		q += " WHERE " + strings.Join(cond, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		qu, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (Question, error) {
	var (
		q         Question
		diff      string
		companyID sql.NullString
	)
	err := row.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectOption, &diff, &q.Category, &companyID, &q.Active, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrNotFound
		}
		return Question{}, err
	}
	q.Difficulty = Difficulty(diff)
	if companyID.Valid {
		q.CompanyID = &companyID.String
	}
	return q, nil
}

func (s *SQLStore) CreateCompany(ctx context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, errors.New("company name required")
	}
	c := Company{ID: uuid.NewString(), Name: name, Active: true}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, is_active) VALUES ($1,$2,$3)`,
		c.ID, c.Name, c.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return Company{}, ErrDuplicateName
		}
		return Company{}, err
	}
	return c, nil
}

func (s *SQLStore) GetCompanyByName(ctx context.Context, name string) (Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_active FROM companies WHERE name=$1`, name)
	var c Company
	if err := row.Scan(&c.ID, &c.Name, &c.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

func (s *SQLStore) ListCompanies(ctx context.Context, activeOnly bool) ([]Company, error) {
	q := `SELECT id, name, is_active FROM companies`
	if activeOnly {
		q += ` WHERE is_active=$1`
	}
	q += ` ORDER BY name`
	var (
		rows *sql.Rows
		err  error
	)
	if activeOnly {
		rows, err = s.db.QueryContext(ctx, q, true)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Company{}
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetCompanyActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE companies SET is_active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}
