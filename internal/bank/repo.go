package bank

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("company name already exists")
)

// QuestionFilter narrows ListQuestions. The zero value lists everything.
type QuestionFilter struct {
	Difficulty  Difficulty // "" => any
	Category    string     // "" => any
	CompanyID   string     // scoped pool; ignored when GeneralOnly
	GeneralOnly bool       // company_id IS NULL
	ActiveOnly  bool
	Limit       int
	Offset      int
}

type Store interface {
	CreateQuestion(ctx context.Context, q Question) (Question, error)
	UpdateQuestion(ctx context.Context, q Question) (Question, error)
	// DeactivateQuestion flips the active flag; questions are never hard-deleted.
	DeactivateQuestion(ctx context.Context, id string) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error)

	CreateCompany(ctx context.Context, name string) (Company, error)
	GetCompanyByName(ctx context.Context, name string) (Company, error)
	ListCompanies(ctx context.Context, activeOnly bool) ([]Company, error)
	SetCompanyActive(ctx context.Context, id string, active bool) error
	DeleteCompany(ctx context.Context, id string) error
}
