package bank

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Importer bulk-loads questions from CSV. Expected header columns:
// question_text, option_a, option_b, option_c, option_d, correct_option,
// difficulty_level, category, company_name. Unknown columns are ignored,
// missing columns yield empty fields. Rows are inserted one at a time; a
// failure partway leaves earlier rows committed.
type Importer struct {
	store Store
}

func NewImporter(store Store) *Importer { return &Importer{store: store} }

type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

type ImportResult struct {
	Imported         int        `json:"imported"`
	Failed           int        `json:"failed"`
	CompaniesCreated int        `json:"companies_created"`
	Errors           []RowError `json:"errors,omitempty"`
}

func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err != nil {
		return ImportResult{}, errors.New("empty or unreadable csv")
	}
	col := map[string]int{}
	for i, h := range hdr {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	// Company ids resolved once per name so duplicate new names within one
	// import create exactly one company.
	companyIDs := map[string]string{}

	var res ImportResult
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		q := Question{
			Text:          field(rec, "question_text"),
			OptionA:       field(rec, "option_a"),
			OptionB:       field(rec, "option_b"),
			OptionC:       field(rec, "option_c"),
			OptionD:       field(rec, "option_d"),
			CorrectOption: strings.ToUpper(field(rec, "correct_option")),
			Category:      field(rec, "category"),
		}
		diff, err := ParseDifficulty(field(rec, "difficulty_level"))
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		q.Difficulty = diff

		if name := field(rec, "company_name"); name != "" {
			id, created, err := im.resolveCompany(ctx, companyIDs, name)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
				continue
			}
			if created {
				res.CompaniesCreated++
			}
			q.CompanyID = &id
		}

		if _, err := im.store.CreateQuestion(ctx, q); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}

// resolveCompany reuses a company matching name exactly, creating it on first
// sight. The per-import cache keeps repeated new names from racing the store.
func (im *Importer) resolveCompany(ctx context.Context, cache map[string]string, name string) (id string, created bool, err error) {
	if id, ok := cache[name]; ok {
		return id, false, nil
	}
	c, err := im.store.GetCompanyByName(ctx, name)
	switch {
	case err == nil:
		cache[name] = c.ID
		return c.ID, false, nil
	case errors.Is(err, ErrNotFound):
		c, err := im.store.CreateCompany(ctx, name)
		if err != nil {
			return "", false, fmt.Errorf("create company %q: %w", name, err)
		}
		cache[name] = c.ID
		return c.ID, true, nil
	default:
		return "", false, err
	}
}
