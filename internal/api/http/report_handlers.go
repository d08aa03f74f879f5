package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aptibase/aptibase/internal/report"
	"github.com/aptibase/aptibase/internal/session"
)

// GenerateReportHandler creates (or returns the existing) report for a test.
// POST /tests/{testID}/generate-report
func GenerateReportHandler(gen *report.Generator, tests session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		if t, err := tests.GetTest(r.Context(), testID); err == nil && !canViewTest(r, t) {
			errorJSON(w, "forbidden", http.StatusForbidden)
			return
		}
		rep, err := gen.Generate(r.Context(), testID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rep)
		case errors.Is(err, session.ErrNotFound):
			errorJSON(w, "test not found", http.StatusNotFound)
		case errors.Is(err, report.ErrNotCompleted):
			errorJSON(w, "test is not completed", http.StatusConflict)
		default:
			errorJSON(w, "failed to generate report", http.StatusInternalServerError)
		}
	}
}

// GetReportHandler reads a previously generated report. Students may only
// read reports for their own tests.
func GetReportHandler(store report.Store, tests session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		if t, err := tests.GetTest(r.Context(), testID); err == nil && !canViewTest(r, t) {
			errorJSON(w, "forbidden", http.StatusForbidden)
			return
		}
		rep, err := store.GetByTest(r.Context(), testID)
		if err != nil {
			if errors.Is(err, report.ErrNotFound) {
				errorJSON(w, "report not found", http.StatusNotFound)
				return
			}
			errorJSON(w, "failed to load report", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
