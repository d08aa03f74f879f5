package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/aptibase/aptibase/internal/auth/middleware"
	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/rbac"
	"github.com/aptibase/aptibase/internal/session"
)

// StartTestHandler creates a session for the authenticated student.
// POST /tests  { "difficulty": "EASY", "company_id": "..."? }
func StartTestHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Difficulty string  `json:"difficulty"`
			CompanyID  *string `json:"company_id,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		diff, err := bank.ParseDifficulty(req.Difficulty)
		if err != nil {
			errorJSON(w, err.Error(), http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		view, err := mgr.Start(r.Context(), userID, diff, req.CompanyID)
		if err != nil {
			if errors.Is(err, session.ErrNoQuestions) {
				errorJSON(w, "no questions available for this difficulty level", http.StatusNotFound)
				return
			}
			errorJSON(w, "failed to load test", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

// SelectAnswerHandler upserts the student's selection for one question.
// POST /tests/{testID}/answers  { "question_id": "...", "selected_option": "A" }
func SelectAnswerHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		var req struct {
			QuestionID string `json:"question_id"`
			Selected   string `json:"selected_option"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		if !ownsLiveSession(r, mgr, testID) {
			errorJSON(w, "forbidden", http.StatusForbidden)
			return
		}
		err := mgr.SelectAnswer(r.Context(), testID, req.QuestionID, req.Selected)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, session.ErrNotFound):
			errorJSON(w, "test not found", http.StatusNotFound)
		case errors.Is(err, session.ErrAlreadySubmitted):
			errorJSON(w, "test already submitted", http.StatusConflict)
		case errors.Is(err, session.ErrBadOption), errors.Is(err, session.ErrNotInSession):
			errorJSON(w, err.Error(), http.StatusBadRequest)
		default:
			errorJSON(w, "failed to save answer", http.StatusInternalServerError)
		}
	}
}

// NavigateHandler moves the session cursor.
// POST /tests/{testID}/navigate  { "direction": "next"|"previous" }
func NavigateHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		var req struct {
			Direction string `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		if !ownsLiveSession(r, mgr, testID) {
			errorJSON(w, "forbidden", http.StatusForbidden)
			return
		}
		var (
			cursor int
			err    error
		)
		switch req.Direction {
		case "next":
			cursor, err = mgr.Next(testID)
		case "previous":
			cursor, err = mgr.Prev(testID)
		default:
			errorJSON(w, "direction must be next or previous", http.StatusBadRequest)
			return
		}
		if err != nil {
			errorJSON(w, "test not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"current_question": cursor})
	}
}

// SubmitTestHandler closes the session; only the first call scores.
func SubmitTestHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		if !ownsLiveSession(r, mgr, testID) {
			errorJSON(w, "forbidden", http.StatusForbidden)
			return
		}
		t, err := mgr.Submit(r.Context(), testID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, t)
		case errors.Is(err, session.ErrAlreadySubmitted):
			errorJSON(w, "test already submitted", http.StatusConflict)
		case errors.Is(err, session.ErrNotFound):
			errorJSON(w, "test not found", http.StatusNotFound)
		default:
			errorJSON(w, "failed to submit test", http.StatusInternalServerError)
		}
	}
}

// GetTestHandler returns a test row with its answers. Students may only read
// their own.
func GetTestHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		t, err := store.GetTest(r.Context(), testID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				errorJSON(w, "test not found", http.StatusNotFound)
				return
			}
			errorJSON(w, "failed to load test", http.StatusInternalServerError)
			return
		}
		if !canViewTest(r, t) {
			errorJSON(w, "forbidden", http.StatusForbidden)
			return
		}
		answers, err := store.ListAnswers(r.Context(), testID)
		if err != nil {
			errorJSON(w, "failed to load answers", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"test": t, "answers": answers})
	}
}

// ListTestsHandler lists the caller's tests; admins see everyone's and may
// filter by user_id.
func ListTestsHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := session.ListOpts{
			CompletedOnly: r.URL.Query().Get("completed") != "",
			Limit:         parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:        parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		checker := rbac.NewChecker(nil)
		if checker.Has(rbac.RoleFromContext(r.Context()), "test:view-all") {
			opts.UserID = r.URL.Query().Get("user_id")
		} else {
			opts.UserID = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.ListTests(r.Context(), opts)
		if err != nil {
			errorJSON(w, "failed to load tests", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// ownsLiveSession allows the session's owner and anyone holding
// test:view-all through; an unknown test id passes so the manager can report
// its own not-found.
func ownsLiveSession(r *http.Request, mgr *session.Manager, testID string) bool {
	v, err := mgr.Get(testID)
	if err != nil {
		return true
	}
	return canViewTest(r, v.Test)
}

func canViewTest(r *http.Request, t session.Test) bool {
	if authmw.SubjectFromContext(r.Context()) == t.UserID {
		return true
	}
	return rbac.NewChecker(nil).Has(rbac.RoleFromContext(r.Context()), "test:view-all")
}
