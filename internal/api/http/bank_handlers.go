package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aptibase/aptibase/internal/audit"
	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/storage"
)

func ListQuestionsHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := bank.QuestionFilter{
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
			Limit:    parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:   parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		if d := r.URL.Query().Get("difficulty"); d != "" {
			diff, err := bank.ParseDifficulty(d)
			if err != nil {
				errorJSON(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.Difficulty = diff
		}
		switch company := r.URL.Query().Get("company_id"); company {
		case "":
		case "general":
			f.GeneralOnly = true
		default:
			f.CompanyID = company
		}
		if r.URL.Query().Get("include_inactive") == "" {
			f.ActiveOnly = true
		}
		list, err := store.ListQuestions(r.Context(), f)
		if err != nil {
			errorJSON(w, "failed to load questions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func CreateQuestionHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q bank.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		created, err := store.CreateQuestion(r.Context(), q)
		if err != nil {
			errorJSON(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func UpdateQuestionHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q bank.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		q.ID = chi.URLParam(r, "questionID")
		updated, err := store.UpdateQuestion(r.Context(), q)
		if err != nil {
			if errors.Is(err, bank.ErrNotFound) {
				errorJSON(w, "question not found", http.StatusNotFound)
				return
			}
			errorJSON(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// DeleteQuestionHandler soft-deletes: the row stays, the active flag flips.
func DeleteQuestionHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "questionID")
		if err := store.DeactivateQuestion(r.Context(), id); err != nil {
			if errors.Is(err, bank.ErrNotFound) {
				errorJSON(w, "question not found", http.StatusNotFound)
				return
			}
			errorJSON(w, "failed to delete question", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ImportQuestionsHandler accepts a CSV upload (multipart "file" field or raw
// body), archives the blob, and bulk-inserts rows.
func ImportQuestionsHandler(imp *bank.Importer, blobs storage.BlobStore, events audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				errorJSON(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			body = f
		}

		var buf strings.Builder
		if _, err := io.Copy(&buf, body); err != nil {
			errorJSON(w, "read upload", http.StatusBadRequest)
			return
		}
		data := buf.String()

		key := fmt.Sprintf("imports/%d.csv", time.Now().UnixNano())
		if blobs != nil {
			if _, err := blobs.Put(key, strings.NewReader(data)); err != nil {
				errorJSON(w, "archive upload", http.StatusInternalServerError)
				return
			}
		}

		res, err := imp.Import(r.Context(), strings.NewReader(data))
		if err != nil {
			errorJSON(w, err.Error(), http.StatusBadRequest)
			return
		}
		if events != nil {
			_ = events.Record(r.Context(), audit.TypeCSVImported, key, res)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func ListCompaniesHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("all") == ""
		list, err := store.ListCompanies(r.Context(), activeOnly)
		if err != nil {
			errorJSON(w, "failed to load companies", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func CreateCompanyHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		c, err := store.CreateCompany(r.Context(), req.Name)
		if err != nil {
			if errors.Is(err, bank.ErrDuplicateName) {
				errorJSON(w, "company name already exists", http.StatusConflict)
				return
			}
			errorJSON(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func SetCompanyActiveHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Active bool `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, "bad json", http.StatusBadRequest)
			return
		}
		id := chi.URLParam(r, "companyID")
		if err := store.SetCompanyActive(r.Context(), id, req.Active); err != nil {
			if errors.Is(err, bank.ErrNotFound) {
				errorJSON(w, "company not found", http.StatusNotFound)
				return
			}
			errorJSON(w, "failed to update company", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteCompanyHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "companyID")
		if err := store.DeleteCompany(r.Context(), id); err != nil {
			if errors.Is(err, bank.ErrNotFound) {
				errorJSON(w, "company not found", http.StatusNotFound)
				return
			}
			// likely still referenced by questions
			errorJSON(w, "failed to delete company", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
