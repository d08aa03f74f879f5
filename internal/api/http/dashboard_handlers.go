package http

import (
	"database/sql"
	"math"
	"net/http"

	"github.com/aptibase/aptibase/internal/audit"
	authmw "github.com/aptibase/aptibase/internal/auth/middleware"
)

// AdminStatsHandler backs the admin dashboard: headline counts plus the
// platform-wide average score, rounded to one decimal.
func AdminStatsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var (
			users, questions, tests int
			avgScore                sql.NullFloat64
		)
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
			errorJSON(w, "failed to load stats", http.StatusInternalServerError)
			return
		}
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM questions WHERE is_active=$1`, true).Scan(&questions); err != nil {
			errorJSON(w, "failed to load stats", http.StatusInternalServerError)
			return
		}
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*), AVG(score) FROM tests WHERE completed_at IS NOT NULL`).
			Scan(&tests, &avgScore); err != nil {
			errorJSON(w, "failed to load stats", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_users":      users,
			"active_questions": questions,
			"tests_taken":      tests,
			"avg_score":        round1(avgScore.Float64),
		})
	}
}

// StudentStatsHandler backs the student dashboard for the caller.
func StudentStatsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		var (
			tests     int
			avgScore  sql.NullFloat64
			bestScore sql.NullFloat64
			totalSec  sql.NullInt64
		)
		err := db.QueryRowContext(r.Context(),
			`SELECT COUNT(*), AVG(score), MAX(score), SUM(duration_seconds)
			 FROM tests WHERE user_id=$1 AND completed_at IS NOT NULL`, userID).
			Scan(&tests, &avgScore, &bestScore, &totalSec)
		if err != nil {
			errorJSON(w, "failed to load stats", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tests_taken":        tests,
			"avg_score":          round1(avgScore.Float64),
			"best_score":         round1(bestScore.Float64),
			"total_time_seconds": totalSec.Int64,
		})
	}
}

// ListEventsHandler exposes the audit trail to admins.
func ListEventsHandler(repo *audit.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		events, err := repo.List(r.Context(), limit)
		if err != nil {
			errorJSON(w, "failed to load events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
