package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	api "github.com/aptibase/aptibase/internal/api/http"
	"github.com/aptibase/aptibase/internal/audit"
	auth "github.com/aptibase/aptibase/internal/auth/middleware"
	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/db"
	"github.com/aptibase/aptibase/internal/rbac"
	"github.com/aptibase/aptibase/internal/report"
	"github.com/aptibase/aptibase/internal/session"
	"github.com/aptibase/aptibase/internal/storage"
)

var dbSeq int

// newTestServer wires the full router against a shared-cache sqlite memory
// database, mirroring the gateway's route table.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	dbSeq++
	dsn := fmt.Sprintf("file:apitest%d?mode=memory&cache=shared", dbSeq)
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := db.EnsureAdmin(ctx, dbh, "admin", string(hash)); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	questions := bank.NewSQLStore(dbh)
	tests := session.NewSQLStore(dbh)
	reports := report.NewSQLStore(dbh)
	events := audit.NewEventRepo(dbh)
	importer := bank.NewImporter(questions)
	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	mgr := session.NewManager(tests, questions, events, time.Now)
	gen := report.NewGenerator(reports, tests, questions, nil, events, time.Now)
	authSvc := auth.NewAuthService("test-secret")

	r := chi.NewRouter()
	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	r.Post("/auth/register", auth.RegisterHandler(authSvc, dbh))
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.With(rbac.Require("question:list")).
			Get("/questions", api.ListQuestionsHandler(questions))
		pr.With(rbac.Require("question:create")).
			Post("/questions", api.CreateQuestionHandler(questions))
		pr.With(rbac.Require("question:import")).
			Post("/questions/import", api.ImportQuestionsHandler(importer, blobs, events))
		pr.With(rbac.Require("company:list")).
			Get("/companies", api.ListCompaniesHandler(questions))
		pr.With(rbac.Require("test:start")).
			Post("/tests", api.StartTestHandler(mgr))
		pr.With(rbac.RequireAny("test:view-own", "test:view-all")).
			Get("/tests", api.ListTestsHandler(tests))
		pr.With(rbac.Require("test:answer")).
			Post("/tests/{testID}/answers", api.SelectAnswerHandler(mgr))
		pr.With(rbac.Require("test:answer")).
			Post("/tests/{testID}/navigate", api.NavigateHandler(mgr))
		pr.With(rbac.Require("test:submit")).
			Post("/tests/{testID}/submit", api.SubmitTestHandler(mgr))
		pr.With(rbac.RequireAny("test:view-own", "test:view-all")).
			Get("/tests/{testID}", api.GetTestHandler(tests))
		pr.With(rbac.Require("report:generate")).
			Post("/tests/{testID}/generate-report", api.GenerateReportHandler(gen, tests))
		pr.With(rbac.RequireAny("report:view-own", "report:view-all")).
			Get("/tests/{testID}/report", api.GetReportHandler(reports, tests))
		pr.With(rbac.Require("stats:all")).
			Get("/admin/stats", api.AdminStatsHandler(dbh))
		pr.With(rbac.Require("stats:own")).
			Get("/me/stats", api.StudentStatsHandler(dbh))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	var out struct {
		AccessToken string `json:"access_token"`
	}
	code := doJSON(t, srv, http.MethodPost, "/auth/login", "",
		map[string]string{"username": username, "password": password}, &out)
	if code != http.StatusOK || out.AccessToken == "" {
		t.Fatalf("login %s: status %d", username, code)
	}
	return out.AccessToken
}

func register(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	var out struct {
		AccessToken string `json:"access_token"`
	}
	code := doJSON(t, srv, http.MethodPost, "/auth/register", "",
		map[string]string{"username": username, "password": password}, &out)
	if code != http.StatusCreated || out.AccessToken == "" {
		t.Fatalf("register %s: status %d", username, code)
	}
	return out.AccessToken
}

func importQuestions(t *testing.T, srv *httptest.Server, token, csv string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/questions/import", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status %d", resp.StatusCode)
	}
}

func easyQuestionsCSV(n int) string {
	var b strings.Builder
	b.WriteString("question_text,option_a,option_b,option_c,option_d,correct_option,difficulty_level,category\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Question %d,a,b,c,d,A,EASY,Logical Reasoning\n", i)
	}
	return b.String()
}

func TestStudentFlow_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin-pass")
	importQuestions(t, srv, admin, easyQuestionsCSV(20))
	student := register(t, srv, "alice", "hunter22")

	var view session.View
	code := doJSON(t, srv, http.MethodPost, "/tests", student,
		map[string]string{"difficulty": "EASY"}, &view)
	if code != http.StatusCreated {
		t.Fatalf("start test: status %d", code)
	}
	if len(view.Questions) != 20 || view.TimeLimitSec != 1200 {
		t.Fatalf("unexpected view: %d questions, %ds budget", len(view.Questions), view.TimeLimitSec)
	}

	// Answer everything correctly, exercising navigation along the way.
	for i, q := range view.Questions {
		code = doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/answers", student,
			map[string]string{"question_id": q.ID, "selected_option": "A"}, nil)
		if code != http.StatusNoContent {
			t.Fatalf("answer %d: status %d", i, code)
		}
		var nav struct {
			Cursor int `json:"current_question"`
		}
		code = doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/navigate", student,
			map[string]string{"direction": "next"}, &nav)
		if code != http.StatusOK {
			t.Fatalf("navigate: status %d", code)
		}
	}

	var result session.Test
	code = doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/submit", student, nil, &result)
	if code != http.StatusOK {
		t.Fatalf("submit: status %d", code)
	}
	if result.Score != 100 || result.CorrectAnswers != 20 || result.WrongAnswers != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	code = doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/submit", student, nil, nil)
	if code != http.StatusNotFound && code != http.StatusConflict {
		t.Fatalf("second submit: status %d", code)
	}

	var rep report.Report
	code = doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/generate-report", student, nil, &rep)
	if code != http.StatusOK {
		t.Fatalf("generate report: status %d", code)
	}
	if rep.TestID != view.Test.ID || rep.Summary == "" {
		t.Fatalf("bad report: %+v", rep)
	}

	var again report.Report
	code = doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/generate-report", student, nil, &again)
	if code != http.StatusOK || again.ID != rep.ID {
		t.Fatalf("report not idempotent: status %d, ids %s/%s", code, rep.ID, again.ID)
	}

	var fetched report.Report
	code = doJSON(t, srv, http.MethodGet, "/tests/"+view.Test.ID+"/report", student, nil, &fetched)
	if code != http.StatusOK || fetched.ID != rep.ID {
		t.Fatalf("get report: status %d", code)
	}

	var stats map[string]any
	code = doJSON(t, srv, http.MethodGet, "/me/stats", student, nil, &stats)
	if code != http.StatusOK {
		t.Fatalf("student stats: status %d", code)
	}
	if stats["tests_taken"].(float64) != 1 {
		t.Fatalf("stats=%v", stats)
	}
}

func TestStartTest_NoQuestionsForDifficulty(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin-pass")
	importQuestions(t, srv, admin, easyQuestionsCSV(5))
	student := register(t, srv, "bob", "hunter22")

	code := doJSON(t, srv, http.MethodPost, "/tests", student,
		map[string]string{"difficulty": "HARD"}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("status %d, want 404 when the pool is empty", code)
	}
	code = doJSON(t, srv, http.MethodGet, "/tests", student, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("list tests: status %d", code)
	}
}

func TestPermissions(t *testing.T) {
	srv := newTestServer(t)
	student := register(t, srv, "carol", "hunter22")

	question := map[string]string{
		"question_text": "q", "option_a": "a", "option_b": "b",
		"option_c": "c", "option_d": "d", "correct_option": "A",
		"difficulty_level": "EASY",
	}
	if code := doJSON(t, srv, http.MethodPost, "/questions", student, question, nil); code != http.StatusForbidden {
		t.Fatalf("student created a question: status %d", code)
	}
	if code := doJSON(t, srv, http.MethodGet, "/admin/stats", student, nil, nil); code != http.StatusForbidden {
		t.Fatalf("student read admin stats: status %d", code)
	}
	if code := doJSON(t, srv, http.MethodGet, "/tests", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous listed tests: status %d", code)
	}

	admin := login(t, srv, "admin", "admin-pass")
	if code := doJSON(t, srv, http.MethodPost, "/questions", admin, question, nil); code != http.StatusCreated {
		t.Fatalf("admin create question: status %d", code)
	}
}

func TestOwnership_StudentCannotTouchAnotherSession(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin-pass")
	importQuestions(t, srv, admin, easyQuestionsCSV(20))
	alice := register(t, srv, "alice2", "hunter22")
	mallory := register(t, srv, "mallory", "hunter22")

	var view session.View
	if code := doJSON(t, srv, http.MethodPost, "/tests", alice,
		map[string]string{"difficulty": "EASY"}, &view); code != http.StatusCreated {
		t.Fatalf("start: status %d", code)
	}

	code := doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/answers", mallory,
		map[string]string{"question_id": view.Questions[0].ID, "selected_option": "A"}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("foreign answer: status %d, want 403", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/submit", mallory, nil, nil); code != http.StatusForbidden {
		t.Fatalf("foreign submit: status %d, want 403", code)
	}
	if code := doJSON(t, srv, http.MethodGet, "/tests/"+view.Test.ID, mallory, nil, nil); code != http.StatusForbidden {
		t.Fatalf("foreign read: status %d, want 403", code)
	}
	// The admin role may read any attempt.
	if code := doJSON(t, srv, http.MethodGet, "/tests/"+view.Test.ID, admin, nil, nil); code != http.StatusOK {
		t.Fatalf("admin read: status %d", code)
	}
}

func TestGenerateReport_UnknownAndInProgress(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "admin-pass")
	importQuestions(t, srv, admin, easyQuestionsCSV(20))
	student := register(t, srv, "dave", "hunter22")

	if code := doJSON(t, srv, http.MethodPost, "/tests/nope/generate-report", student, nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown test: status %d, want 404", code)
	}

	var view session.View
	if code := doJSON(t, srv, http.MethodPost, "/tests", student,
		map[string]string{"difficulty": "EASY"}, &view); code != http.StatusCreated {
		t.Fatalf("start: status %d", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/tests/"+view.Test.ID+"/generate-report", student, nil, nil); code != http.StatusConflict {
		t.Fatalf("in-progress report: status %d, want 409", code)
	}
}
