package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/aptibase/aptibase/internal/api/http"
	"github.com/aptibase/aptibase/internal/audit"
	auth "github.com/aptibase/aptibase/internal/auth/middleware"
	"github.com/aptibase/aptibase/internal/bank"
	"github.com/aptibase/aptibase/internal/config"
	"github.com/aptibase/aptibase/internal/db"
	"github.com/aptibase/aptibase/internal/rbac"
	"github.com/aptibase/aptibase/internal/report"
	"github.com/aptibase/aptibase/internal/session"
	"github.com/aptibase/aptibase/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := db.EnsureAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	// --- Stores & services ---
	questions := bank.NewSQLStore(dbh)
	tests := session.NewSQLStore(dbh)
	reports := report.NewSQLStore(dbh)
	events := audit.NewEventRepo(dbh)
	importer := bank.NewImporter(questions)

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	mgr := session.NewManager(tests, questions, events, time.Now)
	if cfg.RecoverAbandoned {
		if n, err := mgr.RecoverAbandoned(ctx); err != nil {
			log.Printf("recover abandoned tests: %v", err)
		} else if n > 0 {
			log.Printf("recovered %d abandoned tests", n)
		}
	}

	var composer report.Composer
	if cfg.LLMAPIKey != "" {
		composer = report.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	}
	gen := report.NewGenerator(reports, tests, questions, composer, events, time.Now)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	r.Post("/auth/register", auth.RegisterHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Question bank (admin)
		pr.With(rbac.Require("question:list")).
			Get("/questions", api.ListQuestionsHandler(questions))
		pr.With(rbac.Require("question:create")).
			Post("/questions", api.CreateQuestionHandler(questions))
		pr.With(rbac.Require("question:update")).
			Put("/questions/{questionID}", api.UpdateQuestionHandler(questions))
		pr.With(rbac.Require("question:delete")).
			Delete("/questions/{questionID}", api.DeleteQuestionHandler(questions))
		pr.With(rbac.Require("question:import")).
			Post("/questions/import", api.ImportQuestionsHandler(importer, blobs, events))

		// Companies
		pr.With(rbac.Require("company:list")).
			Get("/companies", api.ListCompaniesHandler(questions))
		pr.With(rbac.Require("company:create")).
			Post("/companies", api.CreateCompanyHandler(questions))
		pr.With(rbac.Require("company:update")).
			Patch("/companies/{companyID}/active", api.SetCompanyActiveHandler(questions))
		pr.With(rbac.Require("company:delete")).
			Delete("/companies/{companyID}", api.DeleteCompanyHandler(questions))

		// Student flow
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

		// Reports
		pr.With(rbac.Require("report:generate")).
			Post("/tests/{testID}/generate-report", api.GenerateReportHandler(gen, tests))
		pr.With(rbac.RequireAny("report:view-own", "report:view-all")).
			Get("/tests/{testID}/report", api.GetReportHandler(reports, tests))

		// Dashboards
		pr.With(rbac.Require("stats:all")).
			Get("/admin/stats", api.AdminStatsHandler(dbh))
		pr.With(rbac.Require("stats:own")).
			Get("/me/stats", api.StudentStatsHandler(dbh))
		pr.With(rbac.Require("events:list")).
			Get("/admin/events", api.ListEventsHandler(events))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
