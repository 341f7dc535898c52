package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	authmw "github.com/gabicam/gabicam/internal/auth/middleware"
	"github.com/gabicam/gabicam/internal/grading"
	"github.com/gabicam/gabicam/internal/rbac"
	"github.com/gabicam/gabicam/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Users  UserStore
	Exams  ExamService
	Auth   *authmw.AuthService
	Grader Grader
	Names  grading.NameReader
	Blobs  storage.BlobStore
	Events EventLog
	DB     Pinger

	ExpectedQuestions int
	CORSOrigins       []string
	RequestTimeout    time.Duration
	Log               *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", authmw.RegistrationHeader},
		ExposedHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "API está funcionando!"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				d.Log.Warn("readiness check failed", "err", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/api/login", LoginHandler(d.Users, d.Auth, d.Log))
	r.Post("/api/cadastro", RegisterHandler(d.Users, d.Log))

	authn := authmw.Middleware(d.Auth, d.Users, d.Log)

	if d.Blobs != nil {
		r.Group(func(pr chi.Router) {
			pr.Use(authn)
			pr.Route("/assets", func(ar chi.Router) {
				MountAssets(ar, d.Blobs, d.Exams, d.Log)
			})
		})
	}

	gd := GradingDeps{
		Exams:             d.Exams,
		Grader:            d.Grader,
		Names:             d.Names,
		Blobs:             d.Blobs,
		ExpectedQuestions: d.ExpectedQuestions,
		Log:               d.Log,
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Use(authn)

		ar.Route("/provas", func(pr chi.Router) {
			pr.With(rbac.Require("exam:view_own")).Get("/", ListExamsHandler(d.Exams, d.Log))
			pr.With(rbac.Require("exam:create")).Post("/criar-prova", CreateExamHandler(d.Exams, d.Log))
			pr.With(rbac.Require("exam:update_own")).Put("/atualizar-gabarito/{provaId}", UpdateAnswerKeyHandler(d.Exams, d.Log))
			pr.With(rbac.Require("exam:delete_own")).Delete("/deletar-prova/{provaId}", DeleteExamHandler(d.Exams, d.Log))

			pr.With(rbac.Require("results:save")).Post("/salvar-resultados", SaveResultsHandler(d.Exams, d.Log))
			pr.With(rbac.Require("results:view_own")).Get("/resultados", ListResultsHandler(d.Exams, d.Log))
			pr.With(rbac.Require("results:export")).Get("/resultados/{provaId}/export", ExportResultsHandler(d.Exams, d.Log))
			pr.With(rbac.Require("results:view_own")).Get("/ultimo-salvamento/{provaId}", LastSaveHandler(d.Exams, d.Log))
			pr.With(rbac.Require("results:view_own")).Get("/estatisticas/{provaId}", StatsHandler(d.Exams, d.Log))

			pr.With(rbac.Require("exam:view_own")).Get("/{provaId}", GetExamHandler(d.Exams, d.Log))
		})

		if d.Grader != nil {
			ar.With(rbac.Require("grading:submit")).Post("/correcao/corrigir", GradeSheetHandler(gd))
			ar.With(rbac.Require("grading:submit")).Post("/correcao/ler-qrcode", ReadNameHandler(gd))
		}

		ar.With(rbac.Require("user:change_password")).Post("/usuarios/alterar-senha", ChangePasswordHandler(d.Users, d.Log))
		ar.With(rbac.Require("users:list")).Get("/usuarios", ListUsersHandler(d.Users, d.Log))
		ar.With(rbac.Require("users:bulk_upsert")).Post("/usuarios/lote", BulkUpsertUsersHandler(d.Users, d.Log))
		ar.With(rbac.Require("users:update_role")).Put("/usuarios/{matricula}/role", AdminUpdateUserRoleHandler(d.Users, d.Log))

		if d.Events != nil {
			ar.With(rbac.Require("events:list")).Get("/admin/eventos", ListEventsHandler(d.Events, d.Log))
		}
	})

	return r
}
