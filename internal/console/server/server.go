package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xela07ax/compliance-console/internal/console/handler"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

// Handlers — обработчики вкладок дашборда
type Handlers struct {
	Auth      *handler.AuthHandler      // /auth/token
	Dashboard *handler.DashboardHandler // /api/v1/dashboard
	Workflows *handler.WorkflowHandler  // /v1/workflows
	KYC       *handler.KYCHandler       // /v1/kyc
	AML       *handler.AMLHandler       // /v1/aml
	Risk      *handler.RiskHandler      // /v1/risk
	Uploads   *handler.UploadHandler    // /v1/uploads
	Audit     *handler.AuditHandler     // /v1/audit
	Entities  *handler.EntityHandler    // /v1/entities
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    infra.ServerConfig

	// Проверка токенов (RS256), реализуется BaseValidator
	authValidator auth.TokenValidator

	h Handlers
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(cfg infra.ServerConfig, logger *zap.Logger, validator auth.TokenValidator, h Handlers) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		cfg:           cfg,
		authValidator: validator,
		h:             h,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.h.Auth.Login)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Get("/api/v1/dashboard/stats", s.h.Dashboard.GetStats)

		// Многоуровневые согласования
		r.Route("/v1/workflows", func(r chi.Router) {
			r.Get("/", s.h.Workflows.List)
			r.Get("/mine", s.h.Workflows.Mine)
			r.Get("/{id}", s.h.Workflows.Get)

			r.With(auth.RequireScope(auth.ScopeWorkflowsDecide)).Group(func(r chi.Router) {
				r.Post("/", s.h.Workflows.Create)
				r.Post("/batch", s.h.Workflows.Batch)
				r.Post("/{id}/approve", s.h.Workflows.Approve)
				r.Post("/{id}/reject", s.h.Workflows.Reject)
				r.Post("/{id}/escalate", s.h.Workflows.Escalate)
			})
		})

		// Проверки у внешних провайдеров
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeChecksRun))

			r.Post("/v1/kyc/verifications", s.h.KYC.Start)
			r.Get("/v1/kyc/checks/{id}", s.h.KYC.GetCheck)
			r.Post("/v1/kyc/checks/{id}/refresh", s.h.KYC.Refresh)

			r.Post("/v1/aml/checks", s.h.AML.Check)
			r.Post("/v1/aml/batches", s.h.AML.Batch)
			r.Get("/v1/aml/batches/{id}", s.h.AML.GetBatch)
			r.Get("/v1/aml/template.csv", s.h.AML.Template)

			r.Post("/v1/risk/assessments", s.h.Risk.Assess)
		})

		// Массовая загрузка реестров
		r.Get("/v1/uploads/{kind}/template", s.h.Uploads.Template)
		r.With(auth.RequireScope(auth.ScopeUploadsWrite)).Post("/v1/uploads/{kind}", s.h.Uploads.Upload)

		// Аудит и выгрузки
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeAuditRead))

			r.Get("/v1/audit", s.h.Audit.GetLogs)
			r.Get("/v1/audit/export", s.h.Audit.Export)
			r.Get("/v1/entities/{kind}/export", s.h.Entities.Export)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
