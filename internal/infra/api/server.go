package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"resource-marketplace/internal/config"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/domain/ports/repository"
	red "resource-marketplace/internal/infra/redis"
	"resource-marketplace/internal/usecase"
)

// Server wires the commerce core's HTTP surface: checkout, the three
// reconciliation entry points, entitlement refresh and the download gate.
//
// Authentication of end users happens upstream (the marketplace app
// terminates sessions); this service trusts the X-User-ID header set by
// that layer. Operator routes use a bearer key instead.
type Server struct {
	checkout  usecase.CheckoutUseCase
	reconcile usecase.ReconcileUseCase
	entitle   usecase.EntitlementUseCase
	download  usecase.DownloadUseCase
	methods   usecase.PaymentMethodUseCase
	files     adapter.FileStore
	settings  repository.GatewaySettingsRepository
	limiter   *red.RateLimiter
	cfg       *config.Config
	log       *zerolog.Logger
}

func NewServer(
	checkout usecase.CheckoutUseCase,
	reconcile usecase.ReconcileUseCase,
	entitle usecase.EntitlementUseCase,
	download usecase.DownloadUseCase,
	methods usecase.PaymentMethodUseCase,
	files adapter.FileStore,
	settings repository.GatewaySettingsRepository,
	limiter *red.RateLimiter,
	cfg *config.Config,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		checkout:  checkout,
		reconcile: reconcile,
		entitle:   entitle,
		download:  download,
		methods:   methods,
		files:     files,
		settings:  settings,
		limiter:   limiter,
		cfg:       cfg,
		log:       logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", s.handleCheckout)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", s.handleWebhook)
			r.Get("/callback", s.handleRedirect)
			r.Get("/{paymentID}/status", s.handleStatus)
			r.Post("/{paymentID}/cancel", s.handleCancel)
			r.Post("/{paymentID}/retry", s.handleRetry)
		})

		r.Route("/payment-methods", func(r chi.Router) {
			r.Post("/", s.handleMethodSave)
			r.Get("/", s.handleMethodList)
			r.Delete("/{methodID}", s.handleMethodDelete)
		})

		r.Post("/purchases/{purchaseID}/download-link", s.handleRefreshDownload)
		r.Get("/download/{slug}", s.handleDownload)
	})

	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Get("/payments/stale", s.handleStalePending)
	})

	return r
}

// adminAuth provides simple Bearer token authentication for operator routes.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.AdminAPIKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if parts[1] != s.cfg.Server.AdminAPIKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userID extracts the authenticated user set by the upstream session layer.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
