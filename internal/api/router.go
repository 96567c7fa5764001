package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-relay/internal/api/handler"
	apimw "github.com/notifyhub/notification-relay/internal/api/middleware"
	"github.com/notifyhub/notification-relay/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.NotificationService,
	broker handler.BrokerState,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(svc, logger)
	sh := handler.NewStatsHandler(svc)
	hh := handler.NewHealthHandler(broker)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Post("/notificar", nh.Submit)

	r.Route("/notificacao", func(r chi.Router) {
		r.Get("/status/{mensagemId}", nh.Status)
		r.Get("/{mensagemId}", nh.Get)
		r.Delete("/{mensagemId}", nh.Clear)
	})

	r.Get("/notificacoes", nh.List)
	r.Get("/notificacoes/stats", sh.GetStats)

	return r
}
