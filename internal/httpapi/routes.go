package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tournament-voting-backend/internal/hub"
	"github.com/DoyleJ11/tournament-voting-backend/internal/logging"
	"github.com/DoyleJ11/tournament-voting-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, logger *zap.Logger, gatherer prometheus.Gatherer) http.Handler {
	logger = logging.OrNop(logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, logger))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/tournaments", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Post("/", CreateTournament(h))
		r.Get("/{code}", GetTournament(h))
		r.Post("/{code}/entries", SetEntries(h))
		r.Post("/{code}/votes", CastVote(h))
		r.Post("/{code}/next", Next(h))
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
