package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"focus-timer/internal/handlers"
	"focus-timer/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	timerHandler *handlers.TimerHandler,
	wsHandler http.HandlerFunc,
	frontendURL string,
	startRatePerMinute int,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Start is the only call that creates rows, so it gets its own limiter
	startLimiter := middleware.NewRateLimiter(startRatePerMinute, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Timer Routes ────
		r.Route("/timer", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(startLimiter.Middleware).Post("/start", timerHandler.Start)
			r.Get("/running", timerHandler.Running)
			r.Get("/sessions", timerHandler.Sessions)
			r.Get("/today", timerHandler.Today)
			r.Post("/{id}/pause", timerHandler.Pause)
			r.Post("/{id}/resume", timerHandler.Resume)
			r.Post("/{id}/stop", timerHandler.Stop)
			r.Delete("/{id}", timerHandler.Discard)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHandler)
	})

	return r
}
