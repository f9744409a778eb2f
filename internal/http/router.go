package http

import (
	"net/http"

	"relay/internal/config"
	"relay/internal/http/handler"
	mw "relay/internal/http/middleware"
	"relay/internal/status"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, sender handler.MessageSender, reporter handler.StatusReporter, version string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	healthH := &handler.HealthHandler{WorkerEnabled: cfg.WorkerEnabled, Version: version}
	sendH := &handler.SendHandler{Sender: sender, Reporter: reporter}
	statusH := &handler.StatusHandler{Svc: &status.Reconciler{DB: db}}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSecret(cfg.GatewaySecret))

		r.Post("/health", healthH.Post)
		r.Post("/send", sendH.Post)
		r.Post("/api/gateway/status", statusH.Post)
	})

	return r
}
