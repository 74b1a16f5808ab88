// Package router wires the HTTP surface: public telephony webhooks, the
// admin settings API, and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hivedesk/engage-platform/internal/http/handlers"
	httpmiddleware "github.com/hivedesk/engage-platform/internal/http/middleware"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	VoiceWebhooks      *handlers.VoiceWebhookHandler
	VoiceSettings      *handlers.VoiceSettingsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks).
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.VoiceWebhooks != nil {
			public.Route("/webhooks/twilio/voice", func(r chi.Router) {
				r.Post("/inbound", cfg.VoiceWebhooks.HandleInbound)
				r.Post("/turn", cfg.VoiceWebhooks.HandleTurn)
				r.Post("/status", cfg.VoiceWebhooks.HandleStatus)
			})
		}
	})

	// Admin routes (protected by JWT, rate limited per IP).
	if cfg.VoiceSettings != nil {
		r.Route("/api/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.RateLimit(10, 20))
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/tenants/{tenantID}", func(tenant chi.Router) {
				tenant.Get("/voice-settings", cfg.VoiceSettings.HandleGet)
				tenant.Put("/voice-settings", cfg.VoiceSettings.HandlePut)
			})
		})
	}

	return r
}
