package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inbox2excel/internal/config"
	"inbox2excel/internal/database"
	"inbox2excel/internal/email"
	"inbox2excel/internal/handlers"
	"inbox2excel/internal/services"
)

// Handlers groups the HTTP handlers served by the API
type Handlers struct {
	Health  *handlers.HealthHandler
	Extract *handlers.ExtractHandler
	Export  *handlers.ExportHandler
	Filters *handlers.FilterHandler
	Outlook *handlers.OutlookHandler
	Usage   *handlers.UsageHandler
}

// NewHandlers wires services and handlers from configuration
func NewHandlers(db *database.DB, cfg *config.Config, logger *slog.Logger) (*Handlers, error) {
	var oauth *email.OutlookOAuth
	if cfg.OutlookConfigured() {
		var err error
		oauth, err = email.NewOutlookOAuth(email.OutlookOAuthConfig{
			ClientID:     cfg.OutlookClientID,
			ClientSecret: cfg.OutlookClientSecret,
			RedirectURL:  cfg.OutlookRedirectURL,
			Tenant:       cfg.OutlookTenant,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Outlook OAuth is not configured; connect and token refresh are disabled")
	}

	states, err := handlers.NewStateSigner(cfg.OutlookStateSecret, cfg.OutlookStateTTL)
	if err != nil {
		return nil, err
	}
	if cfg.OutlookConfigured() && cfg.OutlookStateSecret == "" {
		logger.Warn("Outlook state secret is not set; pending connections will not survive a restart")
	}

	mailboxes := services.NewOutlookMailboxes(db.Accounts, oauth, cfg.GraphURL, cfg.RequestTimeout, logger)
	extractionService := services.NewExtractionService(mailboxes, db, cfg, cfg.DefaultPlan, logger)
	filterService := services.NewFilterService(db, cfg, cfg.DefaultPlan, logger)

	return &Handlers{
		Health:  handlers.NewHealthHandler(db),
		Extract: handlers.NewExtractHandler(extractionService, cfg.MaxResults),
		Export:  handlers.NewExportHandler(extractionService),
		Filters: handlers.NewFilterHandler(filterService),
		Outlook: handlers.NewOutlookHandler(handlers.OutlookHandlerConfig{
			OAuth:          oauth,
			States:         states,
			Accounts:       db.Accounts,
			GraphURL:       cfg.GraphURL,
			DashboardURL:   cfg.DashboardURL,
			RequestTimeout: cfg.RequestTimeout,
			Logger:         logger,
		}),
		Usage: handlers.NewUsageHandler(extractionService),
	}, nil
}

// RouterOptions controls authentication and CORS
type RouterOptions struct {
	APIKey       string
	DisableAuth  bool
	AllowOrigins []string
	Logger       *slog.Logger
}

// NewRouter registers every API route
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		SecurityMiddleware,
		CORSMiddleware(opts.AllowOrigins),
		ContentTypeMiddleware,
	)

	r.Get("/api/health", h.Health.HealthCheck)

	// Microsoft redirects the browser here; the user travels in the state parameter
	r.Get("/api/outlook/callback", h.Outlook.Callback)

	r.Group(func(r chi.Router) {
		if !opts.DisableAuth {
			r.Use(AuthMiddleware(opts.APIKey, logger))
		}
		r.Use(UserMiddleware(logger))

		r.Get("/api/outlook/connect", h.Outlook.Connect)
		r.Get("/api/outlook/status", h.Outlook.Status)
		r.Post("/api/outlook/logout", h.Outlook.Logout)
		r.Post("/api/outlook/extract", h.Extract.Extract)

		r.Post("/api/export", h.Export.Export)
		r.Get("/api/extractions", h.Extract.ListRuns)
		r.Get("/api/extractions/{id}", h.Extract.GetRun)
		r.Get("/api/extractions/{id}/export", h.Export.ExportRun)

		r.Get("/api/filters", h.Filters.GetFilters)
		r.Post("/api/filters", h.Filters.SaveFilter)
		r.Delete("/api/filters/{id}", h.Filters.DeleteFilter)

		r.Get("/api/usage", h.Usage.GetUsage)
	})

	return r
}
