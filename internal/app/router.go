package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridian-erp/meridian-erp/internal/installments"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/posting"
	"github.com/meridian-erp/meridian-erp/internal/recon"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/statements"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	LedgerHandler       *ledger.Handler
	PostingHandler      *posting.Handler
	ReconHandler        *recon.Handler
	InstallmentsHandler *installments.Handler
	StatementsHandler   *statements.Handler
	JobHandler          *jobs.Handler
	JobClient           *jobs.Client
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(api)
		}
		if params.PostingHandler != nil {
			params.PostingHandler.MountRoutes(api)
		}
		if params.ReconHandler != nil {
			params.ReconHandler.MountRoutes(api)
		}
		if params.InstallmentsHandler != nil {
			params.InstallmentsHandler.MountRoutes(api)
		}
		if params.StatementsHandler != nil {
			params.StatementsHandler.MountRoutes(api)
		}
		if params.JobClient != nil {
			api.Post("/admin/backfill", enqueueBackfill(params.Logger, params.JobClient))
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}

// enqueueBackfill submits a ledger backfill job for the caller's organization.
// The heavy lifting runs on the worker; this endpoint only queues it.
func enqueueBackfill(logger *slog.Logger, client *jobs.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := shared.ScopeFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		verify := r.URL.Query().Get("verify") == "true"
		info, err := client.EnqueueBackfill(r.Context(), jobs.BackfillPayload{
			OrgID:  scope.OrgID,
			Verify: verify,
		})
		if err != nil {
			logger.Error("enqueue backfill", slog.Any("error", err))
			httpx.RespondError(w, httpx.ErrUnavailable)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{
			"task_id": info.ID,
			"queue":   info.Queue,
		})
	}
}
