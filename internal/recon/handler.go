package recon

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages reconciliation endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/recon/scan", h.scan)
	r.Get("/recon/checks", h.history)
	r.Post("/recon/checks", h.runCheck)
	r.Get("/recon/lines/{refType}/{refID}", h.drillDown)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	report, err := h.service.ScanOrg(r.Context(), scope.OrgID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	checks, err := h.service.History(r.Context(), scope.OrgID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checks)
}

func (h *Handler) runCheck(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	check, err := h.service.CheckOrg(r.Context(), scope.OrgID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) drillDown(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	refID, err := uuid.Parse(chi.URLParam(r, "refID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "reference id must be a UUID")
		return
	}
	refType := ledger.RefType(chi.URLParam(r, "refType"))
	lines, err := h.service.DrillDown(r.Context(), scope.OrgID, refType, refID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}
