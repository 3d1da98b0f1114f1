package statements

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages financial statement endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers statement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statements/trial-balance", h.trialBalance)
	r.Get("/statements/profit-and-loss", h.profitAndLoss)
	r.Get("/statements/balance-sheet", h.balanceSheet)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	asOn, ok := parseDate(w, r, "as_on")
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), scope.OrgID, branchFilter(r), asOn)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="trial-balance.csv"`)
		if err := WriteTrialBalanceCSV(w, tb); err != nil {
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	from, ok := parseDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseDate(w, r, "to")
	if !ok {
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), scope.OrgID, branchFilter(r), from, to)
	if err != nil {
		if errors.Is(err, ErrEmptyRange) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="profit-and-loss.csv"`)
		if err := WriteProfitAndLossCSV(w, pl); err != nil {
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	asOn, ok := parseDate(w, r, "as_on")
	if !ok {
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), scope.OrgID, branchFilter(r), asOn)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func parseDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	if name == "from" {
		return date, true
	}
	// upper bounds are inclusive through end of day
	return date.Add(24*time.Hour - time.Nanosecond), true
}

func branchFilter(r *http.Request) *int64 {
	raw := r.URL.Query().Get("branch_id")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}
