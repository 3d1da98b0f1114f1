package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages raw journal endpoints. Business documents post through
// the orchestrator; this surface exists for manual adjustments and audit
// reads.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/journal/manual", h.postManual)
	r.Get("/journal/{refType}/{refID}", h.listByReference)
	r.Get("/journal/balance", h.orgBalance)
}

type manualLinePayload struct {
	AccountID  int64   `json:"account_id" validate:"required,gt=0"`
	CustomerID *int64  `json:"customer_id"`
	SupplierID *int64  `json:"supplier_id"`
	Debit      float64 `json:"debit" validate:"gte=0"`
	Credit     float64 `json:"credit" validate:"gte=0"`
	Memo       string  `json:"memo" validate:"max=255"`
}

type manualPostingPayload struct {
	Date  time.Time           `json:"date"`
	Lines []manualLinePayload `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) postManual(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var payload manualPostingPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]LineInput, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		lines = append(lines, LineInput{
			AccountID:  line.AccountID,
			CustomerID: line.CustomerID,
			SupplierID: line.SupplierID,
			Debit:      line.Debit,
			Credit:     line.Credit,
			Memo:       line.Memo,
		})
	}
	rows, err := h.service.PostLines(r.Context(), scope, Posting{
		RefType: RefTypeManual,
		RefID:   uuid.New(),
		Date:    payload.Date,
		Lines:   lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"ref_id": rows[0].RefID,
		"lines":  len(rows),
	})
}

func (h *Handler) listByReference(w http.ResponseWriter, r *http.Request) {
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
	lines, err := h.service.LinesByReference(r.Context(), scope.OrgID, RefType(chi.URLParam(r, "refType")), refID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) orgBalance(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	debit, credit, err := h.service.OrgBalance(r.Context(), scope.OrgID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{
		"debit":  debit,
		"credit": credit,
		"diff":   shared.Round2(debit - credit),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvariant), errors.Is(err, ErrUnbalanced):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
