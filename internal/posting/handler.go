package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages business document endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Put("/invoices/{id}", h.editInvoice)
	r.Post("/invoices/{id}/cancel", h.cancelInvoice)

	r.Post("/purchases", h.createPurchase)
	r.Put("/purchases/{id}", h.editPurchase)
	r.Post("/purchases/{id}/cancel", h.cancelPurchase)

	r.Post("/payments", h.createPayment)
	r.Post("/payments/{id}/cancel", h.cancelPayment)

	r.Post("/stock-adjustments", h.createStockAdjustment)
}

type itemPayload struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

type invoicePayload struct {
	Number     string        `json:"number" validate:"required,max=64"`
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	GrandTotal float64       `json:"grand_total" validate:"required,gt=0"`
	TaxAmount  float64       `json:"tax_amount" validate:"gte=0"`
	Date       time.Time     `json:"date"`
	Items      []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type purchasePayload struct {
	Number     string        `json:"number" validate:"required,max=64"`
	SupplierID int64         `json:"supplier_id" validate:"required,gt=0"`
	GrandTotal float64       `json:"grand_total" validate:"required,gt=0"`
	Date       time.Time     `json:"date"`
	Items      []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type paymentPayload struct {
	Direction  string     `json:"direction" validate:"required,oneof=INFLOW OUTFLOW"`
	CustomerID *int64     `json:"customer_id"`
	SupplierID *int64     `json:"supplier_id"`
	InvoiceID  *uuid.UUID `json:"invoice_id"`
	Amount     float64    `json:"amount" validate:"required,gt=0"`
	Method     string     `json:"method" validate:"max=32"`
	Via        string     `json:"via" validate:"required,oneof=CASH BANK"`
	Date       time.Time  `json:"date"`
}

type adjustmentPayload struct {
	ProductID int64     `json:"product_id" validate:"required,gt=0"`
	Direction string    `json:"direction" validate:"required,oneof=ADD SUBTRACT"`
	Qty       float64   `json:"qty" validate:"required,gt=0"`
	UnitCost  float64   `json:"unit_cost" validate:"gte=0"`
	Note      string    `json:"note" validate:"max=255"`
	Date      time.Time `json:"date"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var payload invoicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.PostInvoice(r.Context(), scope, InvoiceInput{
		Number:     payload.Number,
		CustomerID: payload.CustomerID,
		GrandTotal: payload.GrandTotal,
		TaxAmount:  payload.TaxAmount,
		Date:       payload.Date,
		Items:      toItems(payload.Items),
	})
	if err != nil {
		h.respondError(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse(inv))
}

func (h *Handler) editInvoice(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be a UUID")
		return
	}
	var payload invoicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.EditInvoice(r.Context(), scope, id, InvoiceUpdate{
		Number:     payload.Number,
		GrandTotal: payload.GrandTotal,
		TaxAmount:  payload.TaxAmount,
		Date:       payload.Date,
		Items:      toItems(payload.Items),
	})
	if err != nil {
		h.respondError(w, "edit invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.cancelDocument(w, r, "cancel invoice", h.service.CancelInvoice)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var payload purchasePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.PostPurchase(r.Context(), scope, PurchaseInput{
		Number:     payload.Number,
		SupplierID: payload.SupplierID,
		GrandTotal: payload.GrandTotal,
		Date:       payload.Date,
		Items:      toItems(payload.Items),
	})
	if err != nil {
		h.respondError(w, "create purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchaseResponse(p))
}

func (h *Handler) editPurchase(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase id must be a UUID")
		return
	}
	var payload purchasePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.EditPurchase(r.Context(), scope, id, PurchaseUpdate{
		Number:     payload.Number,
		GrandTotal: payload.GrandTotal,
		Date:       payload.Date,
		Items:      toItems(payload.Items),
	})
	if err != nil {
		h.respondError(w, "edit purchase", err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseResponse(p))
}

func (h *Handler) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	h.cancelDocument(w, r, "cancel purchase", h.service.CancelPurchase)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var payload paymentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.PostPayment(r.Context(), scope, PaymentInput{
		Direction:  PaymentDirection(payload.Direction),
		CustomerID: payload.CustomerID,
		SupplierID: payload.SupplierID,
		InvoiceID:  payload.InvoiceID,
		Amount:     payload.Amount,
		Method:     payload.Method,
		Via:        payload.Via,
		Date:       payload.Date,
	})
	if err != nil {
		h.respondError(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse(p))
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	h.cancelDocument(w, r, "cancel payment", h.service.CancelPayment)
}

func (h *Handler) createStockAdjustment(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var payload adjustmentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.service.PostStockAdjustment(r.Context(), scope, AdjustmentInput{
		ProductID: payload.ProductID,
		Direction: AdjustmentDirection(payload.Direction),
		Qty:       payload.Qty,
		UnitCost:  payload.UnitCost,
		Note:      payload.Note,
		Date:      payload.Date,
	})
	if err != nil {
		h.respondError(w, "create stock adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         adj.ID,
		"product_id": adj.ProductID,
		"direction":  adj.Direction,
		"qty":        adj.Qty,
		"cost_value": adj.CostValue,
		"status":     adj.Status,
	})
}

func (h *Handler) cancelDocument(w http.ResponseWriter, r *http.Request, op string, cancel func(context.Context, shared.Scope, uuid.UUID) error) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a UUID")
		return
	}
	if err := cancel(r.Context(), scope, id); err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(StatusCancelled)})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ledger.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDocumentCancelled):
		httpx.Problem(w, http.StatusConflict, "Document Cancelled", err.Error())
	case errors.Is(err, inventory.ErrStockConsumed):
		httpx.Problem(w, http.StatusConflict, "Stock Consumed", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Document", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrUnbalanced), errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledger.ErrCriticalAccountMissing):
		httpx.RespondError(w, httpx.ErrMisconfig)
	default:
		h.logger.Error(fmt.Sprintf("%s failed", op), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toItems(payload []itemPayload) []DocumentItem {
	items := make([]DocumentItem, 0, len(payload))
	for _, item := range payload {
		items = append(items, DocumentItem{ProductID: item.ProductID, Qty: item.Qty, UnitCost: item.UnitCost})
	}
	return items
}

func invoiceResponse(inv Invoice) map[string]any {
	return map[string]any{
		"id":          inv.ID,
		"number":      inv.Number,
		"customer_id": inv.CustomerID,
		"grand_total": inv.GrandTotal,
		"tax_amount":  inv.TaxAmount,
		"status":      inv.Status,
		"date":        inv.Date,
	}
}

func purchaseResponse(p Purchase) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"number":      p.Number,
		"supplier_id": p.SupplierID,
		"grand_total": p.GrandTotal,
		"status":      p.Status,
		"date":        p.Date,
	}
}

func paymentResponse(p Payment) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"direction": p.Direction,
		"amount":    p.Amount,
		"via":       p.Via,
		"status":    p.Status,
		"date":      p.Date,
	}
}
