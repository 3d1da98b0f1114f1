package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional surface one posting operation touches:
// the ledger, the document stores, stock balances, and counterparty balances
// all mutate inside the same scope, so a failure anywhere commits nothing.
type TxRepository interface {
	ledger.AccountTx
	InsertLines(ctx context.Context, lines []ledger.JournalLine) error
	DeleteLinesByReference(ctx context.Context, orgID int64, refType ledger.RefType, refID uuid.UUID) (int64, error)

	GetInvoiceForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoiceFinancials(ctx context.Context, inv Invoice) error
	UpdateInvoiceStatus(ctx context.Context, orgID int64, id uuid.UUID, status DocumentStatus) error

	GetPurchaseForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Purchase, error)
	InsertPurchase(ctx context.Context, p Purchase) error
	UpdatePurchaseFinancials(ctx context.Context, p Purchase) error
	UpdatePurchaseStatus(ctx context.Context, orgID int64, id uuid.UUID, status DocumentStatus) error

	GetPaymentForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Payment, error)
	InsertPayment(ctx context.Context, p Payment) error
	UpdatePaymentStatus(ctx context.Context, orgID int64, id uuid.UUID, status DocumentStatus) error

	InsertStockAdjustment(ctx context.Context, adj StockAdjustment) error

	GetStockForUpdate(ctx context.Context, orgID, branchID, productID int64) (inventory.Balance, error)
	UpsertStock(ctx context.Context, balance inventory.Balance) error

	AdjustCustomerBalance(ctx context.Context, orgID, customerID int64, delta float64) error
	AdjustSupplierBalance(ctx context.Context, orgID, supplierID int64, delta float64) error
}

// AuditPort records posting events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the posting orchestrator: it maps business events to balanced
// posting sets and co-located operational mutations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	cache       ledger.Invalidator
	idempotency *shared.IdempotencyStore
	maxRetries  int
	now         func() time.Time
}

// NewService constructs the orchestrator.
func NewService(repo RepositoryPort, audit AuditPort, cache ledger.Invalidator, maxRetries int) *Service {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Service{repo: repo, audit: audit, cache: cache, maxRetries: maxRetries, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithIdempotency guards invoice and purchase creation against duplicate
// document numbers across requests.
func (s *Service) WithIdempotency(store *shared.IdempotencyStore) {
	s.idempotency = store
}

// InvoiceInput groups fields required to post a sales invoice.
type InvoiceInput struct {
	Number     string
	CustomerID int64
	GrandTotal float64
	TaxAmount  float64
	Date       time.Time
	Items      []DocumentItem
}

// PurchaseInput groups fields required to post a purchase.
type PurchaseInput struct {
	Number     string
	SupplierID int64
	GrandTotal float64
	Date       time.Time
	Items      []DocumentItem
}

// PaymentInput groups fields required to post a payment.
type PaymentInput struct {
	Direction  PaymentDirection
	CustomerID *int64
	SupplierID *int64
	InvoiceID  *uuid.UUID
	Amount     float64
	Method     string
	Via        string
	Date       time.Time
}

// AdjustmentInput groups fields required to post a stock adjustment.
type AdjustmentInput struct {
	ProductID int64
	Direction AdjustmentDirection
	Qty       float64
	UnitCost  float64
	Note      string
	Date      time.Time
}

// PostInvoice books an invoice: AR debit, sales and tax credits, inventory
// decrement, and customer balance increment, atomically.
func (s *Service) PostInvoice(ctx context.Context, scope shared.Scope, input InvoiceInput) (Invoice, error) {
	if input.CustomerID == 0 {
		return Invoice{}, fmt.Errorf("%w: customer required", ErrValidation)
	}
	if err := validateItems(input.Items); err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		ID:         uuid.New(),
		OrgID:      scope.OrgID,
		BranchID:   scope.BranchID,
		CustomerID: input.CustomerID,
		Number:     input.Number,
		GrandTotal: shared.Round2(input.GrandTotal),
		TaxAmount:  shared.Round2(input.TaxAmount),
		Status:     StatusPosted,
		Date:       s.docDate(input.Date),
		Items:      input.Items,
		CreatedBy:  scope.ActorID,
	}
	key := fmt.Sprintf("INV:%d:%s", scope.OrgID, inv.Number)
	inserted := false
	if s.idempotency != nil && inv.Number != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "posting.invoice"); err != nil {
			return Invoice{}, err
		}
		inserted = true
	}
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.bookInvoice(ctx, tx, scope, inv); err != nil {
			return err
		}
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Invoice{}, err
	}
	s.afterCommit(ctx, scope, "posting.invoice.create", inv.ID.String(), map[string]any{"grand_total": inv.GrandTotal})
	return inv, nil
}

// bookInvoice applies the invoice's ledger lines and operational effects.
// Shared by create and the rebooking half of an edit.
func (s *Service) bookInvoice(ctx context.Context, tx TxRepository, scope shared.Scope, inv Invoice) error {
	for _, item := range inv.Items {
		balance, err := tx.GetStockForUpdate(ctx, inv.OrgID, inv.BranchID, item.ProductID)
		if err != nil {
			return err
		}
		next, err := balance.Subtract(item.Qty)
		if err != nil {
			return err
		}
		if err := tx.UpsertStock(ctx, next); err != nil {
			return err
		}
	}
	accounts, err := s.invoiceAccounts(ctx, tx, inv.OrgID, inv.TaxAmount > 0)
	if err != nil {
		return err
	}
	lines, err := InvoiceLines(accounts, inv)
	if err != nil {
		return err
	}
	if err := ledger.ValidateBatch(lines); err != nil {
		return err
	}
	rows := ledger.BuildLines(scope, ledger.RefTypeInvoice, inv.ID, inv.Date, lines)
	if err := tx.InsertLines(ctx, rows); err != nil {
		return err
	}
	return tx.AdjustCustomerBalance(ctx, inv.OrgID, inv.CustomerID, inv.GrandTotal)
}

// PostPurchase books a purchase: inventory debit, AP credit, inventory
// increment, and supplier balance increment, atomically.
func (s *Service) PostPurchase(ctx context.Context, scope shared.Scope, input PurchaseInput) (Purchase, error) {
	if input.SupplierID == 0 {
		return Purchase{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if err := validateItems(input.Items); err != nil {
		return Purchase{}, err
	}
	p := Purchase{
		ID:         uuid.New(),
		OrgID:      scope.OrgID,
		BranchID:   scope.BranchID,
		SupplierID: input.SupplierID,
		Number:     input.Number,
		GrandTotal: shared.Round2(input.GrandTotal),
		Status:     StatusPosted,
		Date:       s.docDate(input.Date),
		Items:      input.Items,
		CreatedBy:  scope.ActorID,
	}
	key := fmt.Sprintf("PUR:%d:%s", scope.OrgID, p.Number)
	inserted := false
	if s.idempotency != nil && p.Number != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "posting.purchase"); err != nil {
			return Purchase{}, err
		}
		inserted = true
	}
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.bookPurchase(ctx, tx, scope, p); err != nil {
			return err
		}
		return tx.InsertPurchase(ctx, p)
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Purchase{}, err
	}
	s.afterCommit(ctx, scope, "posting.purchase.create", p.ID.String(), map[string]any{"grand_total": p.GrandTotal})
	return p, nil
}

func (s *Service) bookPurchase(ctx context.Context, tx TxRepository, scope shared.Scope, p Purchase) error {
	for _, item := range p.Items {
		balance, err := tx.GetStockForUpdate(ctx, p.OrgID, p.BranchID, item.ProductID)
		if err != nil {
			return err
		}
		next, err := balance.Add(item.Qty, item.UnitCost)
		if err != nil {
			return err
		}
		if err := tx.UpsertStock(ctx, next); err != nil {
			return err
		}
	}
	accounts, err := s.purchaseAccounts(ctx, tx, p.OrgID)
	if err != nil {
		return err
	}
	lines, err := PurchaseLines(accounts, p)
	if err != nil {
		return err
	}
	if err := ledger.ValidateBatch(lines); err != nil {
		return err
	}
	rows := ledger.BuildLines(scope, ledger.RefTypePurchase, p.ID, p.Date, lines)
	if err := tx.InsertLines(ctx, rows); err != nil {
		return err
	}
	return tx.AdjustSupplierBalance(ctx, p.OrgID, p.SupplierID, p.GrandTotal)
}

// PostPayment books a payment in or out, adjusting the counterparty balance.
func (s *Service) PostPayment(ctx context.Context, scope shared.Scope, input PaymentInput) (Payment, error) {
	p := Payment{
		ID:         uuid.New(),
		OrgID:      scope.OrgID,
		BranchID:   scope.BranchID,
		Direction:  input.Direction,
		CustomerID: input.CustomerID,
		SupplierID: input.SupplierID,
		InvoiceID:  input.InvoiceID,
		Amount:     shared.Round2(input.Amount),
		Method:     input.Method,
		Via:        input.Via,
		Status:     StatusPosted,
		Date:       s.docDate(input.Date),
		CreatedBy:  scope.ActorID,
	}
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := s.paymentAccounts(ctx, tx, p.OrgID, p.Direction, p.Via)
		if err != nil {
			return err
		}
		lines, err := PaymentLines(accounts, p)
		if err != nil {
			return err
		}
		if err := ledger.ValidateBatch(lines); err != nil {
			return err
		}
		rows := ledger.BuildLines(scope, ledger.RefTypePayment, p.ID, p.Date, lines)
		if err := tx.InsertLines(ctx, rows); err != nil {
			return err
		}
		if err := s.applyPaymentBalance(ctx, tx, p, false); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		return Payment{}, err
	}
	s.afterCommit(ctx, scope, "posting.payment.create", p.ID.String(), map[string]any{"amount": p.Amount, "direction": string(p.Direction)})
	return p, nil
}

// PostStockAdjustment corrects stock. Quantity must be positive; a zero cost
// value moves quantity without posting journal lines.
func (s *Service) PostStockAdjustment(ctx context.Context, scope shared.Scope, input AdjustmentInput) (StockAdjustment, error) {
	if input.ProductID == 0 {
		return StockAdjustment{}, fmt.Errorf("%w: product required", ErrValidation)
	}
	if input.Qty <= 0 {
		return StockAdjustment{}, inventory.ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return StockAdjustment{}, fmt.Errorf("%w: unit cost cannot be negative", ErrValidation)
	}
	adj := StockAdjustment{
		ID:        uuid.New(),
		OrgID:     scope.OrgID,
		BranchID:  scope.BranchID,
		ProductID: input.ProductID,
		Direction: input.Direction,
		Qty:       input.Qty,
		UnitCost:  input.UnitCost,
		Note:      input.Note,
		Status:    StatusPosted,
		Date:      s.docDate(input.Date),
		CreatedBy: scope.ActorID,
	}
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetStockForUpdate(ctx, adj.OrgID, adj.BranchID, adj.ProductID)
		if err != nil {
			return err
		}
		var next inventory.Balance
		switch adj.Direction {
		case AdjustmentAdd:
			adj.CostValue = inventory.CostValue(adj.Qty, adj.UnitCost)
			next, err = balance.Add(adj.Qty, adj.UnitCost)
		case AdjustmentSubtract:
			adj.CostValue = inventory.CostValue(adj.Qty, balance.AvgCost)
			next, err = balance.Subtract(adj.Qty)
		default:
			return fmt.Errorf("%w: unknown adjustment direction %q", ErrValidation, adj.Direction)
		}
		if err != nil {
			return err
		}
		if err := tx.UpsertStock(ctx, next); err != nil {
			return err
		}
		accounts, err := s.adjustmentAccounts(ctx, tx, adj.OrgID, adj.Direction)
		if err != nil {
			return err
		}
		lines, err := AdjustmentLines(accounts, adj)
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := ledger.ValidateBatch(lines); err != nil {
				return err
			}
			rows := ledger.BuildLines(scope, ledger.RefTypeAdjustment, adj.ID, adj.Date, lines)
			if err := tx.InsertLines(ctx, rows); err != nil {
				return err
			}
		}
		return tx.InsertStockAdjustment(ctx, adj)
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.afterCommit(ctx, scope, "posting.adjustment.create", adj.ID.String(), map[string]any{"qty": adj.Qty, "cost_value": adj.CostValue})
	return adj, nil
}

func (s *Service) applyPaymentBalance(ctx context.Context, tx TxRepository, p Payment, reverse bool) error {
	sign := -1.0
	if reverse {
		sign = 1.0
	}
	switch p.Direction {
	case PaymentInflow:
		if p.CustomerID == nil {
			return fmt.Errorf("%w: inflow requires customer", ErrValidation)
		}
		return tx.AdjustCustomerBalance(ctx, p.OrgID, *p.CustomerID, sign*p.Amount)
	case PaymentOutflow:
		if p.SupplierID == nil {
			return fmt.Errorf("%w: outflow requires supplier", ErrValidation)
		}
		return tx.AdjustSupplierBalance(ctx, p.OrgID, *p.SupplierID, sign*p.Amount)
	}
	return fmt.Errorf("%w: unknown payment direction %q", ErrValidation, p.Direction)
}

func (s *Service) invoiceAccounts(ctx context.Context, tx TxRepository, orgID int64, withTax bool) (InvoiceAccounts, error) {
	var accounts InvoiceAccounts
	var err error
	if accounts.Receivable, err = RequireAccount(ctx, tx, orgID, CodeAccountsReceivable); err != nil {
		return InvoiceAccounts{}, err
	}
	if accounts.Sales, err = RequireAccount(ctx, tx, orgID, CodeSales); err != nil {
		return InvoiceAccounts{}, err
	}
	if withTax {
		if accounts.TaxPayable, err = RequireAccount(ctx, tx, orgID, CodeTaxPayable); err != nil {
			return InvoiceAccounts{}, err
		}
	}
	return accounts, nil
}

func (s *Service) purchaseAccounts(ctx context.Context, tx TxRepository, orgID int64) (PurchaseAccounts, error) {
	var accounts PurchaseAccounts
	var err error
	if accounts.InventoryAsset, err = RequireAccount(ctx, tx, orgID, CodeInventoryAsset); err != nil {
		return PurchaseAccounts{}, err
	}
	if accounts.Payable, err = RequireAccount(ctx, tx, orgID, CodeAccountsPayable); err != nil {
		return PurchaseAccounts{}, err
	}
	return accounts, nil
}

func (s *Service) paymentAccounts(ctx context.Context, tx TxRepository, orgID int64, direction PaymentDirection, via string) (PaymentAccounts, error) {
	var accounts PaymentAccounts
	var err error
	if accounts.Asset, err = RequireAccount(ctx, tx, orgID, paymentVia(via)); err != nil {
		return PaymentAccounts{}, err
	}
	counterpartyCode := CodeAccountsReceivable
	if direction == PaymentOutflow {
		counterpartyCode = CodeAccountsPayable
	}
	if accounts.Counterparty, err = RequireAccount(ctx, tx, orgID, counterpartyCode); err != nil {
		return PaymentAccounts{}, err
	}
	return accounts, nil
}

func (s *Service) adjustmentAccounts(ctx context.Context, tx TxRepository, orgID int64, direction AdjustmentDirection) (AdjustmentAccounts, error) {
	var accounts AdjustmentAccounts
	var err error
	if accounts.InventoryAsset, err = RequireAccount(ctx, tx, orgID, CodeInventoryAsset); err != nil {
		return AdjustmentAccounts{}, err
	}
	if direction == AdjustmentAdd {
		accounts.Gain, err = RequireAccount(ctx, tx, orgID, CodeInventoryGain)
	} else {
		accounts.Shrinkage, err = RequireAccount(ctx, tx, orgID, CodeInventoryShrinkage)
	}
	if err != nil {
		return AdjustmentAccounts{}, err
	}
	return accounts, nil
}

// runTx retries the transactional scope on transient conflicts, up to the
// configured attempt budget; on exhaustion the whole operation fails with
// nothing committed.
func (s *Service) runTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (s *Service) docDate(date time.Time) time.Time {
	if date.IsZero() {
		return s.now().UTC()
	}
	return date
}

func (s *Service) afterCommit(ctx context.Context, scope shared.Scope, action, entityID string, meta map[string]any) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx, scope.OrgID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    scope.OrgID,
			ActorID:  scope.ActorID,
			Action:   action,
			Entity:   "business_document",
			EntityID: entityID,
			Meta:     meta,
			At:       s.now(),
		})
	}
}

func validateItems(items []DocumentItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for idx, item := range items {
		if item.ProductID == 0 {
			return fmt.Errorf("%w: item %d missing product", ErrValidation, idx)
		}
		if item.Qty <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, idx)
		}
		if item.UnitCost < 0 {
			return fmt.Errorf("%w: item %d unit cost cannot be negative", ErrValidation, idx)
		}
	}
	return nil
}
