package posting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestCancelInvoiceAppendsReversalAndRestoresState(t *testing.T) {
	store := newMemoryStore()
	seedStock(store, 10, 10, 50)
	svc, _, _ := newTestService(store)
	scope := testScope()

	inv, err := svc.PostInvoice(context.Background(), scope, InvoiceInput{
		Number:     "INV-001",
		CustomerID: 7,
		GrandTotal: 1000,
		TaxAmount:  180,
		Items:      []DocumentItem{{ProductID: 10, Qty: 2, UnitCost: 500}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelInvoice(context.Background(), scope, inv.ID))

	lines := linesFor(store, ledger.RefTypeInvoice, inv.ID)
	require.Len(t, lines, 6)
	debit, credit := sumSides(lines)
	require.InDelta(t, debit, credit, shared.Epsilon)

	require.Equal(t, StatusCancelled, store.invoices[inv.ID].Status)
	require.InDelta(t, 0, store.customers[7], 1e-9)
	require.InDelta(t, 10, store.stock[stockKey(1, 2, 10)].Qty, 1e-9)

	// terminal: a second cancel is rejected
	require.ErrorIs(t, svc.CancelInvoice(context.Background(), scope, inv.ID), ErrDocumentCancelled)
}

func TestEditInvoiceRebooksPostingSet(t *testing.T) {
	store := newMemoryStore()
	seedStock(store, 10, 10, 50)
	svc, _, _ := newTestService(store)
	scope := testScope()

	inv, err := svc.PostInvoice(context.Background(), scope, InvoiceInput{
		Number:     "INV-001",
		CustomerID: 7,
		GrandTotal: 1000,
		TaxAmount:  180,
		Items:      []DocumentItem{{ProductID: 10, Qty: 2, UnitCost: 500}},
	})
	require.NoError(t, err)

	got, err := svc.EditInvoice(context.Background(), scope, inv.ID, InvoiceUpdate{
		Number:     "INV-001",
		GrandTotal: 1200,
		Items:      []DocumentItem{{ProductID: 10, Qty: 3, UnitCost: 400}},
	})
	require.NoError(t, err)
	require.InDelta(t, 1200, got.GrandTotal, 1e-9)

	// old lines deleted, replacement set carries only the new totals
	lines := linesFor(store, ledger.RefTypeInvoice, inv.ID)
	require.Len(t, lines, 2)
	debit, credit := sumSides(lines)
	require.InDelta(t, 1200, debit, 1e-9)
	require.InDelta(t, debit, credit, shared.Epsilon)

	require.InDelta(t, 1200, store.customers[7], 1e-9)
	require.InDelta(t, 7, store.stock[stockKey(1, 2, 10)].Qty, 1e-9)
}

func TestEditInvoiceFinanciallyNeutralSkipsRebooking(t *testing.T) {
	store := newMemoryStore()
	seedStock(store, 10, 10, 50)
	svc, _, _ := newTestService(store)
	scope := testScope()

	items := []DocumentItem{{ProductID: 10, Qty: 2, UnitCost: 500}}
	inv, err := svc.PostInvoice(context.Background(), scope, InvoiceInput{
		Number:     "INV-001",
		CustomerID: 7,
		GrandTotal: 1000,
		TaxAmount:  180,
		Items:      items,
	})
	require.NoError(t, err)
	before := len(linesFor(store, ledger.RefTypeInvoice, inv.ID))

	got, err := svc.EditInvoice(context.Background(), scope, inv.ID, InvoiceUpdate{
		Number:     "INV-001-A",
		GrandTotal: 1000,
		TaxAmount:  180,
		Items:      items,
	})
	require.NoError(t, err)
	require.Equal(t, "INV-001-A", got.Number)
	require.Len(t, linesFor(store, ledger.RefTypeInvoice, inv.ID), before)
	require.InDelta(t, 1000, store.customers[7], 1e-9)
}

func TestEditCancelledInvoiceRejected(t *testing.T) {
	store := newMemoryStore()
	seedStock(store, 10, 10, 50)
	svc, _, _ := newTestService(store)
	scope := testScope()

	inv, err := svc.PostInvoice(context.Background(), scope, InvoiceInput{
		Number:     "INV-001",
		CustomerID: 7,
		GrandTotal: 100,
		Items:      []DocumentItem{{ProductID: 10, Qty: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.CancelInvoice(context.Background(), scope, inv.ID))

	_, err = svc.EditInvoice(context.Background(), scope, inv.ID, InvoiceUpdate{
		Number:     "INV-001",
		GrandTotal: 200,
		Items:      []DocumentItem{{ProductID: 10, Qty: 1}},
	})
	require.ErrorIs(t, err, ErrDocumentCancelled)
}

func TestCancelPurchaseRequiresStockOnHand(t *testing.T) {
	store := newMemoryStore()
	svc, _, _ := newTestService(store)
	scope := testScope()

	p, err := svc.PostPurchase(context.Background(), scope, PurchaseInput{
		Number:     "PO-001",
		SupplierID: 9,
		GrandTotal: 500,
		Items:      []DocumentItem{{ProductID: 20, Qty: 5, UnitCost: 100}},
	})
	require.NoError(t, err)

	// consume part of the purchased stock through a sale
	_, err = svc.PostInvoice(context.Background(), scope, InvoiceInput{
		Number:     "INV-001",
		CustomerID: 7,
		GrandTotal: 300,
		Items:      []DocumentItem{{ProductID: 20, Qty: 3, UnitCost: 100}},
	})
	require.NoError(t, err)

	err = svc.CancelPurchase(context.Background(), scope, p.ID)
	require.ErrorIs(t, err, inventory.ErrStockConsumed)
	require.Equal(t, StatusPosted, store.purchases[p.ID].Status)
	require.InDelta(t, 500, store.suppliers[9], 1e-9)
}

func TestCancelPurchaseReversesWhenStockIntact(t *testing.T) {
	store := newMemoryStore()
	svc, _, _ := newTestService(store)
	scope := testScope()

	p, err := svc.PostPurchase(context.Background(), scope, PurchaseInput{
		Number:     "PO-001",
		SupplierID: 9,
		GrandTotal: 500,
		Items:      []DocumentItem{{ProductID: 20, Qty: 5, UnitCost: 100}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelPurchase(context.Background(), scope, p.ID))

	lines := linesFor(store, ledger.RefTypePurchase, p.ID)
	require.Len(t, lines, 4)
	debit, credit := sumSides(lines)
	require.InDelta(t, debit, credit, shared.Epsilon)

	require.Equal(t, StatusCancelled, store.purchases[p.ID].Status)
	require.Zero(t, store.stock[stockKey(1, 2, 20)].Qty)
	require.InDelta(t, 0, store.suppliers[9], 1e-9)
}

func TestEditPurchaseRebooksStockAndBalance(t *testing.T) {
	store := newMemoryStore()
	svc, _, _ := newTestService(store)
	scope := testScope()

	p, err := svc.PostPurchase(context.Background(), scope, PurchaseInput{
		Number:     "PO-001",
		SupplierID: 9,
		GrandTotal: 500,
		Items:      []DocumentItem{{ProductID: 20, Qty: 5, UnitCost: 100}},
	})
	require.NoError(t, err)

	got, err := svc.EditPurchase(context.Background(), scope, p.ID, PurchaseUpdate{
		Number:     "PO-001",
		GrandTotal: 800,
		Items:      []DocumentItem{{ProductID: 20, Qty: 4, UnitCost: 200}},
	})
	require.NoError(t, err)
	require.InDelta(t, 800, got.GrandTotal, 1e-9)

	lines := linesFor(store, ledger.RefTypePurchase, p.ID)
	require.Len(t, lines, 2)
	debit, _ := sumSides(lines)
	require.InDelta(t, 800, debit, 1e-9)

	balance := store.stock[stockKey(1, 2, 20)]
	require.InDelta(t, 4, balance.Qty, 1e-9)
	require.InDelta(t, 200, balance.AvgCost, 1e-9)
	require.InDelta(t, 800, store.suppliers[9], 1e-9)
}

func TestCancelPaymentRestoresCounterpartyBalance(t *testing.T) {
	store := newMemoryStore()
	store.customers[7] = 1000
	svc, _, _ := newTestService(store)
	scope := testScope()

	customer := int64(7)
	p, err := svc.PostPayment(context.Background(), scope, PaymentInput{
		Direction:  PaymentInflow,
		CustomerID: &customer,
		Amount:     300,
		Via:        "BANK",
	})
	require.NoError(t, err)
	require.InDelta(t, 700, store.customers[7], 1e-9)

	require.NoError(t, svc.CancelPayment(context.Background(), scope, p.ID))

	lines := linesFor(store, ledger.RefTypePayment, p.ID)
	require.Len(t, lines, 4)
	debit, credit := sumSides(lines)
	require.InDelta(t, debit, credit, shared.Epsilon)
	require.Equal(t, StatusCancelled, store.payments[p.ID].Status)
	require.InDelta(t, 1000, store.customers[7], 1e-9)
}
