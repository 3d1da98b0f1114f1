// Package inventory holds the stock balance model the posting orchestrator
// mutates inside its transactional scope, plus the safety checks that guard
// posting and reversal.
package inventory

import (
	"errors"
	"math"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock indicates an outbound movement exceeds on-hand stock.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrStockConsumed indicates previously added stock was already consumed
	// and the originating document can no longer be reversed.
	ErrStockConsumed = errors.New("inventory: stock already consumed")
)

// Balance tracks on-hand quantity and moving average cost per product and branch.
type Balance struct {
	OrgID     int64
	BranchID  int64
	ProductID int64
	Qty       float64
	AvgCost   float64
}

// qtyEpsilon absorbs float drift on quantity comparisons.
const qtyEpsilon = 1e-9

// Add books an inbound quantity at unit cost, recomputing the moving average.
func (b Balance) Add(qty, unitCost float64) (Balance, error) {
	if qty <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	if unitCost < 0 {
		return Balance{}, ErrInvalidQuantity
	}
	newQty := b.Qty + qty
	totalCost := b.Qty*b.AvgCost + qty*unitCost
	b.Qty = newQty
	if newQty > qtyEpsilon {
		b.AvgCost = totalCost / newQty
	}
	return b, nil
}

// Subtract books an outbound quantity at the current average cost.
func (b Balance) Subtract(qty float64) (Balance, error) {
	if qty <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	if b.Qty+qtyEpsilon < qty {
		return Balance{}, ErrInsufficientStock
	}
	b.Qty -= qty
	if math.Abs(b.Qty) < qtyEpsilon {
		b.Qty = 0
		b.AvgCost = 0
	}
	return b, nil
}

// EnsureReversible confirms enough of an originally-added quantity remains
// unconsumed, so the originating posting can still be undone.
func (b Balance) EnsureReversible(qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if b.Qty+qtyEpsilon < qty {
		return ErrStockConsumed
	}
	return nil
}

// CostValue computes the rounded monetary value of a movement. A zero cost
// value means the movement posts no journal lines.
func CostValue(qty, unitCost float64) float64 {
	return shared.Round2(qty * unitCost)
}
