package settlement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Settle derives outstanding amount and status from total and paid.
func Settle(total, paid decimal.Decimal) (decimal.Decimal, InvoiceStatus) {
	outstanding := shared.Round2(total.Sub(paid))
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	switch {
	case outstanding.LessThanOrEqual(shared.Epsilon):
		return outstanding, InvoicePaid
	case paid.LessThanOrEqual(shared.Epsilon):
		return outstanding, InvoiceUnpaid
	default:
		return outstanding, InvoicePartiallyPaid
	}
}

// PlanFIFO consumes cash against invoices oldest first, fully settling each
// before moving on. Whatever cash remains is left unallocated.
func PlanFIFO(invoices []Invoice, cash decimal.Decimal) []Plan {
	ordered := append([]Invoice(nil), invoices...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})
	remaining := shared.Round2(cash)
	var plans []Plan
	for _, inv := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !inv.OutstandingAmount.IsPositive() {
			continue
		}
		amount := decimal.Min(inv.OutstandingAmount, remaining)
		plans = append(plans, Plan{InvoiceID: inv.ID, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	return plans
}

// PlanExplicit validates caller-supplied amounts against invoice outstanding
// and remaining cash. Nothing is planned unless every request fits.
func PlanExplicit(requests []Request, outstanding map[int64]decimal.Decimal, remainingCash decimal.Decimal) ([]Plan, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: no allocations requested", shared.ErrInvalidDocument)
	}
	left := make(map[int64]decimal.Decimal, len(outstanding))
	for id, amt := range outstanding {
		left[id] = amt
	}
	total := decimal.Zero
	plans := make([]Plan, 0, len(requests))
	for _, req := range requests {
		amount := shared.Round2(req.Amount)
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: allocation for invoice %d must be positive", shared.ErrInvalidDocument, req.InvoiceID)
		}
		avail, ok := left[req.InvoiceID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", shared.ErrInvoiceNotFound, req.InvoiceID)
		}
		if amount.GreaterThan(avail) {
			return nil, fmt.Errorf("%w: %s exceeds invoice %d outstanding %s", shared.ErrAllocationOverflow, amount.StringFixed(2), req.InvoiceID, avail.StringFixed(2))
		}
		left[req.InvoiceID] = avail.Sub(amount)
		total = total.Add(amount)
		plans = append(plans, Plan{InvoiceID: req.InvoiceID, Amount: amount})
	}
	if total.GreaterThan(remainingCash) {
		return nil, fmt.Errorf("%w: %s exceeds remaining cash %s", shared.ErrAllocationOverflow, total.StringFixed(2), remainingCash.StringFixed(2))
	}
	return plans, nil
}
