package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TxRepository exposes settlement statements bound to one transaction.
type TxRepository interface {
	LockCashDocument(ctx context.Context, id int64) (CashDocument, error)
	SumCashAllocated(ctx context.Context, cashDocumentID int64) (decimal.Decimal, error)
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	LockOutstandingInvoices(ctx context.Context, partyID int64) ([]Invoice, error)
	NextSettlementOrder(ctx context.Context, invoiceID int64) (int, error)
	InsertAllocation(ctx context.Context, a Allocation) (Allocation, error)
	SumInvoiceAllocated(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	UpdateInvoiceSettlement(ctx context.Context, id int64, paid, outstanding decimal.Decimal, status InvoiceStatus) error
	LockAllocation(ctx context.Context, id int64) (Allocation, error)
	MarkAllocationReversed(ctx context.Context, id, userID int64, reason string, at time.Time) error
}

// Allocator persists settlement plans.
type Allocator struct {
	now func() time.Time
}

// NewAllocator constructs the allocator.
func NewAllocator() *Allocator {
	return &Allocator{now: time.Now}
}

// WithNow overrides the clock for testing.
func (a *Allocator) WithNow(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Allocate applies explicit amounts of a cash document to invoices.
func (a *Allocator) Allocate(ctx context.Context, tx TxRepository, cashDocID int64, requests []Request, userID int64) (Outcome, error) {
	cash, remaining, err := a.openCash(ctx, tx, cashDocID)
	if err != nil {
		return Outcome{}, err
	}
	ids := make([]int64, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.InvoiceID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	invoices := make(map[int64]Invoice, len(ids))
	outstanding := make(map[int64]decimal.Decimal, len(ids))
	for _, id := range ids {
		if _, ok := invoices[id]; ok {
			continue
		}
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if inv.PartyID != cash.PartyID {
			return Outcome{}, fmt.Errorf("%w: invoice %s belongs to another party", shared.ErrInvalidDocument, inv.Number)
		}
		invoices[id] = inv
		outstanding[id] = inv.OutstandingAmount
	}
	plans, err := PlanExplicit(requests, outstanding, remaining)
	if err != nil {
		return Outcome{}, err
	}
	return a.persist(ctx, tx, cash, remaining, plans, invoices, userID)
}

// AllocateFIFO settles the party's oldest invoices first. partyID defaults
// to the cash document's party.
func (a *Allocator) AllocateFIFO(ctx context.Context, tx TxRepository, cashDocID, partyID, userID int64) (Outcome, error) {
	cash, remaining, err := a.openCash(ctx, tx, cashDocID)
	if err != nil {
		return Outcome{}, err
	}
	if partyID == 0 {
		partyID = cash.PartyID
	}
	if partyID != cash.PartyID {
		return Outcome{}, fmt.Errorf("%w: party %d does not match cash document", shared.ErrInvalidDocument, partyID)
	}
	open, err := tx.LockOutstandingInvoices(ctx, partyID)
	if err != nil {
		return Outcome{}, err
	}
	invoices := make(map[int64]Invoice, len(open))
	for _, inv := range open {
		invoices[inv.ID] = inv
	}
	return a.persist(ctx, tx, cash, remaining, PlanFIFO(open, remaining), invoices, userID)
}

// Reverse retracts an allocation and recomputes its invoice as if the
// allocation never existed.
func (a *Allocator) Reverse(ctx context.Context, tx TxRepository, allocationID, userID int64, reason string) (Allocation, Invoice, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Allocation{}, Invoice{}, fmt.Errorf("%w: reversal reason required", shared.ErrInvalidDocument)
	}
	alloc, err := tx.LockAllocation(ctx, allocationID)
	if err != nil {
		return Allocation{}, Invoice{}, err
	}
	if alloc.IsReversed {
		return Allocation{}, Invoice{}, fmt.Errorf("%w: allocation %d", shared.ErrAlreadyReversed, alloc.ID)
	}
	inv, err := tx.LockInvoice(ctx, alloc.InvoiceID)
	if err != nil {
		return Allocation{}, Invoice{}, err
	}
	at := a.now()
	if err := tx.MarkAllocationReversed(ctx, alloc.ID, userID, reason, at); err != nil {
		return Allocation{}, Invoice{}, err
	}
	alloc.IsReversed = true
	alloc.ReversedAt = &at
	alloc.ReversedBy = &userID
	alloc.ReversalReason = reason
	inv, err = Recompute(ctx, tx, inv)
	if err != nil {
		return Allocation{}, Invoice{}, err
	}
	return alloc, inv, nil
}

// Recompute refreshes paid, outstanding and status from live allocations.
func Recompute(ctx context.Context, tx TxRepository, inv Invoice) (Invoice, error) {
	paid, err := tx.SumInvoiceAllocated(ctx, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	outstanding, status := Settle(inv.Total, paid)
	if err := tx.UpdateInvoiceSettlement(ctx, inv.ID, paid, outstanding, status); err != nil {
		return Invoice{}, err
	}
	inv.PaidAmount = paid
	inv.OutstandingAmount = outstanding
	inv.Status = status
	return inv, nil
}

func (a *Allocator) openCash(ctx context.Context, tx TxRepository, id int64) (CashDocument, decimal.Decimal, error) {
	cash, err := tx.LockCashDocument(ctx, id)
	if err != nil {
		return CashDocument{}, decimal.Zero, err
	}
	if cash.Status == CashCancelled {
		return CashDocument{}, decimal.Zero, fmt.Errorf("%w: cash document %s is cancelled", shared.ErrInvalidStatus, cash.Number)
	}
	used, err := tx.SumCashAllocated(ctx, cash.ID)
	if err != nil {
		return CashDocument{}, decimal.Zero, err
	}
	remaining := cash.Amount.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return cash, remaining, nil
}

func (a *Allocator) persist(ctx context.Context, tx TxRepository, cash CashDocument, remaining decimal.Decimal, plans []Plan, invoices map[int64]Invoice, userID int64) (Outcome, error) {
	out := Outcome{Unallocated: remaining}
	touched := make(map[int64]bool)
	var order []int64
	for _, p := range plans {
		seq, err := tx.NextSettlementOrder(ctx, p.InvoiceID)
		if err != nil {
			return Outcome{}, err
		}
		alloc, err := tx.InsertAllocation(ctx, Allocation{
			InvoiceID:       p.InvoiceID,
			CashDocumentID:  cash.ID,
			CashKind:        cash.Kind,
			AllocatedAmount: p.Amount,
			SettlementOrder: seq,
			CreatedBy:       userID,
		})
		if err != nil {
			return Outcome{}, err
		}
		out.Allocations = append(out.Allocations, alloc)
		out.Unallocated = out.Unallocated.Sub(p.Amount)
		if !touched[p.InvoiceID] {
			touched[p.InvoiceID] = true
			order = append(order, p.InvoiceID)
		}
	}
	for _, id := range order {
		inv, err := Recompute(ctx, tx, invoices[id])
		if err != nil {
			return Outcome{}, err
		}
		out.Invoices = append(out.Invoices, inv)
	}
	return out, nil
}
