package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func openInvoice(store *memstore.Store, party int64, date time.Time, total int64) settlement.Invoice {
	return store.AddInvoice(settlement.Invoice{
		Number:            "SI-" + date.Format("0102"),
		PartyID:           party,
		Date:              date,
		Total:             money(total),
		PaidAmount:        decimal.Zero,
		OutstandingAmount: money(total),
		Status:            settlement.InvoiceUnpaid,
	})
}

func receipt(store *memstore.Store, party, amount int64, status settlement.CashStatus) settlement.CashDocument {
	return store.AddCashDocument(settlement.CashDocument{
		Kind:    settlement.CashReceipt,
		Number:  "RC-1",
		PartyID: party,
		Amount:  money(amount),
		Status:  status,
	})
}

func inTx(t *testing.T, store *memstore.Store, fn func(context.Context, settlement.TxRepository) error) error {
	t.Helper()
	return store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, tx)
	})
}

func TestAllocateFIFOAcrossCalls(t *testing.T) {
	store := memstore.New()
	first := openInvoice(store, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 300)
	second := openInvoice(store, 7, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 400)
	cash := receipt(store, 7, 500, settlement.CashCompleted)
	alloc := settlement.NewAllocator()

	var out settlement.Outcome
	require.NoError(t, inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		var err error
		out, err = alloc.AllocateFIFO(ctx, tx, cash.ID, 0, 1)
		return err
	}))
	require.Len(t, out.Allocations, 2)
	require.Equal(t, 1, out.Allocations[0].SettlementOrder)
	require.Equal(t, settlement.CashReceipt, out.Allocations[0].CashKind)
	require.True(t, out.Unallocated.IsZero())

	require.Equal(t, settlement.InvoicePaid, store.Invoice(first.ID).Status)
	require.True(t, store.Invoice(second.ID).OutstandingAmount.Equal(money(200)))

	// the cash document is exhausted, so a second run plans nothing
	require.NoError(t, inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		var err error
		out, err = alloc.AllocateFIFO(ctx, tx, cash.ID, 0, 1)
		return err
	}))
	require.Empty(t, out.Allocations)
	require.Len(t, store.Allocations(), 2)

	topUp := store.AddCashDocument(settlement.CashDocument{Kind: settlement.CashReceipt, Number: "RC-2", PartyID: 7, Amount: money(500), Status: settlement.CashCompleted})
	require.NoError(t, inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		var err error
		out, err = alloc.AllocateFIFO(ctx, tx, topUp.ID, 7, 1)
		return err
	}))
	require.Len(t, out.Allocations, 1)
	require.Equal(t, 2, out.Allocations[0].SettlementOrder)
	require.True(t, out.Unallocated.Equal(money(300)))
	require.Equal(t, settlement.InvoicePaid, store.Invoice(second.ID).Status)
}

func TestAllocateRejectsCancelledCashAndWrongParty(t *testing.T) {
	store := memstore.New()
	inv := openInvoice(store, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	cancelled := receipt(store, 7, 100, settlement.CashCancelled)
	alloc := settlement.NewAllocator()

	err := inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		_, err := alloc.Allocate(ctx, tx, cancelled.ID, []settlement.Request{{InvoiceID: inv.ID, Amount: money(10)}}, 1)
		return err
	})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	other := receipt(store, 7, 100, settlement.CashCompleted)
	err = inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		_, err := alloc.AllocateFIFO(ctx, tx, other.ID, 8, 1)
		return err
	})
	require.ErrorIs(t, err, shared.ErrInvalidDocument)

	err = inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		_, err := alloc.Allocate(ctx, tx, 4040, nil, 1)
		return err
	})
	require.ErrorIs(t, err, shared.ErrCashDocumentNotFound)
}

func TestReverseRecomputesFromLiveAllocations(t *testing.T) {
	store := memstore.New()
	inv := openInvoice(store, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	cash := receipt(store, 7, 100, settlement.CashCompleted)
	alloc := settlement.NewAllocator()

	var out settlement.Outcome
	require.NoError(t, inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		var err error
		out, err = alloc.Allocate(ctx, tx, cash.ID, []settlement.Request{
			{InvoiceID: inv.ID, Amount: money(30)},
			{InvoiceID: inv.ID, Amount: money(20)},
		}, 1)
		return err
	}))
	require.Len(t, out.Allocations, 2)
	require.Equal(t, settlement.InvoicePartiallyPaid, store.Invoice(inv.ID).Status)

	require.NoError(t, inTx(t, store, func(ctx context.Context, tx settlement.TxRepository) error {
		_, restored, err := alloc.Reverse(ctx, tx, out.Allocations[0].ID, 1, "duplicate")
		if err != nil {
			return err
		}
		require.True(t, restored.PaidAmount.Equal(money(20)))
		return nil
	}))
	current := store.Invoice(inv.ID)
	require.True(t, current.OutstandingAmount.Equal(money(80)))
	require.Equal(t, settlement.InvoicePartiallyPaid, current.Status)
}
