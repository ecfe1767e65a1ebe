package gl_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

func n(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func apply(t *testing.T, store *memstore.Store, details []journals.Detail) ([]gl.Entry, error) {
	t.Helper()
	var out []gl.Entry
	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = gl.NewPoster().ApplyPostings(ctx, tx, journals.JournalEntry{ID: 100, Type: shared.VoucherReceipt, VoucherNo: "RC-1"}, details)
		return err
	})
	return out, err
}

func TestApplyPostingsMovesBalancesByNature(t *testing.T) {
	store := memstore.New()
	cash := store.AddAccount("1101", "Cash", accounts.AccountTypeAsset)
	revenue := store.AddAccount("4101", "Revenue", accounts.AccountTypeRevenue)
	discount := store.AddAccount("4102", "Discount", accounts.AccountTypeRevenue, func(a *accounts.Account) { a.Nature = accounts.NatureDebit })

	entries, err := apply(t, store, []journals.Detail{
		{ID: 1, AccountID: cash.ID, Debit: n(90), Credit: decimal.Zero},
		{ID: 2, AccountID: discount.ID, Debit: n(10), Credit: decimal.Zero},
		{ID: 3, AccountID: revenue.ID, Debit: decimal.Zero, Credit: n(100)},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(1), entries[0].JournalDetailID)
	require.Equal(t, "RC-1", entries[0].VoucherNo)

	for acc, want := range map[int64]int64{cash.ID: 90, discount.ID: 10, revenue.ID: 100} {
		got, err := store.Account(acc)
		require.NoError(t, err)
		require.True(t, got.Balance.Equal(n(want)), "account %d balance %s", acc, got.Balance)
	}
}

func TestApplyPostingsRejectsInactiveAccount(t *testing.T) {
	store := memstore.New()
	cash := store.AddAccount("1101", "Cash", accounts.AccountTypeAsset)
	closed := store.AddAccount("4199", "Old Revenue", accounts.AccountTypeRevenue, func(a *accounts.Account) { a.IsActive = false })

	_, err := apply(t, store, []journals.Detail{
		{ID: 1, AccountID: cash.ID, Debit: n(5), Credit: decimal.Zero},
		{ID: 2, AccountID: closed.ID, Debit: decimal.Zero, Credit: n(5)},
	})
	require.ErrorIs(t, err, shared.ErrAccountInactive)
	require.Empty(t, store.GLEntries())

	_, err = apply(t, store, nil)
	require.ErrorIs(t, err, shared.ErrTooFewLines)
}

func TestCancelJournalRestoresBalances(t *testing.T) {
	store := memstore.New()
	cash := store.AddAccount("1101", "Cash", accounts.AccountTypeAsset)
	equity := store.AddAccount("3101", "Equity", accounts.AccountTypeEquity)
	_, err := apply(t, store, []journals.Detail{
		{ID: 1, AccountID: cash.ID, Debit: n(70), Credit: decimal.Zero},
		{ID: 2, AccountID: equity.ID, Debit: decimal.Zero, Credit: n(70)},
	})
	require.NoError(t, err)

	var cancelled []gl.Entry
	err = store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		cancelled, err = gl.NewPoster().CancelJournal(ctx, tx, 100, 3)
		return err
	})
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	for _, e := range cancelled {
		require.True(t, e.IsCancelled)
		require.Equal(t, int64(3), *e.CancelledBy)
	}
	for _, acc := range []accounts.Account{cash, equity} {
		got, err := store.Account(acc.ID)
		require.NoError(t, err)
		require.True(t, got.Balance.IsZero())
	}

	accs, sums, err := store.BalanceSnapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, gl.CheckConsistency(accs, sums))
}
