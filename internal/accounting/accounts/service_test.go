package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

func group(a *accounts.Account) { a.IsGroup = true }

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	assets := store.AddAccount("1000", "Assets", accounts.AccountTypeAsset, group)
	svc := accounts.NewService(store.Accounts(), nil)

	acc, err := svc.Create(ctx, accounts.CreateInput{Code: " 1100 ", Name: "Cash", Type: "asset", ParentID: &assets.ID}, 1)
	require.NoError(t, err)
	require.Equal(t, "1100", acc.Code)
	require.Equal(t, accounts.NatureDebit, acc.Nature)

	provision, err := svc.Create(ctx, accounts.CreateInput{Code: "1290", Name: "Allowance", Type: accounts.AccountTypeAsset, Nature: accounts.NatureCredit}, 1)
	require.NoError(t, err)
	require.Equal(t, accounts.NatureCredit, provision.Nature)

	_, err = svc.Create(ctx, accounts.CreateInput{Code: "1100", Name: "Cash again", Type: accounts.AccountTypeAsset}, 1)
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = svc.Create(ctx, accounts.CreateInput{Code: "1110", Name: "Petty", Type: accounts.AccountTypeAsset, ParentID: &acc.ID}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidDocument)

	_, err = svc.Create(ctx, accounts.CreateInput{Code: "", Name: "Nameless", Type: accounts.AccountTypeAsset}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidDocument)
}

func TestReparentRefusesCycles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	top := store.AddAccount("1000", "Assets", accounts.AccountTypeAsset, group)
	mid := store.AddAccount("1100", "Current Assets", accounts.AccountTypeAsset, group, func(a *accounts.Account) { a.ParentID = &top.ID })
	leaf := store.AddAccount("1110", "Cash", accounts.AccountTypeAsset, func(a *accounts.Account) { a.ParentID = &mid.ID })
	svc := accounts.NewService(store.Accounts(), nil)

	require.ErrorIs(t, svc.Reparent(ctx, top.ID, &mid.ID), shared.ErrAccountCycle)
	require.ErrorIs(t, svc.Reparent(ctx, top.ID, &top.ID), shared.ErrAccountCycle)
	require.ErrorIs(t, svc.Reparent(ctx, mid.ID, &leaf.ID), shared.ErrInvalidDocument)

	require.NoError(t, svc.Reparent(ctx, leaf.ID, &top.ID))
	moved, err := svc.Get(ctx, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, top.ID, *moved.ParentID)

	require.NoError(t, svc.Reparent(ctx, mid.ID, nil))
	detached, err := svc.Get(ctx, mid.ID)
	require.NoError(t, err)
	require.Nil(t, detached.ParentID)
}

func TestDeleteRefusesAccountsInUse(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	top := store.AddAccount("1000", "Assets", accounts.AccountTypeAsset, group)
	leaf := store.AddAccount("1110", "Cash", accounts.AccountTypeAsset, func(a *accounts.Account) { a.ParentID = &top.ID })
	svc := accounts.NewService(store.Accounts(), nil)

	require.ErrorIs(t, svc.Delete(ctx, top.ID), shared.ErrAccountInUse)
	require.NoError(t, svc.Delete(ctx, leaf.ID))
	require.NoError(t, svc.Delete(ctx, top.ID))
	require.ErrorIs(t, svc.Delete(ctx, top.ID), shared.ErrAccountNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDeleteRefusesAccountsReferencedByDocuments(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	receivable := store.AddAccount("1201", "Accounts Receivable", accounts.AccountTypeAsset)
	bank := store.AddAccount("1102", "Bank", accounts.AccountTypeAsset)
	payable := store.AddAccount("2101", "Accounts Payable", accounts.AccountTypeLiability)
	spare := store.AddAccount("1199", "Unused", accounts.AccountTypeAsset)
	store.AddInvoice(settlement.Invoice{Number: "SI-1", PartyID: 1, Status: settlement.InvoiceUnpaid, ReceivableAccountID: &receivable.ID})
	store.AddCashDocument(settlement.CashDocument{Kind: settlement.CashPaymentVoucher, Number: "PV-1", PartyID: 1, CounterAccountID: &bank.ID, TargetAccountID: &payable.ID})
	svc := accounts.NewService(store.Accounts(), nil)

	for _, id := range []int64{receivable.ID, bank.ID, payable.ID} {
		require.ErrorIs(t, svc.Delete(ctx, id), shared.ErrAccountInUse)
		_, err := svc.Get(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Delete(ctx, spare.ID))
}
