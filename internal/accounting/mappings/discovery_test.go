package mappings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func acct(id int64, code, name string, typ accounts.AccountType, nature accounts.Nature) accounts.Account {
	return accounts.Account{ID: id, Code: code, Name: name, Type: typ, Nature: nature, IsActive: true}
}

func chart() []accounts.Account {
	return []accounts.Account{
		acct(1, "1100", "Kas Besar", accounts.AccountTypeAsset, accounts.NatureDebit),
		acct(2, "1110", "Bank Mandiri", accounts.AccountTypeAsset, accounts.NatureDebit),
		acct(3, "1200", "Piutang Usaha", accounts.AccountTypeAsset, accounts.NatureDebit),
		acct(4, "2100", "Accounts Payable", accounts.AccountTypeLiability, accounts.NatureCredit),
		acct(5, "2200", "PPN Keluaran", accounts.AccountTypeLiability, accounts.NatureCredit),
		acct(6, "4100", "Sales Revenue", accounts.AccountTypeRevenue, accounts.NatureCredit),
		acct(7, "4200", "Freight Income", accounts.AccountTypeRevenue, accounts.NatureCredit),
		acct(8, "4300", "Sales Discount", accounts.AccountTypeRevenue, accounts.NatureDebit),
	}
}

func TestDiscoverBindsEveryRole(t *testing.T) {
	got := Discover(chart())
	require.Equal(t, map[Role]int64{
		RoleCash:               1,
		RoleBank:               2,
		RoleAccountsReceivable: 3,
		RoleAccountsPayable:    4,
		RoleSalesTax:           5,
		RoleSalesRevenue:       6,
		RoleShippingRevenue:    7,
		RoleDiscount:           8,
	}, got)

	m := &Mapping{Bindings: got}
	require.NoError(t, Validate(m))
}

func TestDiscoverSkipsGroupsAndFallsBackToPrefix(t *testing.T) {
	candidates := []accounts.Account{
		acct(1, "4000", "Sales", accounts.AccountTypeRevenue, accounts.NatureCredit),
		acct(2, "4110", "Jasa Angkut", accounts.AccountTypeRevenue, accounts.NatureCredit),
		acct(3, "1101", "Petty", accounts.AccountTypeAsset, accounts.NatureDebit),
	}
	candidates[0].IsGroup = true

	got := Discover(candidates)
	require.Equal(t, int64(2), got[RoleSalesRevenue])
	require.Equal(t, int64(3), got[RoleCash])
	_, ok := got[RoleShippingRevenue]
	require.False(t, ok)
}

func TestDiscountRequiresDebitNature(t *testing.T) {
	got := Discover([]accounts.Account{
		acct(1, "4300", "Discount Income", accounts.AccountTypeRevenue, accounts.NatureCredit),
	})
	_, ok := got[RoleDiscount]
	require.False(t, ok)
}

func TestValidateListsMissingRoles(t *testing.T) {
	m := &Mapping{Bindings: map[Role]int64{RoleSalesRevenue: 6, RoleCash: 1, RoleDiscount: 0}}
	err := Validate(m)

	var cfg *shared.ConfigurationError
	require.True(t, errors.As(err, &cfg))
	require.Equal(t, []string{"accounts_receivable", "sales_tax", "discount", "accounts_payable"}, cfg.Missing)

	err = Validate(nil)
	require.True(t, errors.As(err, &cfg))
	require.Empty(t, cfg.Missing)
}

func TestInputNormalizeRejectsUnknownRoles(t *testing.T) {
	in, err := Input{Name: "  Main ", Bindings: map[Role]int64{" CASH ": 1, "bank": 0}}.normalize()
	require.NoError(t, err)
	require.Equal(t, "Main", in.Name)
	require.Equal(t, map[Role]int64{RoleCash: 1}, in.Bindings)

	_, err = Input{Bindings: map[Role]int64{"petty_cash": 1, "cash": 2}}.normalize()
	var cfg *shared.ConfigurationError
	require.True(t, errors.As(err, &cfg))
	require.Contains(t, cfg.Reason, "petty_cash")
}
