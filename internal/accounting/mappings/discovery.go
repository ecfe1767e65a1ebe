package mappings

import (
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

type rule struct {
	role     Role
	nature   accounts.Nature
	types    []accounts.AccountType
	keywords []string
	prefixes []string
}

// discoveryRules are tried in order; earlier keywords win.
var discoveryRules = []rule{
	{RoleSalesRevenue, accounts.NatureCredit, []accounts.AccountType{accounts.AccountTypeRevenue}, []string{"sales revenue", "sales", "revenue", "pendapatan"}, []string{"4"}},
	{RoleAccountsReceivable, accounts.NatureDebit, []accounts.AccountType{accounts.AccountTypeAsset}, []string{"receivable", "piutang"}, []string{"12", "1.2"}},
	{RoleSalesTax, accounts.NatureCredit, []accounts.AccountType{accounts.AccountTypeLiability}, []string{"sales tax", "vat", "ppn", "tax"}, []string{"22", "2.2"}},
	{RoleDiscount, accounts.NatureDebit, []accounts.AccountType{accounts.AccountTypeRevenue}, []string{"discount", "potongan"}, nil},
	{RoleShippingRevenue, accounts.NatureCredit, []accounts.AccountType{accounts.AccountTypeRevenue}, []string{"shipping", "freight", "pengiriman"}, nil},
	{RoleCash, accounts.NatureDebit, []accounts.AccountType{accounts.AccountTypeAsset}, []string{"cash", "kas"}, []string{"11", "1.1"}},
	{RoleBank, accounts.NatureDebit, []accounts.AccountType{accounts.AccountTypeAsset}, []string{"bank"}, nil},
	{RoleAccountsPayable, accounts.NatureCredit, []accounts.AccountType{accounts.AccountTypeLiability}, []string{"payable", "hutang", "utang"}, []string{"21", "2.1"}},
}

// Discover binds roles to accounts by name keywords, falling back to code
// prefixes. Group and inactive accounts are ignored and an account is bound to
// at most one role. The discount role only matches debit-nature revenue
// accounts.
func Discover(candidates []accounts.Account) map[Role]int64 {
	bindings := make(map[Role]int64)
	used := make(map[int64]bool)
	for _, r := range discoveryRules {
		if id, ok := match(r, candidates, used); ok {
			bindings[r.role] = id
			used[id] = true
		}
	}
	return bindings
}

func match(r rule, candidates []accounts.Account, used map[int64]bool) (int64, bool) {
	eligible := func(a accounts.Account) bool {
		if a.IsGroup || !a.IsActive || used[a.ID] || a.Nature != r.nature {
			return false
		}
		for _, t := range r.types {
			if a.Type == t {
				return true
			}
		}
		return false
	}
	for _, kw := range r.keywords {
		for _, a := range candidates {
			if eligible(a) && strings.Contains(strings.ToLower(a.Name), kw) {
				return a.ID, true
			}
		}
	}
	for _, prefix := range r.prefixes {
		for _, a := range candidates {
			if eligible(a) && strings.HasPrefix(a.Code, prefix) {
				return a.ID, true
			}
		}
	}
	return 0, false
}
