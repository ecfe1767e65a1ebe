package gl

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// Sums aggregates the live GL rows of one account.
type Sums struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Drift reports an account whose stored balance disagrees with its GL history.
type Drift struct {
	AccountID int64
	Code      string
	Stored    decimal.Decimal
	Expected  decimal.Decimal
}

// CheckConsistency compares stored balances with the signed sum of live GL
// rows per account nature. Group accounts are skipped.
func CheckConsistency(accs []accounts.Account, sums []Sums) []Drift {
	byAccount := make(map[int64]Sums, len(sums))
	for _, s := range sums {
		byAccount[s.AccountID] = s
	}
	var drifts []Drift
	for _, acc := range accs {
		if acc.IsGroup {
			continue
		}
		s := byAccount[acc.ID]
		expected := accounts.SignedDelta(acc.Nature, s.Debit, s.Credit)
		if !acc.Balance.Equal(expected) {
			drifts = append(drifts, Drift{AccountID: acc.ID, Code: acc.Code, Stored: acc.Balance, Expected: expected})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].AccountID < drifts[j].AccountID })
	return drifts
}
