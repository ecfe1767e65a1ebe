package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Nature tells whether an account grows with debits or credits.
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// NatureOf returns the natural side of an account type.
func NatureOf(t AccountType) (Nature, error) {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NatureDebit, nil
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return NatureCredit, nil
	default:
		return "", fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidDocument, t)
	}
}

// resolveNature applies an explicit override only for contra accounts:
// contra-revenue (discounts) and contra-asset (provisions).
func resolveNature(t AccountType, override Nature) (Nature, error) {
	natural, err := NatureOf(t)
	if err != nil {
		return "", err
	}
	if override == "" || override == natural {
		return natural, nil
	}
	switch {
	case t == AccountTypeRevenue && override == NatureDebit:
		return override, nil
	case t == AccountTypeAsset && override == NatureCredit:
		return override, nil
	}
	return "", fmt.Errorf("%w: nature %s not allowed for %s accounts", shared.ErrInvalidDocument, override, t)
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Nature    Nature
	Balance   decimal.Decimal
	IsGroup   bool
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignedDelta returns the balance movement caused by a debit/credit pair.
func SignedDelta(nature Nature, debit, credit decimal.Decimal) decimal.Decimal {
	if nature == NatureCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// Apply returns the balance after posting debit and credit.
func (a Account) Apply(debit, credit decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(SignedDelta(a.Nature, debit, credit))
}

// Postable reports whether journal lines may reference the account.
func (a Account) Postable() error {
	if a.IsGroup {
		return fmt.Errorf("%w: %s", shared.ErrAccountIsGroup, a.Code)
	}
	if !a.IsActive {
		return fmt.Errorf("%w: %s", shared.ErrAccountInactive, a.Code)
	}
	return nil
}

// CreateInput carries the fields needed to open an account.
type CreateInput struct {
	Code     string
	Name     string
	Type     AccountType
	Nature   Nature
	IsGroup  bool
	ParentID *int64
}

func (in CreateInput) normalize() CreateInput {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Type = AccountType(strings.ToUpper(string(in.Type)))
	in.Nature = Nature(strings.ToUpper(string(in.Nature)))
	return in
}
