// Package provisions recomputes contra-account provisions and posts the
// adjusting journals.
package provisions

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// Method selects how the target provision amount is derived.
type Method string

const (
	MethodPercentage  Method = "PERCENTAGE"
	MethodFixedAmount Method = "FIXED_AMOUNT"
	// MethodManual keeps the current amount; only the schedule advances.
	MethodManual Method = "MANUAL"
)

// Frequency is the recalculation period.
type Frequency string

const (
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyAnnually  Frequency = "ANNUALLY"
)

// Advance returns the next calculation date after t. Month-end dates stay
// clamped to the last day of the target month.
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyQuarterly:
		return addMonths(t, 3)
	case FrequencyAnnually:
		return addMonths(t, 12)
	default:
		return addMonths(t, 1)
	}
}

func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return target.AddDate(0, 0, day-1)
}

// Provision links a main account to its contra provision account.
type Provision struct {
	ID                  int64
	Name                string
	MainAccountID       int64
	ProvisionAccountID  int64
	ExpenseAccountID    int64
	Method              Method
	Rate                decimal.Decimal
	FixedAmount         decimal.Decimal
	CurrentAmount       decimal.Decimal
	Frequency           Frequency
	NextCalculationDate time.Time
	LastCalculatedAt    *time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks a provision before it is registered.
func (p Provision) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: provision name required", shared.ErrInvalidDocument)
	}
	if p.MainAccountID == 0 || p.ProvisionAccountID == 0 || p.ExpenseAccountID == 0 {
		return fmt.Errorf("%w: main, provision and expense accounts required", shared.ErrInvalidDocument)
	}
	if p.ProvisionAccountID == p.ExpenseAccountID || p.ProvisionAccountID == p.MainAccountID {
		return fmt.Errorf("%w: provision account must differ from main and expense", shared.ErrInvalidDocument)
	}
	switch p.Method {
	case MethodPercentage:
		if !p.Rate.IsPositive() || p.Rate.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: rate must be within (0, 100]", shared.ErrInvalidDocument)
		}
	case MethodFixedAmount:
		if p.FixedAmount.IsNegative() {
			return fmt.Errorf("%w: fixed amount must not be negative", shared.ErrInvalidDocument)
		}
	case MethodManual:
	default:
		return fmt.Errorf("%w: unknown method %q", shared.ErrInvalidDocument, p.Method)
	}
	switch p.Frequency {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
	default:
		return fmt.Errorf("%w: unknown frequency %q", shared.ErrInvalidDocument, p.Frequency)
	}
	if p.NextCalculationDate.IsZero() {
		return fmt.Errorf("%w: next calculation date required", shared.ErrInvalidDocument)
	}
	return nil
}

// Target returns the provision amount implied by mainBalance.
func (p Provision) Target(mainBalance decimal.Decimal) decimal.Decimal {
	switch p.Method {
	case MethodPercentage:
		return shared.Round2(mainBalance.Mul(p.Rate).Div(decimal.NewFromInt(100)))
	case MethodFixedAmount:
		return shared.Round2(p.FixedAmount)
	default:
		return p.CurrentAmount
	}
}

// Document builds the adjusting journal for difference. A positive
// difference debits expense and credits the provision account.
func (p Provision) Document(difference decimal.Decimal, date time.Time) journals.Document {
	amount := shared.Round2(difference.Abs())
	debit, credit := p.ExpenseAccountID, p.ProvisionAccountID
	if difference.IsNegative() {
		debit, credit = credit, debit
	}
	desc := fmt.Sprintf("Provision adjustment %s", p.Name)
	return journals.Document{
		Type:        shared.VoucherProvision,
		VoucherNo:   fmt.Sprintf("PRV-%d-%s", p.ID, p.NextCalculationDate.Format("20060102")),
		Date:        date,
		Description: desc,
		Lines: []journals.Line{
			{AccountID: debit, Debit: amount, Credit: decimal.Zero, Description: desc},
			{AccountID: credit, Debit: decimal.Zero, Credit: amount, Description: desc},
		},
	}
}

// Result reports one recalculation.
type Result struct {
	Provision  Provision
	NewAmount  decimal.Decimal
	Difference decimal.Decimal
	Posted     bool
	Posting    *ledger.Posting
}

// SweepReport summarises a sweep run.
type SweepReport struct {
	Due       int
	Processed int
	Posted    int
	Failed    map[int64]string
	// Skipped is set when another sweep held the lock.
	Skipped bool
}
