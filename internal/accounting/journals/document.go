package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Document is the posting view of a business voucher.
type Document struct {
	Type         shared.VoucherType
	VoucherNo    string
	Date         time.Time
	Description  string
	PartyID      *int64
	Currency     string
	ExchangeRate decimal.Decimal
	SourceID     uuid.UUID

	// Sales invoice amounts. ShippingAmount is the part of Subtotal earned
	// as shipping revenue.
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	Total          decimal.Decimal

	// Cash document amount.
	Amount decimal.Decimal

	// Account overrides. Zero means resolve through the active mapping.
	ReceivableAccountID int64
	CounterAccountID    int64
	TargetAccountID     int64

	// Lines are supplied directly for provision adjustments.
	Lines []Line
}

// Normalize trims identifiers, validates currency and rate and fills the
// deterministic source id.
func (d Document) Normalize() (Document, error) {
	d.VoucherNo = strings.TrimSpace(d.VoucherNo)
	d.Description = strings.TrimSpace(d.Description)
	if !d.Type.Valid() {
		return d, fmt.Errorf("%w: unknown voucher type %q", shared.ErrInvalidDocument, d.Type)
	}
	if d.VoucherNo == "" {
		return d, fmt.Errorf("%w: voucher number required", shared.ErrInvalidDocument)
	}
	currency, err := shared.NormalizeCurrency(d.Currency)
	if err != nil {
		return d, err
	}
	d.Currency = currency
	rate, err := shared.NormalizeRate(d.ExchangeRate)
	if err != nil {
		return d, err
	}
	d.ExchangeRate = rate
	if d.SourceID == uuid.Nil {
		d.SourceID = uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s", d.Type, d.VoucherNo)))
	}
	return d, nil
}

// ValidateAmounts checks the document arithmetic.
func (d Document) ValidateAmounts() error {
	switch d.Type {
	case shared.VoucherSalesInvoice:
		amounts := []struct {
			name  string
			value decimal.Decimal
		}{
			{"subtotal", d.Subtotal},
			{"tax", d.TaxAmount},
			{"discount", d.DiscountAmount},
			{"shipping", d.ShippingAmount},
			{"total", d.Total},
		}
		for _, a := range amounts {
			if a.value.IsNegative() {
				return fmt.Errorf("%w: negative %s", shared.ErrInvalidDocument, a.name)
			}
		}
		if d.ShippingAmount.GreaterThan(d.Subtotal) {
			return fmt.Errorf("%w: shipping exceeds subtotal", shared.ErrInvalidDocument)
		}
		// Compared on the rounded components Compose posts, so an accepted
		// total always balances to the cent.
		expected := shared.Round2(d.Subtotal.Sub(d.ShippingAmount)).
			Add(shared.Round2(d.ShippingAmount)).
			Add(shared.Round2(d.TaxAmount)).
			Sub(shared.Round2(d.DiscountAmount))
		if !shared.Round2(d.Total).Equal(expected) {
			return fmt.Errorf("%w: total %s, expected %s", shared.ErrAmountMismatch, d.Total.StringFixed(2), expected.StringFixed(2))
		}
		if !d.Total.IsPositive() {
			return fmt.Errorf("%w: total must be positive", shared.ErrInvalidDocument)
		}
	case shared.VoucherReceipt, shared.VoucherPaymentVoucher:
		if !d.Amount.IsPositive() {
			return fmt.Errorf("%w: amount must be positive", shared.ErrInvalidDocument)
		}
	case shared.VoucherProvision:
		if len(d.Lines) == 0 {
			return shared.ErrTooFewLines
		}
	}
	return nil
}

// NeedsMapping reports whether any line must be resolved through the active mapping.
func (d Document) NeedsMapping() bool {
	switch d.Type {
	case shared.VoucherSalesInvoice:
		return true
	case shared.VoucherReceipt, shared.VoucherPaymentVoucher:
		return d.CounterAccountID == 0 || d.TargetAccountID == 0
	}
	return false
}

// binder resolves accounts, collecting every missing role.
type binder struct {
	m       *mappings.Mapping
	missing []string
}

func (b *binder) account(override int64, role mappings.Role) int64 {
	if override > 0 {
		return override
	}
	if id, ok := b.m.Account(role); ok {
		return id
	}
	b.missing = append(b.missing, string(role))
	return 0
}

func (b *binder) err() error {
	if len(b.missing) == 0 {
		return nil
	}
	if b.m == nil {
		return &shared.ConfigurationError{Missing: b.missing, Reason: "no active account mapping"}
	}
	return &shared.ConfigurationError{Missing: b.missing}
}

// Compose builds the journal lines of d. m may be nil when every account is
// supplied by the document.
func Compose(d Document, m *mappings.Mapping) ([]Line, error) {
	if err := d.ValidateAmounts(); err != nil {
		return nil, err
	}
	b := &binder{m: m}
	var lines []Line
	add := func(accountID int64, debit, credit decimal.Decimal, desc string) {
		debit, credit = shared.Round2(debit), shared.Round2(credit)
		if debit.IsZero() && credit.IsZero() {
			return
		}
		lines = append(lines, Line{AccountID: accountID, Debit: debit, Credit: credit, Description: desc})
	}
	zero := decimal.Zero
	switch d.Type {
	case shared.VoucherSalesInvoice:
		receivable := b.account(d.ReceivableAccountID, mappings.RoleAccountsReceivable)
		revenue := b.account(0, mappings.RoleSalesRevenue)
		var discount, tax int64
		if d.DiscountAmount.IsPositive() {
			discount = b.account(0, mappings.RoleDiscount)
		}
		if d.TaxAmount.IsPositive() {
			tax = b.account(0, mappings.RoleSalesTax)
		}
		shipping := revenue
		if id, ok := m.Account(mappings.RoleShippingRevenue); ok {
			shipping = id
		}
		add(receivable, d.Total, zero, "Receivable "+d.VoucherNo)
		add(discount, d.DiscountAmount, zero, "Sales discount "+d.VoucherNo)
		add(revenue, zero, d.Subtotal.Sub(d.ShippingAmount), "Sales revenue "+d.VoucherNo)
		add(shipping, zero, d.ShippingAmount, "Shipping revenue "+d.VoucherNo)
		add(tax, zero, d.TaxAmount, "Sales tax "+d.VoucherNo)
	case shared.VoucherReceipt:
		counter := b.account(d.CounterAccountID, mappings.RoleCash)
		target := b.account(d.TargetAccountID, mappings.RoleAccountsReceivable)
		add(counter, d.Amount, zero, "Receipt "+d.VoucherNo)
		add(target, zero, d.Amount, "Receipt "+d.VoucherNo)
	case shared.VoucherPaymentVoucher:
		counter := b.account(d.CounterAccountID, mappings.RoleCash)
		target := b.account(d.TargetAccountID, mappings.RoleAccountsPayable)
		add(target, d.Amount, zero, "Payment "+d.VoucherNo)
		add(counter, zero, d.Amount, "Payment "+d.VoucherNo)
	case shared.VoucherProvision:
		for _, l := range d.Lines {
			if l.Debit.IsNegative() || l.Credit.IsNegative() {
				return nil, fmt.Errorf("%w: negative amount", shared.ErrInvalidLine)
			}
			add(l.AccountID, l.Debit, l.Credit, l.Description)
		}
	}
	if err := b.err(); err != nil {
		return nil, err
	}
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// ValidateLines enforces one-sided, non-negative lines whose debits equal
// credits exactly.
func ValidateLines(lines []Line) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range lines {
		if line.AccountID <= 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsZero() == line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d must have exactly one of debit or credit", shared.ErrInvalidLine, idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s, credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// Totals sums the debit and credit sides.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}
