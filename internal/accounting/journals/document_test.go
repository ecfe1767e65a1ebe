package journals

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func fullMapping() *mappings.Mapping {
	return &mappings.Mapping{
		IsActive: true,
		Bindings: map[mappings.Role]int64{
			mappings.RoleCash:               1,
			mappings.RoleAccountsReceivable: 2,
			mappings.RoleAccountsPayable:    3,
			mappings.RoleSalesTax:           4,
			mappings.RoleSalesRevenue:       5,
			mappings.RoleDiscount:           6,
		},
	}
}

func TestComposeSalesInvoice(t *testing.T) {
	doc := Document{
		Type:           shared.VoucherSalesInvoice,
		VoucherNo:      "SI-1",
		Subtotal:       d("1000"),
		DiscountAmount: d("50"),
		TaxAmount:      d("150"),
		Total:          d("1100"),
	}
	lines, err := Compose(doc, fullMapping())
	require.NoError(t, err)
	require.Len(t, lines, 4)

	require.Equal(t, int64(2), lines[0].AccountID)
	require.True(t, lines[0].Debit.Equal(d("1100")))
	require.Equal(t, int64(6), lines[1].AccountID)
	require.True(t, lines[1].Debit.Equal(d("50")))
	require.Equal(t, int64(5), lines[2].AccountID)
	require.True(t, lines[2].Credit.Equal(d("1000")))
	require.Equal(t, int64(4), lines[3].AccountID)
	require.True(t, lines[3].Credit.Equal(d("150")))

	debit, credit := Totals(lines)
	require.True(t, debit.Equal(credit))
}

func TestComposeRejectsTotalOffByOneCent(t *testing.T) {
	_, err := Compose(Document{
		Type:           shared.VoucherSalesInvoice,
		VoucherNo:      "SI-2",
		Subtotal:       d("1000"),
		DiscountAmount: d("50"),
		TaxAmount:      d("150"),
		Total:          d("1100.01"),
	}, fullMapping())
	require.ErrorIs(t, err, shared.ErrAmountMismatch)
	require.NotErrorIs(t, err, shared.ErrUnbalanced)
}

func TestComposeBalancesSubCentComponents(t *testing.T) {
	lines, err := Compose(Document{
		Type:      shared.VoucherSalesInvoice,
		VoucherNo: "SI-3",
		Subtotal:  d("100.004"),
		TaxAmount: d("11.004"),
		Total:     d("111"),
	}, fullMapping())
	require.NoError(t, err)
	debit, credit := Totals(lines)
	require.True(t, debit.Equal(credit))
	require.True(t, debit.Equal(d("111")))
}

func TestComposeSalesInvoiceSplitsShipping(t *testing.T) {
	m := fullMapping()
	m.Bindings[mappings.RoleShippingRevenue] = 7
	lines, err := Compose(Document{
		Type:           shared.VoucherSalesInvoice,
		VoucherNo:      "SI-2",
		Subtotal:       d("500"),
		ShippingAmount: d("120"),
		Total:          d("500"),
	}, m)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, int64(5), lines[1].AccountID)
	require.True(t, lines[1].Credit.Equal(d("380")))
	require.Equal(t, int64(7), lines[2].AccountID)
	require.True(t, lines[2].Credit.Equal(d("120")))
}

func TestComposeReportsEveryMissingRole(t *testing.T) {
	m := &mappings.Mapping{Bindings: map[mappings.Role]int64{mappings.RoleSalesRevenue: 5}}
	_, err := Compose(Document{
		Type:           shared.VoucherSalesInvoice,
		VoucherNo:      "SI-3",
		Subtotal:       d("100"),
		TaxAmount:      d("10"),
		DiscountAmount: d("5"),
		Total:          d("105"),
	}, m)
	var cfg *shared.ConfigurationError
	require.True(t, errors.As(err, &cfg))
	require.ElementsMatch(t, []string{"accounts_receivable", "discount", "sales_tax"}, cfg.Missing)
}

func TestComposeCashDocumentsWithOverrides(t *testing.T) {
	receipt, err := Compose(Document{
		Type:             shared.VoucherReceipt,
		VoucherNo:        "RC-1",
		Amount:           d("75.5"),
		CounterAccountID: 11,
		TargetAccountID:  12,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(11), receipt[0].AccountID)
	require.True(t, receipt[0].Debit.Equal(d("75.5")))
	require.Equal(t, int64(12), receipt[1].AccountID)
	require.True(t, receipt[1].Credit.Equal(d("75.5")))

	payment, err := Compose(Document{
		Type:      shared.VoucherPaymentVoucher,
		VoucherNo: "PV-1",
		Amount:    d("40"),
	}, fullMapping())
	require.NoError(t, err)
	require.Equal(t, int64(3), payment[0].AccountID)
	require.True(t, payment[0].Debit.Equal(d("40")))
	require.Equal(t, int64(1), payment[1].AccountID)
	require.True(t, payment[1].Credit.Equal(d("40")))
}

func TestValidateAmounts(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
		want error
	}{
		{"sub-cent rounding", Document{Type: shared.VoucherSalesInvoice, Subtotal: d("100"), TaxAmount: d("11.004"), Total: d("111")}, nil},
		{"one cent over", Document{Type: shared.VoucherSalesInvoice, Subtotal: d("100"), TaxAmount: d("11"), Total: d("111.01")}, shared.ErrAmountMismatch},
		{"one cent over with discount", Document{Type: shared.VoucherSalesInvoice, Subtotal: d("1000"), TaxAmount: d("150"), DiscountAmount: d("50"), Total: d("1100.01")}, shared.ErrAmountMismatch},
		{"mismatch", Document{Type: shared.VoucherSalesInvoice, Subtotal: d("100"), TaxAmount: d("11"), Total: d("112")}, shared.ErrAmountMismatch},
		{"negative tax", Document{Type: shared.VoucherSalesInvoice, Subtotal: d("100"), TaxAmount: d("-1"), Total: d("99")}, shared.ErrInvalidDocument},
		{"shipping above subtotal", Document{Type: shared.VoucherSalesInvoice, Subtotal: d("10"), ShippingAmount: d("11"), Total: d("10")}, shared.ErrInvalidDocument},
		{"zero receipt", Document{Type: shared.VoucherReceipt, Amount: decimal.Zero}, shared.ErrInvalidDocument},
		{"empty provision", Document{Type: shared.VoucherProvision}, shared.ErrTooFewLines},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.doc.ValidateAmounts()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestValidateLines(t *testing.T) {
	require.ErrorIs(t, ValidateLines([]Line{{AccountID: 1, Debit: d("1"), Credit: decimal.Zero}}), shared.ErrTooFewLines)
	require.ErrorIs(t, ValidateLines([]Line{
		{AccountID: 1, Debit: d("10"), Credit: decimal.Zero},
		{AccountID: 2, Debit: decimal.Zero, Credit: d("9.99")},
	}), shared.ErrUnbalanced)
	require.ErrorIs(t, ValidateLines([]Line{
		{AccountID: 1, Debit: d("10"), Credit: d("10")},
		{AccountID: 2, Debit: decimal.Zero, Credit: d("0")},
	}), shared.ErrInvalidLine)
	require.ErrorIs(t, ValidateLines([]Line{
		{AccountID: 0, Debit: d("10"), Credit: decimal.Zero},
		{AccountID: 2, Debit: decimal.Zero, Credit: d("10")},
	}), shared.ErrInvalidLine)
	require.NoError(t, ValidateLines([]Line{
		{AccountID: 1, Debit: d("10"), Credit: decimal.Zero},
		{AccountID: 2, Debit: decimal.Zero, Credit: d("4")},
		{AccountID: 3, Debit: decimal.Zero, Credit: d("6")},
	}))
}

func TestNormalizeDerivesStableSourceID(t *testing.T) {
	a, err := Document{Type: shared.VoucherReceipt, VoucherNo: " RC-9 "}.Normalize()
	require.NoError(t, err)
	b, err := Document{Type: shared.VoucherReceipt, VoucherNo: "RC-9"}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "RC-9", a.VoucherNo)
	require.Equal(t, a.SourceID, b.SourceID)
	require.Equal(t, shared.DefaultCurrency, a.Currency)
	require.True(t, a.ExchangeRate.Equal(decimal.NewFromInt(1)))

	_, err = Document{Type: "JOURNAL", VoucherNo: "X"}.Normalize()
	require.ErrorIs(t, err, shared.ErrInvalidDocument)
}

func TestFormatEntryNumber(t *testing.T) {
	require.Equal(t, "SIN-000123", FormatEntryNumber("SIN", 123))
	require.Equal(t, "PRV-1234567", FormatEntryNumber("PRV", 1234567))
}
