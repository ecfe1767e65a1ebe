package shared

// VoucherType identifies the business document behind a journal.
type VoucherType string

const (
	VoucherSalesInvoice   VoucherType = "SALES_INVOICE"
	VoucherReceipt        VoucherType = "RECEIPT"
	VoucherPaymentVoucher VoucherType = "PAYMENT_VOUCHER"
	VoucherProvision      VoucherType = "PROVISION"
)

// Prefix returns the entry-number prefix for the voucher type.
func (t VoucherType) Prefix() string {
	switch t {
	case VoucherSalesInvoice:
		return "SIN"
	case VoucherReceipt:
		return "RCP"
	case VoucherPaymentVoucher:
		return "PAY"
	case VoucherProvision:
		return "PRV"
	default:
		return "JV"
	}
}

// Valid reports whether t is a known voucher type.
func (t VoucherType) Valid() bool {
	switch t {
	case VoucherSalesInvoice, VoucherReceipt, VoucherPaymentVoucher, VoucherProvision:
		return true
	}
	return false
}
