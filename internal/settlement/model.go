package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// InvoiceStatus is derived from the outstanding amount.
type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "UNPAID"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
)

// Invoice is a sales invoice as seen by settlement.
type Invoice struct {
	ID                  int64
	Number              string
	PartyID             int64
	Date                time.Time
	DueDate             *time.Time
	Currency            string
	ExchangeRate        decimal.Decimal
	Subtotal            decimal.Decimal
	TaxAmount           decimal.Decimal
	DiscountAmount      decimal.Decimal
	ShippingAmount      decimal.Decimal
	Total               decimal.Decimal
	PaidAmount          decimal.Decimal
	OutstandingAmount   decimal.Decimal
	Status              InvoiceStatus
	ReceivableAccountID *int64
	JournalEntryID      *int64
	Description         string
	CreatedBy           int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CashKind distinguishes incoming receipts from outgoing payment vouchers.
type CashKind string

const (
	CashReceipt        CashKind = "RECEIPT"
	CashPaymentVoucher CashKind = "PAYMENT_VOUCHER"
)

// VoucherType maps the kind to its journal voucher type.
func (k CashKind) VoucherType() shared.VoucherType {
	if k == CashPaymentVoucher {
		return shared.VoucherPaymentVoucher
	}
	return shared.VoucherReceipt
}

// Valid reports whether k is a known kind.
func (k CashKind) Valid() bool {
	return k == CashReceipt || k == CashPaymentVoucher
}

// CashStatus enumerates cash document lifecycle values.
type CashStatus string

const (
	CashPending   CashStatus = "PENDING"
	CashCompleted CashStatus = "COMPLETED"
	CashCancelled CashStatus = "CANCELLED"
)

// CashDocument is a receipt or payment voucher.
type CashDocument struct {
	ID               int64
	Kind             CashKind
	Number           string
	PartyID          int64
	Date             time.Time
	Amount           decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	CounterAccountID *int64
	TargetAccountID  *int64
	Status           CashStatus
	JournalEntryID   *int64
	Description      string
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Allocation links part of a cash document to one invoice. Rows are never
// deleted; reversal is the only retraction.
type Allocation struct {
	ID              int64
	InvoiceID       int64
	CashDocumentID  int64
	CashKind        CashKind
	AllocatedAmount decimal.Decimal
	SettlementOrder int
	IsReversed      bool
	ReversedAt      *time.Time
	ReversedBy      *int64
	ReversalReason  string
	CreatedBy       int64
	CreatedAt       time.Time
}

// Request asks for an explicit amount against one invoice.
type Request struct {
	InvoiceID int64
	Amount    decimal.Decimal
}

// Plan is one planned allocation.
type Plan struct {
	InvoiceID int64
	Amount    decimal.Decimal
}

// Outcome reports what an allocation run persisted.
type Outcome struct {
	Allocations []Allocation
	Invoices    []Invoice
	// Unallocated is the cash left on the document afterwards.
	Unallocated decimal.Decimal
}
