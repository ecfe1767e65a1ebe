package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

// InvoiceInput carries a sales invoice to create and post.
type InvoiceInput struct {
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
	ReceivableAccountID int64
	Description         string
}

func (in InvoiceInput) document() journals.Document {
	return journals.Document{
		Type:                shared.VoucherSalesInvoice,
		VoucherNo:           in.Number,
		Date:                in.Date,
		Description:         in.Description,
		PartyID:             optionalID(in.PartyID),
		Currency:            in.Currency,
		ExchangeRate:        in.ExchangeRate,
		Subtotal:            in.Subtotal,
		TaxAmount:           in.TaxAmount,
		DiscountAmount:      in.DiscountAmount,
		ShippingAmount:      in.ShippingAmount,
		Total:               in.Total,
		ReceivableAccountID: in.ReceivableAccountID,
	}
}

// AllocationRequest selects explicit or FIFO settlement for a cash document.
type AllocationRequest struct {
	FIFO        bool
	PartyID     int64
	Allocations []settlement.Request
}

func (r AllocationRequest) empty() bool {
	return !r.FIFO && len(r.Allocations) == 0
}

// CashInput carries a receipt or payment voucher to create, post and
// optionally allocate.
type CashInput struct {
	Kind             settlement.CashKind
	Number           string
	PartyID          int64
	Date             time.Time
	Amount           decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	CounterAccountID int64
	TargetAccountID  int64
	Description      string
	Allocation       AllocationRequest
}

func (in CashInput) document() journals.Document {
	return journals.Document{
		Type:             in.Kind.VoucherType(),
		VoucherNo:        in.Number,
		Date:             in.Date,
		Description:      in.Description,
		PartyID:          optionalID(in.PartyID),
		Currency:         in.Currency,
		ExchangeRate:     in.ExchangeRate,
		Amount:           in.Amount,
		CounterAccountID: in.CounterAccountID,
		TargetAccountID:  in.TargetAccountID,
	}
}

func (in CashInput) validate() error {
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown cash document kind %q", shared.ErrInvalidDocument, in.Kind)
	}
	if strings.TrimSpace(in.Number) == "" {
		return fmt.Errorf("%w: number required", shared.ErrInvalidDocument)
	}
	if in.PartyID <= 0 {
		return fmt.Errorf("%w: party required", shared.ErrInvalidDocument)
	}
	return nil
}

// Posting is the ledger footprint of one document.
type Posting struct {
	journals.PostResult
	GLEntries []gl.Entry
	// Reversed holds GL rows cancelled because a forced re-post superseded them.
	Reversed []gl.Entry
}

// InvoicePosting is returned by CreateSalesInvoice.
type InvoicePosting struct {
	Invoice settlement.Invoice
	Posting Posting
}

// CashPosting is returned by CreateCashDocument.
type CashPosting struct {
	Document   settlement.CashDocument
	Posting    Posting
	Settlement settlement.Outcome
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
