package ledgerhttp

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

const dateLayout = "2006-01-02"

type invoiceRequest struct {
	Number              string          `json:"number" validate:"required,max=64"`
	PartyID             int64           `json:"party_id" validate:"required,gt=0"`
	Date                string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	DueDate             string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Currency            string          `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	ShippingAmount      decimal.Decimal `json:"shipping_amount"`
	Total               decimal.Decimal `json:"total"`
	ReceivableAccountID int64           `json:"receivable_account_id" validate:"gte=0"`
	Description         string          `json:"description" validate:"max=500"`
}

func (r invoiceRequest) input() ledger.InvoiceInput {
	in := ledger.InvoiceInput{
		Number:              r.Number,
		PartyID:             r.PartyID,
		Date:                parseDate(r.Date),
		Currency:            r.Currency,
		ExchangeRate:        r.ExchangeRate,
		Subtotal:            r.Subtotal,
		TaxAmount:           r.TaxAmount,
		DiscountAmount:      r.DiscountAmount,
		ShippingAmount:      r.ShippingAmount,
		Total:               r.Total,
		ReceivableAccountID: r.ReceivableAccountID,
		Description:         r.Description,
	}
	if due := parseDate(r.DueDate); !due.IsZero() {
		in.DueDate = &due
	}
	return in
}

type allocationLine struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type allocationRequest struct {
	FIFO        bool             `json:"fifo"`
	PartyID     int64            `json:"party_id" validate:"gte=0"`
	Allocations []allocationLine `json:"allocations" validate:"dive"`
}

func (r allocationRequest) request() ledger.AllocationRequest {
	out := ledger.AllocationRequest{FIFO: r.FIFO, PartyID: r.PartyID}
	for _, a := range r.Allocations {
		out.Allocations = append(out.Allocations, settlement.Request{InvoiceID: a.InvoiceID, Amount: a.Amount})
	}
	return out
}

type cashRequest struct {
	Kind             string             `json:"kind" validate:"required,oneof=RECEIPT PAYMENT_VOUCHER"`
	Number           string             `json:"number" validate:"required,max=64"`
	PartyID          int64              `json:"party_id" validate:"required,gt=0"`
	Date             string             `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Amount           decimal.Decimal    `json:"amount"`
	Currency         string             `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate     decimal.Decimal    `json:"exchange_rate"`
	CounterAccountID int64              `json:"counter_account_id" validate:"gte=0"`
	TargetAccountID  int64              `json:"target_account_id" validate:"gte=0"`
	Description      string             `json:"description" validate:"max=500"`
	Allocation       *allocationRequest `json:"allocation"`
}

func (r cashRequest) input() ledger.CashInput {
	in := ledger.CashInput{
		Kind:             settlement.CashKind(r.Kind),
		Number:           r.Number,
		PartyID:          r.PartyID,
		Date:             parseDate(r.Date),
		Amount:           r.Amount,
		Currency:         r.Currency,
		ExchangeRate:     r.ExchangeRate,
		CounterAccountID: r.CounterAccountID,
		TargetAccountID:  r.TargetAccountID,
		Description:      r.Description,
	}
	if r.Allocation != nil {
		in.Allocation = r.Allocation.request()
	}
	return in
}

type journalLine struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=255"`
}

type postRequest struct {
	Type             string          `json:"type" validate:"required,oneof=SALES_INVOICE RECEIPT PAYMENT_VOUCHER PROVISION"`
	VoucherNo        string          `json:"voucher_no" validate:"required,max=64"`
	Date             string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description      string          `json:"description" validate:"max=500"`
	PartyID          int64           `json:"party_id" validate:"gte=0"`
	Currency         string          `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	ShippingAmount   decimal.Decimal `json:"shipping_amount"`
	Total            decimal.Decimal `json:"total"`
	Amount           decimal.Decimal `json:"amount"`
	CounterAccountID int64           `json:"counter_account_id" validate:"gte=0"`
	TargetAccountID  int64           `json:"target_account_id" validate:"gte=0"`
	Lines            []journalLine   `json:"lines" validate:"dive"`
	Force            bool            `json:"force"`
	RejectDuplicate  bool            `json:"reject_duplicate"`
}

func (r postRequest) document() (journals.Document, journals.PostOptions) {
	doc := journals.Document{
		Type:             shared.VoucherType(r.Type),
		VoucherNo:        r.VoucherNo,
		Date:             parseDate(r.Date),
		Description:      r.Description,
		Currency:         r.Currency,
		ExchangeRate:     r.ExchangeRate,
		Subtotal:         r.Subtotal,
		TaxAmount:        r.TaxAmount,
		DiscountAmount:   r.DiscountAmount,
		ShippingAmount:   r.ShippingAmount,
		Total:            r.Total,
		Amount:           r.Amount,
		CounterAccountID: r.CounterAccountID,
		TargetAccountID:  r.TargetAccountID,
	}
	if r.PartyID > 0 {
		party := r.PartyID
		doc.PartyID = &party
	}
	for _, l := range r.Lines {
		doc.Lines = append(doc.Lines, journals.Line{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Description: l.Description})
	}
	return doc, journals.PostOptions{Force: r.Force, RejectDuplicate: r.RejectDuplicate}
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type mappingRequest struct {
	Name        string           `json:"name" validate:"required,max=120"`
	Description string           `json:"description" validate:"max=500"`
	Bindings    map[string]int64 `json:"bindings" validate:"required,min=1"`
	Activate    bool             `json:"activate"`
}

func (r mappingRequest) input() mappings.Input {
	bindings := make(map[mappings.Role]int64, len(r.Bindings))
	for role, id := range r.Bindings {
		bindings[mappings.Role(role)] = id
	}
	return mappings.Input{Name: r.Name, Description: r.Description, Bindings: bindings, Activate: r.Activate}
}

// parseDate returns the zero time for empty input; the validator has
// already rejected malformed dates.
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

type journalView struct {
	ID          int64           `json:"id"`
	EntryNumber string          `json:"entry_number"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	VoucherNo   string          `json:"voucher_no"`
	Status      string          `json:"status"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Currency    string          `json:"currency"`
	Lines       []lineView      `json:"lines"`
}

type lineView struct {
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

type postingView struct {
	Journal    journalView `json:"journal"`
	Created    bool        `json:"created"`
	Superseded string      `json:"superseded,omitempty"`
	GLEntries  []glView    `json:"gl_entries,omitempty"`
	Reversed   []glView    `json:"reversed,omitempty"`
}

type glView struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	PostingDate string          `json:"posting_date"`
	VoucherType string          `json:"voucher_type"`
	VoucherNo   string          `json:"voucher_no"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	IsCancelled bool            `json:"is_cancelled"`
}

func viewPosting(p ledger.Posting) postingView {
	v := postingView{
		Journal: journalView{
			ID:          p.Entry.ID,
			EntryNumber: p.Entry.EntryNumber,
			Date:        p.Entry.Date.Format(dateLayout),
			Type:        string(p.Entry.Type),
			VoucherNo:   p.Entry.VoucherNo,
			Status:      string(p.Entry.Status),
			TotalDebit:  p.Entry.TotalDebit,
			TotalCredit: p.Entry.TotalCredit,
			Currency:    p.Entry.Currency,
		},
		Created:   p.Created,
		GLEntries: viewGL(p.GLEntries),
		Reversed:  viewGL(p.Reversed),
	}
	for _, d := range p.Details {
		v.Journal.Lines = append(v.Journal.Lines, lineView{AccountID: d.AccountID, Debit: d.Debit, Credit: d.Credit, Description: d.Description})
	}
	if p.Superseded != nil {
		v.Superseded = p.Superseded.EntryNumber
	}
	return v
}

func viewGL(entries []gl.Entry) []glView {
	if len(entries) == 0 {
		return nil
	}
	out := make([]glView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewGLEntry(e))
	}
	return out
}

func viewGLEntry(e gl.Entry) glView {
	return glView{
		ID:          e.ID,
		AccountID:   e.AccountID,
		PostingDate: e.PostingDate.Format(dateLayout),
		VoucherType: string(e.VoucherType),
		VoucherNo:   e.VoucherNo,
		Debit:       e.Debit,
		Credit:      e.Credit,
		IsCancelled: e.IsCancelled,
	}
}

type invoiceView struct {
	ID                int64           `json:"id"`
	Number            string          `json:"number"`
	PartyID           int64           `json:"party_id"`
	Total             decimal.Decimal `json:"total"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	Status            string          `json:"status"`
}

func viewInvoice(inv settlement.Invoice) invoiceView {
	return invoiceView{
		ID:                inv.ID,
		Number:            inv.Number,
		PartyID:           inv.PartyID,
		Total:             inv.Total,
		PaidAmount:        inv.PaidAmount,
		OutstandingAmount: inv.OutstandingAmount,
		Status:            string(inv.Status),
	}
}

type allocationView struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	CashDocumentID  int64           `json:"cash_document_id"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	SettlementOrder int             `json:"settlement_order"`
	IsReversed      bool            `json:"is_reversed"`
	ReversalReason  string          `json:"reversal_reason,omitempty"`
}

func viewAllocation(a settlement.Allocation) allocationView {
	return allocationView{
		ID:              a.ID,
		InvoiceID:       a.InvoiceID,
		CashDocumentID:  a.CashDocumentID,
		AllocatedAmount: a.AllocatedAmount,
		SettlementOrder: a.SettlementOrder,
		IsReversed:      a.IsReversed,
		ReversalReason:  a.ReversalReason,
	}
}

type settlementView struct {
	Allocations []allocationView `json:"allocations"`
	Invoices    []invoiceView    `json:"invoices"`
	Unallocated decimal.Decimal  `json:"unallocated"`
}

func viewOutcome(o settlement.Outcome) settlementView {
	v := settlementView{
		Allocations: make([]allocationView, 0, len(o.Allocations)),
		Invoices:    make([]invoiceView, 0, len(o.Invoices)),
		Unallocated: o.Unallocated,
	}
	for _, a := range o.Allocations {
		v.Allocations = append(v.Allocations, viewAllocation(a))
	}
	for _, inv := range o.Invoices {
		v.Invoices = append(v.Invoices, viewInvoice(inv))
	}
	return v
}

type cashView struct {
	ID      int64           `json:"id"`
	Kind    string          `json:"kind"`
	Number  string          `json:"number"`
	PartyID int64           `json:"party_id"`
	Amount  decimal.Decimal `json:"amount"`
	Status  string          `json:"status"`
}

type mappingView struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Bindings    map[string]int64 `json:"bindings"`
	IsActive    bool             `json:"is_active"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func viewMapping(m mappings.Mapping) mappingView {
	v := mappingView{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Bindings:    make(map[string]int64, len(m.Bindings)),
		IsActive:    m.IsActive,
		UpdatedAt:   m.UpdatedAt,
	}
	for role, id := range m.Bindings {
		v.Bindings[string(role)] = id
	}
	return v
}
