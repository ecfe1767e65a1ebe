package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Queries implements settlement and document statements over a pool or a transaction.
type Queries struct {
	q db.DBTX
}

// NewQueries binds settlement statements to q.
func NewQueries(q db.DBTX) *Queries {
	return &Queries{q: q}
}

const invoiceColumns = `id, number, party_id, date, due_date, currency, exchange_rate, subtotal, tax_amount, discount_amount, shipping_amount,
total, paid_amount, outstanding_amount, status, receivable_account_id, journal_entry_id, description, COALESCE(created_by, 0), created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.PartyID, &inv.Date, &inv.DueDate, &inv.Currency, &inv.ExchangeRate, &inv.Subtotal, &inv.TaxAmount,
		&inv.DiscountAmount, &inv.ShippingAmount, &inv.Total, &inv.PaidAmount, &inv.OutstandingAmount, &inv.Status, &inv.ReceivableAccountID,
		&inv.JournalEntryID, &inv.Description, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

const cashColumns = `id, kind, number, party_id, date, amount, currency, exchange_rate, counter_account_id, target_account_id, status,
journal_entry_id, description, COALESCE(created_by, 0), created_at, updated_at`

func scanCash(row pgx.Row) (CashDocument, error) {
	var c CashDocument
	err := row.Scan(&c.ID, &c.Kind, &c.Number, &c.PartyID, &c.Date, &c.Amount, &c.Currency, &c.ExchangeRate, &c.CounterAccountID, &c.TargetAccountID,
		&c.Status, &c.JournalEntryID, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashDocument{}, shared.ErrCashDocumentNotFound
		}
		return CashDocument{}, err
	}
	return c, nil
}

const allocationColumns = `id, invoice_id, cash_document_id, cash_kind, allocated_amount, settlement_order, is_reversed, reversed_at, reversed_by,
reversal_reason, COALESCE(created_by, 0), created_at`

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.InvoiceID, &a.CashDocumentID, &a.CashKind, &a.AllocatedAmount, &a.SettlementOrder, &a.IsReversed, &a.ReversedAt,
		&a.ReversedBy, &a.ReversalReason, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, shared.ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

// InsertInvoice stores a new invoice with its initial settlement state.
func (r *Queries) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO invoices (number, party_id, date, due_date, currency, exchange_rate, subtotal, tax_amount, discount_amount,
shipping_amount, total, paid_amount, outstanding_amount, status, receivable_account_id, description, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING `+invoiceColumns,
		inv.Number, inv.PartyID, inv.Date, inv.DueDate, inv.Currency, inv.ExchangeRate, inv.Subtotal, inv.TaxAmount, inv.DiscountAmount,
		inv.ShippingAmount, inv.Total, inv.PaidAmount, inv.OutstandingAmount, inv.Status, inv.ReceivableAccountID, inv.Description, nullInt(inv.CreatedBy))
	created, err := scanInvoice(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_invoices_number") {
			return Invoice{}, shared.ErrDuplicatePosting
		}
		return Invoice{}, err
	}
	return created, nil
}

// SetInvoiceJournal links an invoice to its posting.
func (r *Queries) SetInvoiceJournal(ctx context.Context, id, journalEntryID int64) error {
	cmd, err := r.q.Exec(ctx, `UPDATE invoices SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, id, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvoiceNotFound
	}
	return nil
}

// GetInvoice reads an invoice without locking.
func (r *Queries) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
}

// InsertCashDocument stores a receipt or payment voucher.
func (r *Queries) InsertCashDocument(ctx context.Context, c CashDocument) (CashDocument, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO cash_documents (kind, number, party_id, date, amount, currency, exchange_rate, counter_account_id,
target_account_id, status, description, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING `+cashColumns,
		c.Kind, c.Number, c.PartyID, c.Date, c.Amount, c.Currency, c.ExchangeRate, c.CounterAccountID,
		c.TargetAccountID, c.Status, c.Description, nullInt(c.CreatedBy))
	created, err := scanCash(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_cash_documents_number") {
			return CashDocument{}, shared.ErrDuplicatePosting
		}
		return CashDocument{}, err
	}
	return created, nil
}

// SetCashDocumentPosted links the posting and moves the document to status.
func (r *Queries) SetCashDocumentPosted(ctx context.Context, id, journalEntryID int64, status CashStatus) error {
	cmd, err := r.q.Exec(ctx, `UPDATE cash_documents SET journal_entry_id=$2, status=$3, updated_at=NOW() WHERE id=$1`, id, journalEntryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrCashDocumentNotFound
	}
	return nil
}

func (r *Queries) LockCashDocument(ctx context.Context, id int64) (CashDocument, error) {
	return scanCash(r.q.QueryRow(ctx, `SELECT `+cashColumns+` FROM cash_documents WHERE id=$1 FOR UPDATE`, id))
}

func (r *Queries) SumCashAllocated(ctx context.Context, cashDocumentID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(allocated_amount), 0) FROM invoice_allocations
WHERE cash_document_id=$1 AND NOT is_reversed`, cashDocumentID).Scan(&sum)
	return sum, err
}

func (r *Queries) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
}

// LockInvoiceByNumber locks the invoice stored under number.
func (r *Queries) LockInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	return scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number=$1 FOR UPDATE`, number))
}

// LockCashDocumentByNumber locks the receipt or payment voucher stored under number.
func (r *Queries) LockCashDocumentByNumber(ctx context.Context, kind CashKind, number string) (CashDocument, error) {
	return scanCash(r.q.QueryRow(ctx, `SELECT `+cashColumns+` FROM cash_documents WHERE kind=$1 AND number=$2 FOR UPDATE`, kind, number))
}

// LockOutstandingInvoices locks the party's open invoices in id order.
func (r *Queries) LockOutstandingInvoices(ctx context.Context, partyID int64) ([]Invoice, error) {
	rows, err := r.q.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE party_id=$1 AND status <> 'PAID' AND outstanding_amount > 0 ORDER BY id FOR UPDATE`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *Queries) NextSettlementOrder(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(settlement_order), 0) + 1 FROM invoice_allocations WHERE invoice_id=$1`, invoiceID).Scan(&n)
	return n, err
}

func (r *Queries) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	return scanAllocation(r.q.QueryRow(ctx, `INSERT INTO invoice_allocations (invoice_id, cash_document_id, cash_kind, allocated_amount, settlement_order, created_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+allocationColumns, a.InvoiceID, a.CashDocumentID, a.CashKind, a.AllocatedAmount, a.SettlementOrder, nullInt(a.CreatedBy)))
}

func (r *Queries) SumInvoiceAllocated(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(allocated_amount), 0) FROM invoice_allocations
WHERE invoice_id=$1 AND NOT is_reversed`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *Queries) UpdateInvoiceSettlement(ctx context.Context, id int64, paid, outstanding decimal.Decimal, status InvoiceStatus) error {
	cmd, err := r.q.Exec(ctx, `UPDATE invoices SET paid_amount=$2, outstanding_amount=$3, status=$4, updated_at=NOW() WHERE id=$1`, id, paid, outstanding, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvoiceNotFound
	}
	return nil
}

func (r *Queries) LockAllocation(ctx context.Context, id int64) (Allocation, error) {
	return scanAllocation(r.q.QueryRow(ctx, `SELECT `+allocationColumns+` FROM invoice_allocations WHERE id=$1 FOR UPDATE`, id))
}

func (r *Queries) MarkAllocationReversed(ctx context.Context, id, userID int64, reason string, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE invoice_allocations SET is_reversed=TRUE, reversed_at=$2, reversed_by=$3, reversal_reason=$4
WHERE id=$1 AND NOT is_reversed`, id, at, nullInt(userID), reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyReversed
	}
	return nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
