package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TxRepository exposes journal statements bound to one transaction.
type TxRepository interface {
	GetActiveMapping(ctx context.Context) (*mappings.Mapping, error)
	AdvisoryLock(ctx context.Context, key string) error
	FindPostedJournal(ctx context.Context, voucherType shared.VoucherType, voucherNo string) (*JournalEntry, error)
	MaxEntrySuffix(ctx context.Context, prefix string) (int64, error)
	InsertJournal(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalDetails(ctx context.Context, entryID int64, lines []Line) ([]Detail, error)
	GetJournal(ctx context.Context, id int64) (JournalEntry, error)
	ListJournalDetails(ctx context.Context, entryID int64) ([]Detail, error)
	UpdateJournalStatus(ctx context.Context, id int64, status JournalStatus) error
}

// Engine turns documents into balanced journal entries. It never touches GL
// rows or balances; the caller applies the returned details in the same
// transaction.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs the journal engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post composes and persists the journal for doc.
func (e *Engine) Post(ctx context.Context, tx TxRepository, doc Document, userID int64, opts PostOptions) (PostResult, error) {
	doc, err := doc.Normalize()
	if err != nil {
		return PostResult{}, err
	}
	if doc.Date.IsZero() {
		doc.Date = e.now()
	}
	if err := doc.ValidateAmounts(); err != nil {
		return PostResult{}, err
	}

	if err := tx.AdvisoryLock(ctx, voucherLockKey(doc)); err != nil {
		return PostResult{}, err
	}
	existing, err := tx.FindPostedJournal(ctx, doc.Type, doc.VoucherNo)
	if err != nil {
		return PostResult{}, err
	}
	var superseded *JournalEntry
	if existing != nil {
		switch {
		case opts.Force:
			if err := tx.UpdateJournalStatus(ctx, existing.ID, JournalStatusCancelled); err != nil {
				return PostResult{}, err
			}
			existing.Status = JournalStatusCancelled
			superseded = existing
		case opts.RejectDuplicate:
			return PostResult{}, fmt.Errorf("%w: %s %s is %s", shared.ErrDuplicatePosting, doc.Type, doc.VoucherNo, existing.EntryNumber)
		default:
			details, err := tx.ListJournalDetails(ctx, existing.ID)
			if err != nil {
				return PostResult{}, err
			}
			return PostResult{Entry: *existing, Details: details}, nil
		}
	}

	var mapping *mappings.Mapping
	if doc.NeedsMapping() {
		mapping, err = tx.GetActiveMapping(ctx)
		if err != nil {
			return PostResult{}, err
		}
	}
	lines, err := Compose(doc, mapping)
	if err != nil {
		return PostResult{}, err
	}

	number, err := e.nextEntryNumber(ctx, tx, doc.Type.Prefix())
	if err != nil {
		return PostResult{}, err
	}
	debit, credit := Totals(lines)
	entry, err := tx.InsertJournal(ctx, JournalEntry{
		EntryNumber:  number,
		Date:         doc.Date,
		Description:  describe(doc),
		TotalDebit:   debit,
		TotalCredit:  credit,
		Status:       JournalStatusPosted,
		Type:         doc.Type,
		VoucherNo:    doc.VoucherNo,
		SourceID:     doc.SourceID,
		Currency:     doc.Currency,
		ExchangeRate: doc.ExchangeRate,
		PartyID:      doc.PartyID,
		CreatedBy:    userID,
	})
	if err != nil {
		return PostResult{}, err
	}
	details, err := tx.InsertJournalDetails(ctx, entry.ID, lines)
	if err != nil {
		return PostResult{}, err
	}
	return PostResult{Entry: entry, Details: details, Created: true, Superseded: superseded}, nil
}

// nextEntryNumber serializes numbering per prefix for the rest of the transaction.
func (e *Engine) nextEntryNumber(ctx context.Context, tx TxRepository, prefix string) (string, error) {
	if err := tx.AdvisoryLock(ctx, "journal_entries:number:"+prefix); err != nil {
		return "", err
	}
	last, err := tx.MaxEntrySuffix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return FormatEntryNumber(prefix, last+1), nil
}

// FormatEntryNumber renders PREFIX-000123.
func FormatEntryNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

func voucherLockKey(doc Document) string {
	return fmt.Sprintf("journal_entries:voucher:%s:%s", doc.Type, doc.VoucherNo)
}

func describe(doc Document) string {
	if doc.Description != "" {
		return doc.Description
	}
	switch doc.Type {
	case shared.VoucherSalesInvoice:
		return "Sales invoice " + doc.VoucherNo
	case shared.VoucherReceipt:
		return "Receipt " + doc.VoucherNo
	case shared.VoucherPaymentVoucher:
		return "Payment voucher " + doc.VoucherNo
	case shared.VoucherProvision:
		return "Provision adjustment " + doc.VoucherNo
	}
	return doc.VoucherNo
}
