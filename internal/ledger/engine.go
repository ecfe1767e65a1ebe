package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

// AuditPort records financial mutations after commit.
type AuditPort interface {
	LogAction(ctx context.Context, in audit.Input) (audit.Entry, error)
}

// BalanceCache serves cached balances and is invalidated after postings.
type BalanceCache interface {
	Balance(ctx context.Context, accountID int64, load func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error)
	Invalidate(ctx context.Context) error
}

// Recorder observes ledger outcomes for metrics.
type Recorder interface {
	ObservePosting(voucherType string, outcome string)
	ObserveAllocation(mode string, count int)
}

// Engine orchestrates documents, journals, GL and settlement inside single
// transactions. Audit and cache invalidation run after commit.
type Engine struct {
	store    Store
	journals *journals.Engine
	poster   *gl.Poster
	alloc    *settlement.Allocator
	audit    AuditPort
	cache    BalanceCache
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithAudit attaches the audit log.
func WithAudit(a AuditPort) Option { return func(e *Engine) { e.audit = a } }

// WithCache attaches the balance cache.
func WithCache(c BalanceCache) Option { return func(e *Engine) { e.cache = c } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.metrics = r } }

// WithClock pins the clock of every component.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.journals.WithNow(now)
		e.poster.WithNow(now)
		e.alloc.WithNow(now)
	}
}

// NewEngine constructs the ledger engine.
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		journals: journals.NewEngine(),
		poster:   gl.NewPoster(),
		alloc:    settlement.NewAllocator(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Effects are post-commit side effects collected during a transaction. A
// retried transaction must start from a fresh value.
type Effects struct {
	audits []audit.Input
	posted bool
}

// Record queues an audit entry for AfterCommit.
func (fx *Effects) Record(in audit.Input) {
	fx.audits = append(fx.audits, in)
}

// PostDocument posts doc in its own transaction.
func (e *Engine) PostDocument(ctx context.Context, doc journals.Document, userID int64, opts journals.PostOptions) (Posting, error) {
	var (
		posting Posting
		fx      Effects
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		fx = Effects{}
		posting, err = e.PostDocumentTx(ctx, tx, doc, userID, opts, &fx)
		return err
	})
	e.observePosting(doc.Type, posting, err)
	if err != nil {
		return Posting{}, err
	}
	e.AfterCommit(ctx, &fx)
	return posting, nil
}

// PostDocumentTx posts doc inside the caller's transaction. The caller runs
// AfterCommit with fx once its transaction committed.
func (e *Engine) PostDocumentTx(ctx context.Context, tx Tx, doc journals.Document, userID int64, opts journals.PostOptions, fx *Effects) (Posting, error) {
	res, err := e.journals.Post(ctx, tx, doc, userID, opts)
	if err != nil {
		return Posting{}, err
	}
	posting := Posting{PostResult: res}
	if !res.Created {
		return posting, nil
	}
	if res.Superseded != nil {
		if err := e.relinkStored(ctx, tx, doc, res.Entry, userID, fx); err != nil {
			return Posting{}, err
		}
		reversed, err := e.poster.CancelJournal(ctx, tx, res.Superseded.ID, userID)
		if err != nil {
			return Posting{}, err
		}
		posting.Reversed = reversed
		fx.Record(audit.Input{
			TableName:   "journal_entries",
			RecordID:    strconv.FormatInt(res.Superseded.ID, 10),
			Action:      audit.ActionUnpost,
			UserID:      userID,
			OldValues:   map[string]any{"status": string(journals.JournalStatusPosted)},
			NewValues:   map[string]any{"status": string(journals.JournalStatusCancelled), "superseded_by": res.Entry.EntryNumber},
			Description: fmt.Sprintf("%s superseded by forced re-post", res.Superseded.EntryNumber),
		})
	}
	entries, err := e.poster.ApplyPostings(ctx, tx, res.Entry, res.Details)
	if err != nil {
		return Posting{}, err
	}
	posting.GLEntries = entries
	fx.posted = true
	fx.Record(audit.Input{
		TableName: "journal_entries",
		RecordID:  strconv.FormatInt(res.Entry.ID, 10),
		Action:    audit.ActionPost,
		UserID:    userID,
		NewValues: map[string]any{
			"entry_number": res.Entry.EntryNumber,
			"type":         string(res.Entry.Type),
			"voucher_no":   res.Entry.VoucherNo,
			"total_debit":  res.Entry.TotalDebit.StringFixed(2),
			"total_credit": res.Entry.TotalCredit.StringFixed(2),
			"lines":        len(res.Details),
		},
		Description: describePosting(res.Entry),
	})
	return posting, nil
}

// relinkStored points the stored invoice or cash document of a forced
// re-post at the new entry. The re-posted amounts must match the stored ones.
func (e *Engine) relinkStored(ctx context.Context, tx Tx, doc journals.Document, entry journals.JournalEntry, userID int64, fx *Effects) error {
	var (
		table    string
		recordID int64
		previous *int64
	)
	switch entry.Type {
	case shared.VoucherSalesInvoice:
		inv, err := tx.LockInvoiceByNumber(ctx, entry.VoucherNo)
		if errors.Is(err, shared.ErrInvoiceNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sameAmounts(inv.Number,
			amountPair{"subtotal", inv.Subtotal, doc.Subtotal},
			amountPair{"tax", inv.TaxAmount, doc.TaxAmount},
			amountPair{"discount", inv.DiscountAmount, doc.DiscountAmount},
			amountPair{"shipping", inv.ShippingAmount, doc.ShippingAmount},
			amountPair{"total", inv.Total, doc.Total},
		); err != nil {
			return err
		}
		if err := tx.SetInvoiceJournal(ctx, inv.ID, entry.ID); err != nil {
			return err
		}
		table, recordID, previous = "invoices", inv.ID, inv.JournalEntryID
	case shared.VoucherReceipt, shared.VoucherPaymentVoucher:
		kind := settlement.CashReceipt
		if entry.Type == shared.VoucherPaymentVoucher {
			kind = settlement.CashPaymentVoucher
		}
		cash, err := tx.LockCashDocumentByNumber(ctx, kind, entry.VoucherNo)
		if errors.Is(err, shared.ErrCashDocumentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sameAmounts(cash.Number, amountPair{"amount", cash.Amount, doc.Amount}); err != nil {
			return err
		}
		if err := tx.SetCashDocumentPosted(ctx, cash.ID, entry.ID, cash.Status); err != nil {
			return err
		}
		table, recordID, previous = "cash_documents", cash.ID, cash.JournalEntryID
	default:
		return nil
	}
	oldValues := map[string]any{"journal_entry_id": nil}
	if previous != nil {
		oldValues["journal_entry_id"] = *previous
	}
	fx.Record(audit.Input{
		TableName:   table,
		RecordID:    strconv.FormatInt(recordID, 10),
		Action:      audit.ActionUpdate,
		UserID:      userID,
		OldValues:   oldValues,
		NewValues:   map[string]any{"journal_entry_id": entry.ID},
		Description: fmt.Sprintf("relinked to %s", entry.EntryNumber),
	})
	return nil
}

type amountPair struct {
	field          string
	stored, posted decimal.Decimal
}

func sameAmounts(number string, pairs ...amountPair) error {
	for _, p := range pairs {
		if !shared.Round2(p.stored).Equal(shared.Round2(p.posted)) {
			return fmt.Errorf("%w: %s stored %s %s, re-post %s", shared.ErrAmountMismatch, number, p.field,
				p.stored.StringFixed(2), p.posted.StringFixed(2))
		}
	}
	return nil
}

// AfterCommit flushes audit entries and invalidates cached balances. Failures
// are logged and never surface to the caller.
func (e *Engine) AfterCommit(ctx context.Context, fx *Effects) {
	if fx == nil {
		return
	}
	if e.audit != nil {
		for _, in := range fx.audits {
			_, _ = e.audit.LogAction(ctx, in)
		}
	}
	if fx.posted && e.cache != nil {
		if err := e.cache.Invalidate(ctx); err != nil {
			e.logger.Warn("invalidate balance cache", slog.Any("error", err))
		}
	}
	fx.audits = nil
	fx.posted = false
}

// CreateSalesInvoice stores an invoice and posts it in one transaction. The
// invoice never exists without its journal.
func (e *Engine) CreateSalesInvoice(ctx context.Context, in InvoiceInput, userID int64) (InvoicePosting, error) {
	doc, err := in.document().Normalize()
	if err != nil {
		return InvoicePosting{}, err
	}
	if err := doc.ValidateAmounts(); err != nil {
		return InvoicePosting{}, err
	}
	if in.PartyID <= 0 {
		return InvoicePosting{}, fmt.Errorf("%w: party required", shared.ErrInvalidDocument)
	}
	if in.Date.IsZero() {
		in.Date = e.now()
		doc.Date = in.Date
	}
	outstanding, status := settlement.Settle(in.Total, decimal.Zero)
	var (
		out InvoicePosting
		fx  Effects
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		out, fx = InvoicePosting{}, Effects{}
		inv, err := tx.InsertInvoice(ctx, settlement.Invoice{
			Number:              doc.VoucherNo,
			PartyID:             in.PartyID,
			Date:                in.Date,
			DueDate:             in.DueDate,
			Currency:            doc.Currency,
			ExchangeRate:        doc.ExchangeRate,
			Subtotal:            shared.Round2(in.Subtotal),
			TaxAmount:           shared.Round2(in.TaxAmount),
			DiscountAmount:      shared.Round2(in.DiscountAmount),
			ShippingAmount:      shared.Round2(in.ShippingAmount),
			Total:               shared.Round2(in.Total),
			PaidAmount:          decimal.Zero,
			OutstandingAmount:   outstanding,
			Status:              status,
			ReceivableAccountID: optionalID(in.ReceivableAccountID),
			Description:         doc.Description,
			CreatedBy:           userID,
		})
		if err != nil {
			return err
		}
		posting, err := e.PostDocumentTx(ctx, tx, doc, userID, journals.PostOptions{RejectDuplicate: true}, &fx)
		if err != nil {
			return err
		}
		if err := tx.SetInvoiceJournal(ctx, inv.ID, posting.Entry.ID); err != nil {
			return err
		}
		inv.JournalEntryID = &posting.Entry.ID
		fx.Record(audit.Input{
			TableName: "invoices",
			RecordID:  strconv.FormatInt(inv.ID, 10),
			Action:    audit.ActionCreate,
			UserID:    userID,
			NewValues: map[string]any{
				"number":   inv.Number,
				"party_id": inv.PartyID,
				"total":    inv.Total.StringFixed(2),
				"status":   string(inv.Status),
			},
		})
		out = InvoicePosting{Invoice: inv, Posting: posting}
		return nil
	})
	e.observePosting(shared.VoucherSalesInvoice, out.Posting, err)
	if err != nil {
		return InvoicePosting{}, err
	}
	e.AfterCommit(ctx, &fx)
	return out, nil
}

// CreateCashDocument stores a receipt or payment voucher, posts it and
// applies the requested allocation, all in one transaction.
func (e *Engine) CreateCashDocument(ctx context.Context, in CashInput, userID int64) (CashPosting, error) {
	if err := in.validate(); err != nil {
		return CashPosting{}, err
	}
	doc, err := in.document().Normalize()
	if err != nil {
		return CashPosting{}, err
	}
	if err := doc.ValidateAmounts(); err != nil {
		return CashPosting{}, err
	}
	if in.Date.IsZero() {
		in.Date = e.now()
		doc.Date = in.Date
	}
	var (
		out CashPosting
		fx  Effects
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		out, fx = CashPosting{}, Effects{}
		cash, err := tx.InsertCashDocument(ctx, settlement.CashDocument{
			Kind:             in.Kind,
			Number:           doc.VoucherNo,
			PartyID:          in.PartyID,
			Date:             in.Date,
			Amount:           shared.Round2(in.Amount),
			Currency:         doc.Currency,
			ExchangeRate:     doc.ExchangeRate,
			CounterAccountID: optionalID(in.CounterAccountID),
			TargetAccountID:  optionalID(in.TargetAccountID),
			Status:           settlement.CashPending,
			Description:      doc.Description,
			CreatedBy:        userID,
		})
		if err != nil {
			return err
		}
		posting, err := e.PostDocumentTx(ctx, tx, doc, userID, journals.PostOptions{RejectDuplicate: true}, &fx)
		if err != nil {
			return err
		}
		if err := tx.SetCashDocumentPosted(ctx, cash.ID, posting.Entry.ID, settlement.CashCompleted); err != nil {
			return err
		}
		cash.JournalEntryID = &posting.Entry.ID
		cash.Status = settlement.CashCompleted
		fx.Record(audit.Input{
			TableName: "cash_documents",
			RecordID:  strconv.FormatInt(cash.ID, 10),
			Action:    audit.ActionCreate,
			UserID:    userID,
			NewValues: map[string]any{
				"kind":     string(cash.Kind),
				"number":   cash.Number,
				"party_id": cash.PartyID,
				"amount":   cash.Amount.StringFixed(2),
				"status":   string(cash.Status),
			},
		})
		out = CashPosting{Document: cash, Posting: posting, Settlement: settlement.Outcome{Unallocated: cash.Amount}}
		if in.Allocation.empty() {
			return nil
		}
		outcome, err := e.allocateTx(ctx, tx, cash.ID, in.Allocation, userID, &fx)
		if err != nil {
			return err
		}
		out.Settlement = outcome
		return nil
	})
	e.observePosting(in.Kind.VoucherType(), out.Posting, err)
	if err != nil {
		return CashPosting{}, err
	}
	e.AfterCommit(ctx, &fx)
	return out, nil
}

// AllocateCash applies an existing cash document to invoices.
func (e *Engine) AllocateCash(ctx context.Context, cashDocID int64, req AllocationRequest, userID int64) (settlement.Outcome, error) {
	if req.empty() {
		return settlement.Outcome{}, fmt.Errorf("%w: no allocations requested", shared.ErrInvalidDocument)
	}
	var (
		out settlement.Outcome
		fx  Effects
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		fx = Effects{}
		out, err = e.allocateTx(ctx, tx, cashDocID, req, userID, &fx)
		return err
	})
	if err != nil {
		return settlement.Outcome{}, err
	}
	e.AfterCommit(ctx, &fx)
	return out, nil
}

func (e *Engine) allocateTx(ctx context.Context, tx Tx, cashDocID int64, req AllocationRequest, userID int64, fx *Effects) (settlement.Outcome, error) {
	var (
		out  settlement.Outcome
		err  error
		mode = "explicit"
	)
	if req.FIFO {
		mode = "fifo"
		out, err = e.alloc.AllocateFIFO(ctx, tx, cashDocID, req.PartyID, userID)
	} else {
		out, err = e.alloc.Allocate(ctx, tx, cashDocID, req.Allocations, userID)
	}
	if err != nil {
		return settlement.Outcome{}, err
	}
	for _, a := range out.Allocations {
		fx.Record(audit.Input{
			TableName: "invoice_allocations",
			RecordID:  strconv.FormatInt(a.ID, 10),
			Action:    audit.ActionAllocate,
			UserID:    userID,
			NewValues: map[string]any{
				"invoice_id":       a.InvoiceID,
				"cash_document_id": a.CashDocumentID,
				"cash_kind":        string(a.CashKind),
				"allocated_amount": a.AllocatedAmount.StringFixed(2),
				"settlement_order": a.SettlementOrder,
			},
			Description: mode + " settlement",
		})
	}
	if e.metrics != nil {
		e.metrics.ObserveAllocation(mode, len(out.Allocations))
	}
	return out, nil
}

// ReverseAllocation retracts an allocation and restores its invoice.
func (e *Engine) ReverseAllocation(ctx context.Context, allocationID, userID int64, reason string) (settlement.Allocation, error) {
	var (
		out settlement.Allocation
		fx  Effects
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		fx = Effects{}
		alloc, inv, err := e.alloc.Reverse(ctx, tx, allocationID, userID, reason)
		if err != nil {
			return err
		}
		out = alloc
		fx.Record(audit.Input{
			TableName:   "invoice_allocations",
			RecordID:    strconv.FormatInt(alloc.ID, 10),
			Action:      audit.ActionReverse,
			UserID:      userID,
			OldValues:   map[string]any{"is_reversed": false},
			NewValues:   map[string]any{"is_reversed": true, "reversal_reason": alloc.ReversalReason, "invoice_status": string(inv.Status)},
			Description: strings.TrimSpace(reason),
		})
		return nil
	})
	if err != nil {
		return settlement.Allocation{}, err
	}
	e.AfterCommit(ctx, &fx)
	return out, nil
}

// CancelGLEntry soft-voids one GL row and reverses its balance effect.
func (e *Engine) CancelGLEntry(ctx context.Context, glEntryID, userID int64) (gl.Entry, error) {
	var (
		out gl.Entry
		fx  Effects
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		fx = Effects{}
		out, err = e.poster.Cancel(ctx, tx, glEntryID, userID)
		if err != nil {
			return err
		}
		fx.posted = true
		fx.Record(audit.Input{
			TableName: "gl_entries",
			RecordID:  strconv.FormatInt(out.ID, 10),
			Action:    audit.ActionCancel,
			UserID:    userID,
			OldValues: map[string]any{"is_cancelled": false},
			NewValues: map[string]any{"is_cancelled": true, "account_id": out.AccountID, "voucher_no": out.VoucherNo},
		})
		return nil
	})
	if err != nil {
		return gl.Entry{}, err
	}
	e.AfterCommit(ctx, &fx)
	return out, nil
}

// GetAccountBalance returns the running balance of an account.
func (e *Engine) GetAccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	load := func(ctx context.Context) (decimal.Decimal, error) {
		return e.store.AccountBalance(ctx, accountID)
	}
	if e.cache == nil {
		return load(ctx)
	}
	bal, err := e.cache.Balance(ctx, accountID, load)
	if err != nil && !errors.Is(err, shared.ErrAccountNotFound) {
		e.logger.Warn("balance cache unavailable", slog.Int64("account_id", accountID), slog.Any("error", err))
		return load(ctx)
	}
	return bal, err
}

// CheckIntegrity compares stored balances with live GL sums.
func (e *Engine) CheckIntegrity(ctx context.Context) ([]gl.Drift, error) {
	accs, sums, err := e.store.BalanceSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return gl.CheckConsistency(accs, sums), nil
}

func (e *Engine) observePosting(t shared.VoucherType, p Posting, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "created"
	switch {
	case err != nil:
		outcome = "failed"
	case p.Superseded != nil:
		outcome = "superseded"
	case !p.Created:
		outcome = "duplicate"
	}
	e.metrics.ObservePosting(string(t), outcome)
}

func describePosting(entry journals.JournalEntry) string {
	return fmt.Sprintf("%s %s %s", entry.EntryNumber, entry.Type, entry.VoucherNo)
}
