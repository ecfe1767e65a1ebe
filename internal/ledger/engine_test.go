package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

const userID = int64(9)

type recordedAudit struct {
	mu      sync.Mutex
	entries []audit.Input
}

func (r *recordedAudit) LogAction(_ context.Context, in audit.Input) (audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, in)
	return audit.Entry{TableName: in.TableName, Action: in.Action}, nil
}

func (r *recordedAudit) actions(table string) []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Action
	for _, e := range r.entries {
		if e.TableName == table {
			out = append(out, e.Action)
		}
	}
	return out
}

type chart struct {
	cash, receivable, payable, tax, revenue, discount accounts.Account
}

type fixture struct {
	store  *memstore.Store
	engine *ledger.Engine
	audit  *recordedAudit
	chart  chart
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(v string) time.Time {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		panic(err)
	}
	return t
}

func newFixture(t *testing.T, withMapping bool) *fixture {
	t.Helper()
	store := memstore.New()
	c := chart{
		cash:       store.AddAccount("1101", "Cash", accounts.AccountTypeAsset),
		receivable: store.AddAccount("1201", "Accounts Receivable", accounts.AccountTypeAsset),
		payable:    store.AddAccount("2101", "Accounts Payable", accounts.AccountTypeLiability),
		tax:        store.AddAccount("2201", "Output VAT", accounts.AccountTypeLiability),
		revenue:    store.AddAccount("4101", "Freight Revenue", accounts.AccountTypeRevenue),
		discount: store.AddAccount("4102", "Sales Discount", accounts.AccountTypeRevenue, func(a *accounts.Account) {
			a.Nature = accounts.NatureDebit
		}),
	}
	if withMapping {
		store.AddMapping(mappings.Mapping{
			Name:     "Default",
			IsActive: true,
			Bindings: map[mappings.Role]int64{
				mappings.RoleCash:               c.cash.ID,
				mappings.RoleAccountsReceivable: c.receivable.ID,
				mappings.RoleAccountsPayable:    c.payable.ID,
				mappings.RoleSalesTax:           c.tax.ID,
				mappings.RoleSalesRevenue:       c.revenue.ID,
				mappings.RoleDiscount:           c.discount.ID,
			},
		})
	}
	rec := &recordedAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return day("2024-03-01") }
	engine := ledger.NewEngine(store, logger, ledger.WithAudit(rec), ledger.WithClock(clock))
	return &fixture{store: store, engine: engine, audit: rec, chart: c}
}

func (f *fixture) balance(t *testing.T, acc accounts.Account) decimal.Decimal {
	t.Helper()
	got, err := f.store.Account(acc.ID)
	require.NoError(t, err)
	return got.Balance
}

func (f *fixture) invoice(t *testing.T, number string, party int64, date string, total string) settlement.Invoice {
	t.Helper()
	res, err := f.engine.CreateSalesInvoice(context.Background(), ledger.InvoiceInput{
		Number:   number,
		PartyID:  party,
		Date:     day(date),
		Subtotal: dec(total),
		Total:    dec(total),
	}, userID)
	require.NoError(t, err)
	return res.Invoice
}

func TestCreateSalesInvoicePostsBalancedEntry(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.engine.CreateSalesInvoice(context.Background(), ledger.InvoiceInput{
		Number:         "SI-0001",
		PartyID:        7,
		Date:           day("2024-02-15"),
		Subtotal:       dec("1000"),
		DiscountAmount: dec("50"),
		TaxAmount:      dec("150"),
		Total:          dec("1100"),
	}, userID)
	require.NoError(t, err)

	require.True(t, res.Posting.Created)
	require.Equal(t, "SIN-000001", res.Posting.Entry.EntryNumber)
	require.Len(t, res.Posting.Details, 4)
	require.Len(t, res.Posting.GLEntries, 4)
	require.True(t, res.Posting.Entry.TotalDebit.Equal(dec("1150")))
	require.True(t, res.Posting.Entry.TotalCredit.Equal(dec("1150")))

	require.Equal(t, settlement.InvoiceUnpaid, res.Invoice.Status)
	require.True(t, res.Invoice.OutstandingAmount.Equal(dec("1100")))
	require.NotNil(t, res.Invoice.JournalEntryID)
	require.Equal(t, res.Posting.Entry.ID, *res.Invoice.JournalEntryID)

	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("1100")))
	require.True(t, f.balance(t, f.chart.discount).Equal(dec("50")))
	require.True(t, f.balance(t, f.chart.revenue).Equal(dec("1000")))
	require.True(t, f.balance(t, f.chart.tax).Equal(dec("150")))

	require.Equal(t, []audit.Action{audit.ActionPost}, f.audit.actions("journal_entries"))
	require.Equal(t, []audit.Action{audit.ActionCreate}, f.audit.actions("invoices"))

	drifts, err := f.engine.CheckIntegrity(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestCreateSalesInvoiceShippingFallsBackToRevenue(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.engine.CreateSalesInvoice(context.Background(), ledger.InvoiceInput{
		Number:         "SI-0002",
		PartyID:        7,
		Subtotal:       dec("800"),
		ShippingAmount: dec("200"),
		Total:          dec("800"),
	}, userID)
	require.NoError(t, err)
	require.Len(t, res.Posting.Details, 3)
	require.True(t, f.balance(t, f.chart.revenue).Equal(dec("800")))
}

func TestCreateSalesInvoiceRejectsAmountMismatch(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.engine.CreateSalesInvoice(context.Background(), ledger.InvoiceInput{
		Number:    "SI-0003",
		PartyID:   7,
		Subtotal:  dec("1000"),
		TaxAmount: dec("100"),
		Total:     dec("1000"),
	}, userID)
	require.ErrorIs(t, err, shared.ErrAmountMismatch)
	require.Zero(t, f.store.InvoiceCount())
	require.Empty(t, f.store.Journals())
}

func TestCreateSalesInvoiceWithoutMappingIsConfigurationError(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.engine.CreateSalesInvoice(context.Background(), ledger.InvoiceInput{
		Number:   "SI-0004",
		PartyID:  7,
		Subtotal: dec("100"),
		Total:    dec("100"),
	}, userID)
	require.ErrorIs(t, err, shared.ErrConfiguration)
	var cfg *shared.ConfigurationError
	require.True(t, errors.As(err, &cfg))
	require.Contains(t, cfg.Missing, string(mappings.RoleAccountsReceivable))
	require.Zero(t, f.store.InvoiceCount())
	require.Empty(t, f.audit.actions("invoices"))
}

func TestCreateSalesInvoiceDuplicateNumberIsRejected(t *testing.T) {
	f := newFixture(t, true)
	f.invoice(t, "SI-0005", 7, "2024-01-01", "100")

	_, err := f.engine.CreateSalesInvoice(context.Background(), ledger.InvoiceInput{
		Number:   "SI-0005",
		PartyID:  7,
		Subtotal: dec("100"),
		Total:    dec("100"),
	}, userID)
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.Equal(t, 1, f.store.InvoiceCount())
	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("100")))
}

func receiptDoc(no string, amount string) journals.Document {
	return journals.Document{
		Type:      shared.VoucherReceipt,
		VoucherNo: no,
		Date:      day("2024-02-20"),
		Amount:    dec(amount),
	}
}

func TestPostDocumentIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.engine.PostDocument(ctx, receiptDoc("RC-1", "250"), userID, journals.PostOptions{})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := f.engine.PostDocument(ctx, receiptDoc("RC-1", "250"), userID, journals.PostOptions{})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Entry.ID, second.Entry.ID)
	require.Len(t, second.Details, 2)

	require.Len(t, f.store.Journals(), 1)
	require.Len(t, f.store.GLEntries(), 2)
	require.True(t, f.balance(t, f.chart.cash).Equal(dec("250")))
	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("-250")))

	_, err = f.engine.PostDocument(ctx, receiptDoc("RC-1", "250"), userID, journals.PostOptions{RejectDuplicate: true})
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
}

func TestPostDocumentForceSupersedesPreviousEntry(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.engine.PostDocument(ctx, receiptDoc("RC-2", "250"), userID, journals.PostOptions{})
	require.NoError(t, err)

	forced, err := f.engine.PostDocument(ctx, receiptDoc("RC-2", "300"), userID, journals.PostOptions{Force: true})
	require.NoError(t, err)
	require.True(t, forced.Created)
	require.NotNil(t, forced.Superseded)
	require.Equal(t, first.Entry.ID, forced.Superseded.ID)
	require.Len(t, forced.Reversed, 2)
	require.Equal(t, "RCP-000002", forced.Entry.EntryNumber)

	journalsByID := map[int64]journals.JournalStatus{}
	for _, j := range f.store.Journals() {
		journalsByID[j.ID] = j.Status
	}
	require.Equal(t, journals.JournalStatusCancelled, journalsByID[first.Entry.ID])
	require.Equal(t, journals.JournalStatusPosted, journalsByID[forced.Entry.ID])

	require.True(t, f.balance(t, f.chart.cash).Equal(dec("300")))
	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("-300")))
	require.Contains(t, f.audit.actions("journal_entries"), audit.ActionUnpost)

	drifts, err := f.engine.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestForcedInvoiceRepostMustKeepStoredAmounts(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	inv := f.invoice(t, "SI-F", 7, "2024-02-01", "100")

	_, err := f.engine.PostDocument(ctx, journals.Document{
		Type:      shared.VoucherSalesInvoice,
		VoucherNo: "SI-F",
		Date:      day("2024-02-01"),
		Subtotal:  dec("250"),
		Total:     dec("250"),
	}, userID, journals.PostOptions{Force: true})
	require.ErrorIs(t, err, shared.ErrAmountMismatch)

	stored := f.store.Invoice(inv.ID)
	require.Equal(t, *inv.JournalEntryID, *stored.JournalEntryID)
	require.True(t, stored.Total.Equal(dec("100")))
	require.Len(t, f.store.Journals(), 1)
	require.Equal(t, journals.JournalStatusPosted, f.store.Journals()[0].Status)
	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("100")))
}

func TestForcedInvoiceRepostRelinksInvoice(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	inv := f.invoice(t, "SI-G", 7, "2024-02-01", "100")

	forced, err := f.engine.PostDocument(ctx, journals.Document{
		Type:        shared.VoucherSalesInvoice,
		VoucherNo:   "SI-G",
		Date:        day("2024-02-03"),
		Description: "corrected date",
		Subtotal:    dec("100"),
		Total:       dec("100"),
	}, userID, journals.PostOptions{Force: true})
	require.NoError(t, err)
	require.NotNil(t, forced.Superseded)
	require.Equal(t, *inv.JournalEntryID, forced.Superseded.ID)

	stored := f.store.Invoice(inv.ID)
	require.NotNil(t, stored.JournalEntryID)
	require.Equal(t, forced.Entry.ID, *stored.JournalEntryID)
	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("100")))
	require.Contains(t, f.audit.actions("invoices"), audit.ActionUpdate)

	drifts, err := f.engine.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestForcedReceiptRepostChecksStoredCashDocument(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	res, err := f.engine.CreateCashDocument(ctx, ledger.CashInput{
		Kind:    settlement.CashReceipt,
		Number:  "RC-F",
		PartyID: 7,
		Date:    day("2024-02-20"),
		Amount:  dec("250"),
	}, userID)
	require.NoError(t, err)

	_, err = f.engine.PostDocument(ctx, receiptDoc("RC-F", "300"), userID, journals.PostOptions{Force: true})
	require.ErrorIs(t, err, shared.ErrAmountMismatch)
	require.True(t, f.balance(t, f.chart.cash).Equal(dec("250")))

	forced, err := f.engine.PostDocument(ctx, receiptDoc("RC-F", "250"), userID, journals.PostOptions{Force: true})
	require.NoError(t, err)
	require.Equal(t, res.Posting.Entry.ID, forced.Superseded.ID)

	docs := f.store.CashDocuments()
	require.Len(t, docs, 1)
	require.Equal(t, forced.Entry.ID, *docs[0].JournalEntryID)
	require.Equal(t, settlement.CashCompleted, docs[0].Status)
	require.True(t, f.balance(t, f.chart.cash).Equal(dec("250")))
}

// deadlockingStore fails the first commits with a deadlock and retries the
// whole transaction, as the PostgreSQL store does.
type deadlockingStore struct {
	*memstore.Store
	deadlocks int
}

func (d *deadlockingStore) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = d.Store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if d.deadlocks > 0 {
				d.deadlocks--
				return &pgconn.PgError{Code: "40P01"}
			}
			return nil
		})
		if err == nil || !db.IsRetryable(err) {
			return err
		}
	}
	return err
}

func TestRetriedTransactionsAuditOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	store := &deadlockingStore{Store: f.store}
	engine := ledger.NewEngine(store, nil, ledger.WithAudit(f.audit), ledger.WithClock(func() time.Time { return day("2024-03-01") }))

	store.deadlocks = 1
	inv, err := engine.CreateSalesInvoice(ctx, ledger.InvoiceInput{
		Number:   "SI-R",
		PartyID:  7,
		Date:     day("2024-02-01"),
		Subtotal: dec("400"),
		Total:    dec("400"),
	}, userID)
	require.NoError(t, err)
	require.Len(t, f.store.Journals(), 1)
	require.Equal(t, inv.Posting.Entry.ID, f.store.Journals()[0].ID)
	require.Equal(t, []audit.Action{audit.ActionPost}, f.audit.actions("journal_entries"))
	require.Equal(t, []audit.Action{audit.ActionCreate}, f.audit.actions("invoices"))

	store.deadlocks = 2
	_, err = engine.CreateCashDocument(ctx, ledger.CashInput{
		Kind:       settlement.CashReceipt,
		Number:     "RC-R",
		PartyID:    7,
		Date:       day("2024-02-20"),
		Amount:     dec("150"),
		Allocation: ledger.AllocationRequest{FIFO: true},
	}, userID)
	require.NoError(t, err)
	require.Len(t, f.store.Journals(), 2)
	require.Len(t, f.audit.actions("journal_entries"), 2)
	require.Equal(t, []audit.Action{audit.ActionCreate}, f.audit.actions("cash_documents"))
	require.Equal(t, []audit.Action{audit.ActionAllocate}, f.audit.actions("invoice_allocations"))
	require.True(t, f.store.Invoice(inv.Invoice.ID).OutstandingAmount.Equal(dec("250")))
}

func TestPostingRollsBackWhenGLWriteFails(t *testing.T) {
	f := newFixture(t, true)
	boom := errors.New("disk full")
	f.store.FailOn("InsertGLEntry", boom)

	_, err := f.engine.PostDocument(context.Background(), receiptDoc("RC-3", "100"), userID, journals.PostOptions{})
	require.ErrorIs(t, err, boom)
	require.Empty(t, f.store.Journals())
	require.Empty(t, f.store.GLEntries())
	require.True(t, f.balance(t, f.chart.cash).IsZero())
	require.Empty(t, f.audit.actions("journal_entries"))
}

func TestPostDocumentRejectsGroupAccount(t *testing.T) {
	f := newFixture(t, true)
	group := f.store.AddAccount("1000", "Current Assets", accounts.AccountTypeAsset, func(a *accounts.Account) { a.IsGroup = true })

	doc := receiptDoc("RC-4", "100")
	doc.CounterAccountID = group.ID
	_, err := f.engine.PostDocument(context.Background(), doc, userID, journals.PostOptions{})
	require.ErrorIs(t, err, shared.ErrAccountIsGroup)
	require.Empty(t, f.store.Journals())
}

func TestCreateCashDocumentAllocatesFIFO(t *testing.T) {
	f := newFixture(t, true)
	older := f.invoice(t, "SI-0100", 7, "2024-01-10", "300")
	newer := f.invoice(t, "SI-0101", 7, "2024-02-10", "400")
	f.invoice(t, "SI-0102", 8, "2024-01-01", "900")

	res, err := f.engine.CreateCashDocument(context.Background(), ledger.CashInput{
		Kind:       settlement.CashReceipt,
		Number:     "RC-100",
		PartyID:    7,
		Date:       day("2024-02-20"),
		Amount:     dec("500"),
		Allocation: ledger.AllocationRequest{FIFO: true},
	}, userID)
	require.NoError(t, err)
	require.Equal(t, settlement.CashCompleted, res.Document.Status)
	require.True(t, res.Posting.Created)

	allocs := res.Settlement.Allocations
	require.Len(t, allocs, 2)
	require.Equal(t, older.ID, allocs[0].InvoiceID)
	require.True(t, allocs[0].AllocatedAmount.Equal(dec("300")))
	require.Equal(t, newer.ID, allocs[1].InvoiceID)
	require.True(t, allocs[1].AllocatedAmount.Equal(dec("200")))
	require.True(t, res.Settlement.Unallocated.IsZero())

	require.Equal(t, settlement.InvoicePaid, f.store.Invoice(older.ID).Status)
	updated := f.store.Invoice(newer.ID)
	require.Equal(t, settlement.InvoicePartiallyPaid, updated.Status)
	require.True(t, updated.OutstandingAmount.Equal(dec("200")))

	require.True(t, f.balance(t, f.chart.cash).Equal(dec("500")))
	require.True(t, f.balance(t, f.chart.receivable).Equal(dec("1100")))
	require.Len(t, f.audit.actions("invoice_allocations"), 2)
}

func TestAllocateCashOverflowLeavesNoRows(t *testing.T) {
	f := newFixture(t, true)
	inv := f.invoice(t, "SI-0200", 7, "2024-01-10", "100")
	cash, err := f.engine.CreateCashDocument(context.Background(), ledger.CashInput{
		Kind:    settlement.CashReceipt,
		Number:  "RC-200",
		PartyID: 7,
		Amount:  dec("500"),
	}, userID)
	require.NoError(t, err)

	_, err = f.engine.AllocateCash(context.Background(), cash.Document.ID, ledger.AllocationRequest{
		Allocations: []settlement.Request{{InvoiceID: inv.ID, Amount: dec("150")}},
	}, userID)
	require.ErrorIs(t, err, shared.ErrAllocationOverflow)
	require.Empty(t, f.store.Allocations())
	require.Equal(t, settlement.InvoiceUnpaid, f.store.Invoice(inv.ID).Status)
}

func TestAllocateCashRejectsForeignParty(t *testing.T) {
	f := newFixture(t, true)
	inv := f.invoice(t, "SI-0300", 8, "2024-01-10", "100")
	cash, err := f.engine.CreateCashDocument(context.Background(), ledger.CashInput{
		Kind:    settlement.CashReceipt,
		Number:  "RC-300",
		PartyID: 7,
		Amount:  dec("100"),
	}, userID)
	require.NoError(t, err)

	_, err = f.engine.AllocateCash(context.Background(), cash.Document.ID, ledger.AllocationRequest{
		Allocations: []settlement.Request{{InvoiceID: inv.ID, Amount: dec("50")}},
	}, userID)
	require.ErrorIs(t, err, shared.ErrInvalidDocument)
}

func TestReverseAllocationRestoresInvoice(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	inv := f.invoice(t, "SI-0400", 7, "2024-01-10", "100")
	cash, err := f.engine.CreateCashDocument(ctx, ledger.CashInput{
		Kind:    settlement.CashReceipt,
		Number:  "RC-400",
		PartyID: 7,
		Amount:  dec("100"),
		Allocation: ledger.AllocationRequest{
			Allocations: []settlement.Request{{InvoiceID: inv.ID, Amount: dec("100")}},
		},
	}, userID)
	require.NoError(t, err)
	require.Equal(t, settlement.InvoicePaid, f.store.Invoice(inv.ID).Status)
	allocID := cash.Settlement.Allocations[0].ID

	_, err = f.engine.ReverseAllocation(ctx, allocID, userID, " ")
	require.ErrorIs(t, err, shared.ErrInvalidDocument)

	reversed, err := f.engine.ReverseAllocation(ctx, allocID, userID, "bounced transfer")
	require.NoError(t, err)
	require.True(t, reversed.IsReversed)
	require.Equal(t, "bounced transfer", reversed.ReversalReason)

	restored := f.store.Invoice(inv.ID)
	require.Equal(t, settlement.InvoiceUnpaid, restored.Status)
	require.True(t, restored.OutstandingAmount.Equal(dec("100")))
	require.True(t, restored.PaidAmount.IsZero())
	require.Len(t, f.store.Allocations(), 1)

	_, err = f.engine.ReverseAllocation(ctx, allocID, userID, "again")
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)

	again, err := f.engine.AllocateCash(ctx, cash.Document.ID, ledger.AllocationRequest{FIFO: true}, userID)
	require.NoError(t, err)
	require.Len(t, again.Allocations, 1)
	require.Equal(t, 2, again.Allocations[0].SettlementOrder)
}

func TestCancelGLEntryReversesBalance(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	posted, err := f.engine.PostDocument(ctx, receiptDoc("RC-500", "80"), userID, journals.PostOptions{})
	require.NoError(t, err)

	var cashRow int64
	for _, e := range posted.GLEntries {
		if e.AccountID == f.chart.cash.ID {
			cashRow = e.ID
		}
	}
	require.NotZero(t, cashRow)

	cancelled, err := f.engine.CancelGLEntry(ctx, cashRow, userID)
	require.NoError(t, err)
	require.True(t, cancelled.IsCancelled)
	require.True(t, f.balance(t, f.chart.cash).IsZero())

	_, err = f.engine.CancelGLEntry(ctx, cashRow, userID)
	require.ErrorIs(t, err, shared.ErrAlreadyCancelled)
	require.Equal(t, []audit.Action{audit.ActionCancel}, f.audit.actions("gl_entries"))
}

func TestCheckIntegrityReportsDrift(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.engine.PostDocument(ctx, receiptDoc("RC-600", "75"), userID, journals.PostOptions{})
	require.NoError(t, err)

	f.store.SetBalance(f.chart.cash.ID, dec("70"))

	drifts, err := f.engine.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, f.chart.cash.ID, drifts[0].AccountID)
	require.True(t, drifts[0].Expected.Equal(dec("75")))
}

func TestGetAccountBalanceIsInvalidatedAfterPosting(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	cash := store.AddAccount("1101", "Cash", accounts.AccountTypeAsset)
	other := store.AddAccount("3101", "Owner Equity", accounts.AccountTypeEquity)
	balances := accounts.NewBalanceCache(cache.NewVersioned(client, "ledger:balances", time.Minute))
	engine := ledger.NewEngine(store, nil, ledger.WithCache(balances))
	ctx := context.Background()

	bal, err := engine.GetAccountBalance(ctx, cash.ID)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	_, err = engine.PostDocument(ctx, journals.Document{
		Type:      shared.VoucherProvision,
		VoucherNo: "OPEN-1",
		Lines: []journals.Line{
			{AccountID: cash.ID, Debit: dec("40"), Credit: decimal.Zero},
			{AccountID: other.ID, Debit: decimal.Zero, Credit: dec("40")},
		},
	}, userID, journals.PostOptions{})
	require.NoError(t, err)

	bal, err = engine.GetAccountBalance(ctx, cash.ID)
	require.NoError(t, err)
	require.True(t, bal.Equal(dec("40")))
}
