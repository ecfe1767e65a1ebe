package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

// errActiveMappingExists mirrors the partial unique index on active mappings.
var errActiveMappingExists = errors.New("memstore: uq_account_mappings_active violated")

// tx implements every repository interface against a private state copy.
// Locks are no-ops because transactions are already serialized.
type tx struct {
	st    *state
	fail  map[string]error
	now   func() time.Time
	locks []int64
}

func (t *tx) check(method string) error {
	return t.fail[method]
}

// ---- accounts ----

func (t *tx) InsertAccount(_ context.Context, in accounts.CreateInput, nature accounts.Nature, _ int64) (accounts.Account, error) {
	if err := t.check("InsertAccount"); err != nil {
		return accounts.Account{}, err
	}
	for _, a := range t.st.accounts {
		if a.Code == in.Code {
			return accounts.Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, in.Code)
		}
	}
	acc := accounts.Account{
		ID:        t.st.nextID(),
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		Nature:    nature,
		Balance:   decimal.Zero,
		IsGroup:   in.IsGroup,
		ParentID:  in.ParentID,
		IsActive:  true,
		CreatedAt: t.now(),
		UpdatedAt: t.now(),
	}
	t.st.accounts[acc.ID] = acc
	return acc, nil
}

func (t *tx) GetAccount(_ context.Context, id int64) (accounts.Account, error) {
	acc, ok := t.st.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return acc, nil
}

func (t *tx) LockAccount(ctx context.Context, id int64) (accounts.Account, error) {
	if err := t.check("LockAccount"); err != nil {
		return accounts.Account{}, err
	}
	t.locks = append(t.locks, id)
	return t.GetAccount(ctx, id)
}

func (t *tx) UpdateAccountBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	if err := t.check("UpdateAccountBalance"); err != nil {
		return err
	}
	acc, ok := t.st.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	acc.Balance = balance
	acc.UpdatedAt = t.now()
	t.st.accounts[id] = acc
	return nil
}

func (t *tx) UpdateAccountParent(_ context.Context, id int64, parentID *int64) error {
	acc, ok := t.st.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	acc.ParentID = parentID
	t.st.accounts[id] = acc
	return nil
}

func (t *tx) CountChildAccounts(_ context.Context, id int64) (int, error) {
	n := 0
	for _, a := range t.st.accounts {
		if a.ParentID != nil && *a.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (t *tx) CountAccountGLEntries(_ context.Context, id int64) (int, error) {
	n := 0
	for _, e := range t.st.glEntries {
		if e.AccountID == id {
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := t.st.accounts[id]; !ok {
		return shared.ErrAccountNotFound
	}
	if t.accountReferenced(id) {
		return fmt.Errorf("%w: referenced by ledger documents", shared.ErrAccountInUse)
	}
	delete(t.st.accounts, id)
	return nil
}

// accountReferenced mirrors the foreign keys that point at accounts.
func (t *tx) accountReferenced(id int64) bool {
	refers := func(ptr *int64) bool { return ptr != nil && *ptr == id }
	for _, a := range t.st.accounts {
		if refers(a.ParentID) {
			return true
		}
	}
	for _, lines := range t.st.details {
		for _, d := range lines {
			if d.AccountID == id {
				return true
			}
		}
	}
	for _, e := range t.st.glEntries {
		if e.AccountID == id {
			return true
		}
	}
	for _, inv := range t.st.invoices {
		if refers(inv.ReceivableAccountID) {
			return true
		}
	}
	for _, c := range t.st.cash {
		if refers(c.CounterAccountID) || refers(c.TargetAccountID) {
			return true
		}
	}
	for _, p := range t.st.provisions {
		if p.MainAccountID == id || p.ProvisionAccountID == id || p.ExpenseAccountID == id {
			return true
		}
	}
	return false
}

// ---- mappings ----

func (t *tx) LockMappings(context.Context) error { return nil }

func (t *tx) GetActiveMapping(context.Context) (*mappings.Mapping, error) {
	if err := t.check("GetActiveMapping"); err != nil {
		return nil, err
	}
	for _, m := range t.st.mappings {
		if m.IsActive {
			m.Bindings = maps.Clone(m.Bindings)
			return &m, nil
		}
	}
	return nil, nil
}

func (t *tx) GetMapping(_ context.Context, id int64) (mappings.Mapping, error) {
	m, ok := t.st.mappings[id]
	if !ok {
		return mappings.Mapping{}, shared.ErrMappingNotFound
	}
	m.Bindings = maps.Clone(m.Bindings)
	return m, nil
}

func (t *tx) ensureSingleActive(id int64) error {
	for _, m := range t.st.mappings {
		if m.IsActive && m.ID != id {
			return errActiveMappingExists
		}
	}
	return nil
}

func (t *tx) InsertMapping(_ context.Context, m mappings.Mapping) (mappings.Mapping, error) {
	if m.IsActive {
		if err := t.ensureSingleActive(0); err != nil {
			return mappings.Mapping{}, err
		}
	}
	m.ID = t.st.nextID()
	m.Bindings = maps.Clone(m.Bindings)
	m.CreatedAt = t.now()
	m.UpdatedAt = m.CreatedAt
	t.st.mappings[m.ID] = m
	return m, nil
}

func (t *tx) UpdateMapping(_ context.Context, m mappings.Mapping) (mappings.Mapping, error) {
	if _, ok := t.st.mappings[m.ID]; !ok {
		return mappings.Mapping{}, shared.ErrMappingNotFound
	}
	if m.IsActive {
		if err := t.ensureSingleActive(m.ID); err != nil {
			return mappings.Mapping{}, err
		}
	}
	m.Bindings = maps.Clone(m.Bindings)
	m.UpdatedAt = t.now()
	t.st.mappings[m.ID] = m
	return m, nil
}

func (t *tx) DeactivateMappings(_ context.Context, userID int64) error {
	for id, m := range t.st.mappings {
		if m.IsActive {
			m.IsActive = false
			m.UpdatedBy = userID
			t.st.mappings[id] = m
		}
	}
	return nil
}

func (t *tx) SetMappingActive(_ context.Context, id int64, userID int64) error {
	m, ok := t.st.mappings[id]
	if !ok {
		return shared.ErrMappingNotFound
	}
	if err := t.ensureSingleActive(id); err != nil {
		return err
	}
	m.IsActive = true
	m.UpdatedBy = userID
	t.st.mappings[id] = m
	return nil
}

func (t *tx) ListPostableAccounts(context.Context) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range sortedValues(t.st.accounts, func(a accounts.Account) int64 { return a.ID }) {
		if a.IsActive && !a.IsGroup {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ---- journals ----

func (t *tx) AdvisoryLock(context.Context, string) error { return nil }

func (t *tx) FindPostedJournal(_ context.Context, voucherType shared.VoucherType, voucherNo string) (*journals.JournalEntry, error) {
	for _, j := range t.st.journals {
		if j.Type == voucherType && j.VoucherNo == voucherNo && j.Status == journals.JournalStatusPosted {
			return &j, nil
		}
	}
	return nil, nil
}

func (t *tx) MaxEntrySuffix(_ context.Context, prefix string) (int64, error) {
	var highest int64
	for _, j := range t.st.journals {
		suffix, ok := strings.CutPrefix(j.EntryNumber, prefix+"-")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (t *tx) InsertJournal(ctx context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	if err := t.check("InsertJournal"); err != nil {
		return journals.JournalEntry{}, err
	}
	if e.Status == journals.JournalStatusPosted {
		if dup, _ := t.FindPostedJournal(ctx, e.Type, e.VoucherNo); dup != nil {
			return journals.JournalEntry{}, shared.ErrDuplicatePosting
		}
	}
	e.ID = t.st.nextID()
	e.CreatedAt = t.now()
	e.UpdatedAt = e.CreatedAt
	t.st.journals[e.ID] = e
	return e, nil
}

func (t *tx) InsertJournalDetails(_ context.Context, entryID int64, lines []journals.Line) ([]journals.Detail, error) {
	if err := t.check("InsertJournalDetails"); err != nil {
		return nil, err
	}
	details := make([]journals.Detail, 0, len(lines))
	for _, l := range lines {
		if _, ok := t.st.accounts[l.AccountID]; !ok {
			return nil, shared.ErrAccountNotFound
		}
		details = append(details, journals.Detail{
			ID:             t.st.nextID(),
			JournalEntryID: entryID,
			AccountID:      l.AccountID,
			Debit:          l.Debit,
			Credit:         l.Credit,
			Description:    l.Description,
		})
	}
	t.st.details[entryID] = append(t.st.details[entryID], details...)
	return details, nil
}

func (t *tx) GetJournal(_ context.Context, id int64) (journals.JournalEntry, error) {
	j, ok := t.st.journals[id]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return j, nil
}

func (t *tx) ListJournalDetails(_ context.Context, entryID int64) ([]journals.Detail, error) {
	return append([]journals.Detail(nil), t.st.details[entryID]...), nil
}

func (t *tx) UpdateJournalStatus(_ context.Context, id int64, status journals.JournalStatus) error {
	j, ok := t.st.journals[id]
	if !ok {
		return shared.ErrJournalNotFound
	}
	j.Status = status
	j.UpdatedAt = t.now()
	t.st.journals[id] = j
	return nil
}

// ---- gl ----

func (t *tx) InsertGLEntry(_ context.Context, e gl.Entry) (gl.Entry, error) {
	if err := t.check("InsertGLEntry"); err != nil {
		return gl.Entry{}, err
	}
	e.ID = t.st.nextID()
	e.CreatedAt = t.now()
	t.st.glEntries[e.ID] = e
	return e, nil
}

func (t *tx) LockGLEntry(_ context.Context, id int64) (gl.Entry, error) {
	e, ok := t.st.glEntries[id]
	if !ok {
		return gl.Entry{}, shared.ErrGLEntryNotFound
	}
	return e, nil
}

func (t *tx) MarkGLEntryCancelled(_ context.Context, id, userID int64, at time.Time) error {
	e, ok := t.st.glEntries[id]
	if !ok {
		return shared.ErrGLEntryNotFound
	}
	if e.IsCancelled {
		return shared.ErrAlreadyCancelled
	}
	e.IsCancelled = true
	e.CancelledAt = &at
	e.CancelledBy = &userID
	t.st.glEntries[id] = e
	return nil
}

func (t *tx) ListLiveGLEntries(_ context.Context, journalEntryID int64) ([]gl.Entry, error) {
	var out []gl.Entry
	for _, e := range sortedValues(t.st.glEntries, func(e gl.Entry) int64 { return e.ID }) {
		if e.JournalEntryID == journalEntryID && !e.IsCancelled {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---- settlement ----

func (t *tx) InsertInvoice(_ context.Context, inv settlement.Invoice) (settlement.Invoice, error) {
	if err := t.check("InsertInvoice"); err != nil {
		return settlement.Invoice{}, err
	}
	for _, other := range t.st.invoices {
		if other.Number == inv.Number {
			return settlement.Invoice{}, fmt.Errorf("%w: invoice %s", shared.ErrDuplicatePosting, inv.Number)
		}
	}
	inv.ID = t.st.nextID()
	inv.CreatedAt = t.now()
	inv.UpdatedAt = inv.CreatedAt
	t.st.invoices[inv.ID] = inv
	return inv, nil
}

func (t *tx) SetInvoiceJournal(_ context.Context, id, journalEntryID int64) error {
	inv, ok := t.st.invoices[id]
	if !ok {
		return shared.ErrInvoiceNotFound
	}
	inv.JournalEntryID = &journalEntryID
	t.st.invoices[id] = inv
	return nil
}

func (t *tx) LockInvoiceByNumber(_ context.Context, number string) (settlement.Invoice, error) {
	for _, inv := range t.st.invoices {
		if inv.Number == number {
			return inv, nil
		}
	}
	return settlement.Invoice{}, shared.ErrInvoiceNotFound
}

func (t *tx) InsertCashDocument(_ context.Context, c settlement.CashDocument) (settlement.CashDocument, error) {
	for _, other := range t.st.cash {
		if other.Kind == c.Kind && other.Number == c.Number {
			return settlement.CashDocument{}, fmt.Errorf("%w: %s %s", shared.ErrDuplicatePosting, c.Kind, c.Number)
		}
	}
	c.ID = t.st.nextID()
	c.CreatedAt = t.now()
	c.UpdatedAt = c.CreatedAt
	t.st.cash[c.ID] = c
	return c, nil
}

func (t *tx) SetCashDocumentPosted(_ context.Context, id, journalEntryID int64, status settlement.CashStatus) error {
	c, ok := t.st.cash[id]
	if !ok {
		return shared.ErrCashDocumentNotFound
	}
	c.JournalEntryID = &journalEntryID
	c.Status = status
	t.st.cash[id] = c
	return nil
}

func (t *tx) LockCashDocumentByNumber(_ context.Context, kind settlement.CashKind, number string) (settlement.CashDocument, error) {
	for _, c := range t.st.cash {
		if c.Kind == kind && c.Number == number {
			return c, nil
		}
	}
	return settlement.CashDocument{}, shared.ErrCashDocumentNotFound
}

func (t *tx) LockCashDocument(_ context.Context, id int64) (settlement.CashDocument, error) {
	c, ok := t.st.cash[id]
	if !ok {
		return settlement.CashDocument{}, shared.ErrCashDocumentNotFound
	}
	return c, nil
}

func (t *tx) SumCashAllocated(_ context.Context, cashDocumentID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range t.st.allocations {
		if a.CashDocumentID == cashDocumentID && !a.IsReversed {
			sum = sum.Add(a.AllocatedAmount)
		}
	}
	return sum, nil
}

func (t *tx) LockInvoice(_ context.Context, id int64) (settlement.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok {
		return settlement.Invoice{}, shared.ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *tx) LockOutstandingInvoices(_ context.Context, partyID int64) ([]settlement.Invoice, error) {
	var out []settlement.Invoice
	for _, inv := range sortedValues(t.st.invoices, func(i settlement.Invoice) int64 { return i.ID }) {
		if inv.PartyID == partyID && inv.Status != settlement.InvoicePaid && inv.OutstandingAmount.IsPositive() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (t *tx) NextSettlementOrder(_ context.Context, invoiceID int64) (int, error) {
	n := 0
	for _, a := range t.st.allocations {
		if a.InvoiceID == invoiceID && a.SettlementOrder > n {
			n = a.SettlementOrder
		}
	}
	return n + 1, nil
}

func (t *tx) InsertAllocation(_ context.Context, a settlement.Allocation) (settlement.Allocation, error) {
	if err := t.check("InsertAllocation"); err != nil {
		return settlement.Allocation{}, err
	}
	for _, other := range t.st.allocations {
		if other.InvoiceID == a.InvoiceID && other.SettlementOrder == a.SettlementOrder {
			return settlement.Allocation{}, errors.New("memstore: uq_invoice_allocations_order violated")
		}
	}
	a.ID = t.st.nextID()
	a.CreatedAt = t.now()
	t.st.allocations[a.ID] = a
	return a, nil
}

func (t *tx) SumInvoiceAllocated(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range t.st.allocations {
		if a.InvoiceID == invoiceID && !a.IsReversed {
			sum = sum.Add(a.AllocatedAmount)
		}
	}
	return sum, nil
}

func (t *tx) UpdateInvoiceSettlement(_ context.Context, id int64, paid, outstanding decimal.Decimal, status settlement.InvoiceStatus) error {
	inv, ok := t.st.invoices[id]
	if !ok {
		return shared.ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.OutstandingAmount = outstanding
	inv.Status = status
	inv.UpdatedAt = t.now()
	t.st.invoices[id] = inv
	return nil
}

func (t *tx) LockAllocation(_ context.Context, id int64) (settlement.Allocation, error) {
	a, ok := t.st.allocations[id]
	if !ok {
		return settlement.Allocation{}, shared.ErrAllocationNotFound
	}
	return a, nil
}

func (t *tx) MarkAllocationReversed(_ context.Context, id, userID int64, reason string, at time.Time) error {
	a, ok := t.st.allocations[id]
	if !ok {
		return shared.ErrAllocationNotFound
	}
	if a.IsReversed {
		return shared.ErrAlreadyReversed
	}
	a.IsReversed = true
	a.ReversedAt = &at
	a.ReversedBy = &userID
	a.ReversalReason = reason
	t.st.allocations[id] = a
	return nil
}

// ---- provisions ----

func (t *tx) LockProvision(_ context.Context, id int64) (provisions.Provision, error) {
	if err := t.check("LockProvision"); err != nil {
		return provisions.Provision{}, err
	}
	p, ok := t.st.provisions[id]
	if !ok {
		return provisions.Provision{}, shared.ErrProvisionNotFound
	}
	return p, nil
}

func (t *tx) UpdateProvisionSchedule(_ context.Context, id int64, current decimal.Decimal, next, calculatedAt time.Time) error {
	p, ok := t.st.provisions[id]
	if !ok {
		return shared.ErrProvisionNotFound
	}
	p.CurrentAmount = current
	p.NextCalculationDate = next
	p.LastCalculatedAt = &calculatedAt
	t.st.provisions[id] = p
	return nil
}
