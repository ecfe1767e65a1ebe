// Package memstore is an in-memory unit of work for service tests. Every
// transaction runs serialized against a copy of the state that replaces the
// original only on success.
package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

type state struct {
	seq         int64
	accounts    map[int64]accounts.Account
	mappings    map[int64]mappings.Mapping
	journals    map[int64]journals.JournalEntry
	details     map[int64][]journals.Detail
	glEntries   map[int64]gl.Entry
	invoices    map[int64]settlement.Invoice
	cash        map[int64]settlement.CashDocument
	allocations map[int64]settlement.Allocation
	provisions  map[int64]provisions.Provision
}

func newState() *state {
	return &state{
		accounts:    map[int64]accounts.Account{},
		mappings:    map[int64]mappings.Mapping{},
		journals:    map[int64]journals.JournalEntry{},
		details:     map[int64][]journals.Detail{},
		glEntries:   map[int64]gl.Entry{},
		invoices:    map[int64]settlement.Invoice{},
		cash:        map[int64]settlement.CashDocument{},
		allocations: map[int64]settlement.Allocation{},
		provisions:  map[int64]provisions.Provision{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:         s.seq,
		accounts:    maps.Clone(s.accounts),
		mappings:    make(map[int64]mappings.Mapping, len(s.mappings)),
		journals:    maps.Clone(s.journals),
		details:     make(map[int64][]journals.Detail, len(s.details)),
		glEntries:   maps.Clone(s.glEntries),
		invoices:    maps.Clone(s.invoices),
		cash:        maps.Clone(s.cash),
		allocations: maps.Clone(s.allocations),
		provisions:  maps.Clone(s.provisions),
	}
	for id, m := range s.mappings {
		m.Bindings = maps.Clone(m.Bindings)
		c.mappings[id] = m
	}
	for id, d := range s.details {
		c.details[id] = append([]journals.Detail(nil), d...)
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store holds the in-memory ledger.
type Store struct {
	mu    sync.Mutex
	state *state
	fail  map[string]error
	now   func() time.Time
	// Commits counts successful transactions.
	Commits int
	locks   []int64
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState(), fail: map[string]error{}, now: time.Now}
}

// FailOn makes the named statement return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

func (s *Store) run(ctx context.Context, fn func(*tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := &tx{st: s.state.clone(), fail: s.fail, now: s.now}
	if err := fn(work); err != nil {
		return err
	}
	s.state = work.st
	s.locks = work.locks
	s.Commits++
	return nil
}

// LockOrder returns the account ids passed to LockAccount by the last
// committed transaction, in call order.
func (s *Store) LockOrder() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.locks...)
}

// WithTx implements ledger.Store.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

// AccountBalance implements ledger.Store.
func (s *Store) AccountBalance(_ context.Context, accountID int64) (decimal.Decimal, error) {
	acc, err := s.Account(accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// BalanceSnapshot implements ledger.Store.
func (s *Store) BalanceSnapshot(_ context.Context) ([]accounts.Account, []gl.Sums, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accs := sortedValues(s.state.accounts, func(a accounts.Account) int64 { return a.ID })
	sums := map[int64]*gl.Sums{}
	for _, e := range s.state.glEntries {
		if e.IsCancelled {
			continue
		}
		sum, ok := sums[e.AccountID]
		if !ok {
			sum = &gl.Sums{AccountID: e.AccountID}
			sums[e.AccountID] = sum
		}
		sum.Debit = sum.Debit.Add(e.Debit)
		sum.Credit = sum.Credit.Add(e.Credit)
	}
	out := make([]gl.Sums, 0, len(sums))
	for _, sum := range sums {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return accs, out, nil
}

// AddAccount seeds an account. Nature defaults from the type and the
// account is active unless the caller set fields otherwise via mutate.
func (s *Store) AddAccount(code, name string, typ accounts.AccountType, mutate ...func(*accounts.Account)) accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	nature, _ := accounts.NatureOf(typ)
	acc := accounts.Account{
		ID:        s.state.nextID(),
		Code:      code,
		Name:      name,
		Type:      typ,
		Nature:    nature,
		Balance:   decimal.Zero,
		IsActive:  true,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	for _, fn := range mutate {
		fn(&acc)
	}
	s.state.accounts[acc.ID] = acc
	return acc
}

// Account returns a committed account.
func (s *Store) Account(id int64) (accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.state.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return acc, nil
}

// SetBalance overwrites a committed balance.
func (s *Store) SetBalance(id int64, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.state.accounts[id]
	acc.Balance = balance
	s.state.accounts[id] = acc
}

// AddMapping seeds a mapping.
func (s *Store) AddMapping(m mappings.Mapping) mappings.Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.state.nextID()
	m.Bindings = maps.Clone(m.Bindings)
	s.state.mappings[m.ID] = m
	return m
}

// AddInvoice seeds an invoice.
func (s *Store) AddInvoice(inv settlement.Invoice) settlement.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = s.state.nextID()
	s.state.invoices[inv.ID] = inv
	return inv
}

// AddCashDocument seeds a cash document.
func (s *Store) AddCashDocument(c settlement.CashDocument) settlement.CashDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.state.nextID()
	s.state.cash[c.ID] = c
	return c
}

// AddProvision seeds a provision.
func (s *Store) AddProvision(p provisions.Provision) provisions.Provision {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.state.nextID()
	s.state.provisions[p.ID] = p
	return p
}

// Invoice returns a committed invoice.
func (s *Store) Invoice(id int64) settlement.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.invoices[id]
}

// Provision returns a committed provision.
func (s *Store) Provision(id int64) provisions.Provision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.provisions[id]
}

// Mappings returns every committed mapping ordered by id.
func (s *Store) Mappings() []mappings.Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.state.mappings, func(m mappings.Mapping) int64 { return m.ID })
}

// Journals returns every committed journal ordered by id.
func (s *Store) Journals() []journals.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.state.journals, func(j journals.JournalEntry) int64 { return j.ID })
}

// Details returns the lines of a committed journal.
func (s *Store) Details(entryID int64) []journals.Detail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]journals.Detail(nil), s.state.details[entryID]...)
}

// GLEntries returns every committed GL row ordered by id.
func (s *Store) GLEntries() []gl.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.state.glEntries, func(e gl.Entry) int64 { return e.ID })
}

// Allocations returns every committed allocation ordered by id.
func (s *Store) Allocations() []settlement.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.state.allocations, func(a settlement.Allocation) int64 { return a.ID })
}

// CashDocuments returns every committed cash document ordered by id.
func (s *Store) CashDocuments() []settlement.CashDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.state.cash, func(c settlement.CashDocument) int64 { return c.ID })
}

// InvoiceCount returns the number of committed invoices.
func (s *Store) InvoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.invoices)
}

func sortedValues[T any](m map[int64]T, id func(T) int64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}
