package gl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TxRepository exposes GL statements bound to one transaction.
type TxRepository interface {
	LockAccount(ctx context.Context, id int64) (accounts.Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	InsertGLEntry(ctx context.Context, e Entry) (Entry, error)
	LockGLEntry(ctx context.Context, id int64) (Entry, error)
	MarkGLEntryCancelled(ctx context.Context, id, userID int64, at time.Time) error
	ListLiveGLEntries(ctx context.Context, journalEntryID int64) ([]Entry, error)
}

// Poster is the only writer of account balances.
type Poster struct {
	now func() time.Time
}

// NewPoster constructs the GL poster.
func NewPoster() *Poster {
	return &Poster{now: time.Now}
}

// WithNow overrides the clock for testing.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// ApplyPostings writes one GL row per detail and moves the referenced account
// balances. Accounts are locked in ascending id order before any write.
func (p *Poster) ApplyPostings(ctx context.Context, tx TxRepository, entry journals.JournalEntry, details []journals.Detail) ([]Entry, error) {
	if len(details) == 0 {
		return nil, shared.ErrTooFewLines
	}
	locked, err := lockAccounts(ctx, tx, accountIDs(details))
	if err != nil {
		return nil, err
	}
	for _, acc := range locked {
		if err := acc.Postable(); err != nil {
			return nil, err
		}
	}
	entries := make([]Entry, 0, len(details))
	for _, d := range details {
		inserted, err := tx.InsertGLEntry(ctx, Entry{
			JournalEntryID:  entry.ID,
			JournalDetailID: d.ID,
			AccountID:       d.AccountID,
			PostingDate:     entry.Date,
			VoucherType:     entry.Type,
			VoucherNo:       entry.VoucherNo,
			Debit:           d.Debit,
			Credit:          d.Credit,
			Currency:        entry.Currency,
			ExchangeRate:    entry.ExchangeRate,
			Remarks:         d.Description,
			CreatedBy:       entry.CreatedBy,
		})
		if err != nil {
			return nil, err
		}
		acc := locked[d.AccountID]
		acc.Balance = acc.Apply(d.Debit, d.Credit)
		locked[d.AccountID] = acc
		entries = append(entries, inserted)
	}
	for _, id := range sortedKeys(locked) {
		if err := tx.UpdateAccountBalance(ctx, id, locked[id].Balance); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Cancel soft-voids one GL row and reverses the delta it applied.
func (p *Poster) Cancel(ctx context.Context, tx TxRepository, glEntryID, userID int64) (Entry, error) {
	e, err := tx.LockGLEntry(ctx, glEntryID)
	if err != nil {
		return Entry{}, err
	}
	if e.IsCancelled {
		return Entry{}, fmt.Errorf("%w: gl entry %d", shared.ErrAlreadyCancelled, e.ID)
	}
	acc, err := tx.LockAccount(ctx, e.AccountID)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.UpdateAccountBalance(ctx, acc.ID, acc.Apply(e.Credit, e.Debit)); err != nil {
		return Entry{}, err
	}
	at := p.now()
	if err := tx.MarkGLEntryCancelled(ctx, e.ID, userID, at); err != nil {
		return Entry{}, err
	}
	e.IsCancelled = true
	e.CancelledAt = &at
	e.CancelledBy = &userID
	return e, nil
}

// CancelJournal cancels every live GL row of a journal entry.
func (p *Poster) CancelJournal(ctx context.Context, tx TxRepository, journalEntryID, userID int64) ([]Entry, error) {
	live, err := tx.ListLiveGLEntries(ctx, journalEntryID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(live))
	for _, e := range live {
		ids = append(ids, e.AccountID)
	}
	// accounts are locked in id order before any row is touched
	if _, err := lockAccounts(ctx, tx, ids); err != nil {
		return nil, err
	}
	cancelled := make([]Entry, 0, len(live))
	for _, e := range live {
		c, err := p.Cancel(ctx, tx, e.ID, userID)
		if err != nil {
			return nil, err
		}
		cancelled = append(cancelled, c)
	}
	return cancelled, nil
}

func accountIDs(details []journals.Detail) []int64 {
	ids := make([]int64, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.AccountID)
	}
	return ids
}

func lockAccounts(ctx context.Context, tx TxRepository, ids []int64) (map[int64]accounts.Account, error) {
	locked := make(map[int64]accounts.Account, len(ids))
	unique := append([]int64(nil), ids...)
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	for _, id := range unique {
		if _, ok := locked[id]; ok {
			continue
		}
		acc, err := tx.LockAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", id, err)
		}
		locked[id] = acc
	}
	return locked, nil
}

func sortedKeys(m map[int64]accounts.Account) []int64 {
	keys := make([]int64, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
