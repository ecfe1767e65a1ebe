package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

// Tx is the unit of work shared by every step of one posting.
type Tx interface {
	journals.TxRepository
	gl.TxRepository
	settlement.TxRepository

	InsertInvoice(ctx context.Context, inv settlement.Invoice) (settlement.Invoice, error)
	SetInvoiceJournal(ctx context.Context, id, journalEntryID int64) error
	LockInvoiceByNumber(ctx context.Context, number string) (settlement.Invoice, error)
	InsertCashDocument(ctx context.Context, c settlement.CashDocument) (settlement.CashDocument, error)
	SetCashDocumentPosted(ctx context.Context, id, journalEntryID int64, status settlement.CashStatus) error
	LockCashDocumentByNumber(ctx context.Context, kind settlement.CashKind, number string) (settlement.CashDocument, error)
}

// Store opens ledger transactions and serves reads outside of them.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	AccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	// BalanceSnapshot reads accounts and live GL sums from one snapshot.
	BalanceSnapshot(ctx context.Context) ([]accounts.Account, []gl.Sums, error)
}

// PgStore is the PostgreSQL Store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

type (
	journalQueries    struct{ *journals.Queries }
	glQueries         struct{ *gl.Queries }
	settlementQueries struct{ *settlement.Queries }
)

type pgTx struct {
	journalQueries
	glQueries
	settlementQueries
}

// NewTx binds every ledger statement to q.
func NewTx(q db.DBTX) Tx {
	return pgTx{
		journalQueries:    journalQueries{journals.NewQueries(q)},
		glQueries:         glQueries{gl.NewQueries(q)},
		settlementQueries: settlementQueries{settlement.NewQueries(q)},
	}
}

// WithTx runs fn in one write transaction, retried on serialization failures.
func (s *PgStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("ledger store not initialised")
	}
	return db.WithWriteTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTx(tx))
	})
}

func (s *PgStore) AccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acc, err := accounts.NewQueries(s.pool).GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (s *PgStore) BalanceSnapshot(ctx context.Context) ([]accounts.Account, []gl.Sums, error) {
	var (
		accs []accounts.Account
		sums []gl.Sums
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if accs, err = accounts.NewQueries(tx).ListAccounts(ctx); err != nil {
			return err
		}
		sums, err = gl.NewQueries(tx).SumLiveByAccount(ctx)
		return err
	})
	return accs, sums, err
}
