package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes account operations bound to one transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, in CreateInput, nature Nature, userID int64) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	LockAccount(ctx context.Context, id int64) (Account, error)
	UpdateAccountParent(ctx context.Context, id int64, parentID *int64) error
	CountChildAccounts(ctx context.Context, id int64) (int, error)
	CountAccountGLEntries(ctx context.Context, id int64) (int, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// Repository persists accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a write transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

// List returns the chart of accounts ordered by code.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	return NewQueries(r.pool).ListAccounts(ctx)
}

// Get loads one account outside of a transaction.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	return NewQueries(r.pool).GetAccount(ctx, id)
}

// Queries implements account statements over a pool or a transaction.
type Queries struct {
	q db.DBTX
}

// NewQueries binds account statements to q.
func NewQueries(q db.DBTX) *Queries {
	return &Queries{q: q}
}

const accountColumns = `id, code, name, type, nature, balance, is_group, parent_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Nature, &a.Balance, &a.IsGroup, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// ListAccounts returns every account ordered by code.
func (r *Queries) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *Queries) InsertAccount(ctx context.Context, in CreateInput, nature Nature, userID int64) (Account, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO accounts (code, name, type, nature, is_group, parent_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+accountColumns, in.Code, in.Name, in.Type, nature, in.IsGroup, in.ParentID, nullInt(userID))
	a, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_code") {
			return Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, in.Code)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

// LockAccount reads the account with a row lock held until commit.
func (r *Queries) LockAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

// UpdateAccountBalance persists a new running balance.
func (r *Queries) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	cmd, err := r.q.Exec(ctx, `UPDATE accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *Queries) UpdateAccountParent(ctx context.Context, id int64, parentID *int64) error {
	cmd, err := r.q.Exec(ctx, `UPDATE accounts SET parent_id=$2, updated_at=NOW() WHERE id=$1`, id, parentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *Queries) CountChildAccounts(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE parent_id=$1`, id).Scan(&n)
	return n, err
}

func (r *Queries) CountAccountGLEntries(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM gl_entries WHERE account_id=$1`, id).Scan(&n)
	return n, err
}

func (r *Queries) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: referenced by ledger documents", shared.ErrAccountInUse)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
