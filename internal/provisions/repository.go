package provisions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type pgTx struct {
	ledger.Tx
	*Queries
}

// WithTx runs fn in one write transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("provisions repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{Tx: ledger.NewTx(tx), Queries: NewQueries(tx)})
	})
}

// DueProvisions lists active provisions whose next date is on or before asOf.
func (r *Repository) DueProvisions(ctx context.Context, asOf time.Time) ([]Provision, error) {
	return NewQueries(r.pool).ListDue(ctx, asOf)
}

// Create validates and stores a new provision schedule.
func (r *Repository) Create(ctx context.Context, p Provision) (Provision, error) {
	if err := p.Validate(); err != nil {
		return Provision{}, err
	}
	if r == nil || r.pool == nil {
		return Provision{}, errors.New("provisions repository not initialised")
	}
	var created Provision
	err := db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = NewQueries(tx).InsertProvision(ctx, p)
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %v", shared.ErrAccountNotFound, err)
		}
		return err
	})
	return created, err
}

// Queries implements provision statements over a pool or a transaction.
type Queries struct {
	q db.DBTX
}

// NewQueries binds provision statements to q.
func NewQueries(q db.DBTX) *Queries {
	return &Queries{q: q}
}

const provisionColumns = `id, name, main_account_id, provision_account_id, expense_account_id, method, rate, fixed_amount,
current_amount, frequency, next_calculation_date, last_calculated_at, is_active, created_at, updated_at`

func scanProvision(row pgx.Row) (Provision, error) {
	var p Provision
	err := row.Scan(&p.ID, &p.Name, &p.MainAccountID, &p.ProvisionAccountID, &p.ExpenseAccountID, &p.Method, &p.Rate, &p.FixedAmount,
		&p.CurrentAmount, &p.Frequency, &p.NextCalculationDate, &p.LastCalculatedAt, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Provision{}, shared.ErrProvisionNotFound
		}
		return Provision{}, err
	}
	return p, nil
}

func (r *Queries) ListDue(ctx context.Context, asOf time.Time) ([]Provision, error) {
	rows, err := r.q.Query(ctx, `SELECT `+provisionColumns+` FROM account_provisions
WHERE is_active AND next_calculation_date <= $1 ORDER BY next_calculation_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Provision
	for rows.Next() {
		p, err := scanProvision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Queries) LockProvision(ctx context.Context, id int64) (Provision, error) {
	return scanProvision(r.q.QueryRow(ctx, `SELECT `+provisionColumns+` FROM account_provisions WHERE id=$1 FOR UPDATE`, id))
}

func (r *Queries) UpdateProvisionSchedule(ctx context.Context, id int64, current decimal.Decimal, next, calculatedAt time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE account_provisions SET current_amount=$2, next_calculation_date=$3, last_calculated_at=$4, updated_at=NOW()
WHERE id=$1`, id, current, next, calculatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrProvisionNotFound
	}
	return nil
}

// InsertProvision registers a provision schedule.
func (r *Queries) InsertProvision(ctx context.Context, p Provision) (Provision, error) {
	return scanProvision(r.q.QueryRow(ctx, `INSERT INTO account_provisions (name, main_account_id, provision_account_id, expense_account_id,
method, rate, fixed_amount, current_amount, frequency, next_calculation_date, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+provisionColumns,
		p.Name, p.MainAccountID, p.ProvisionAccountID, p.ExpenseAccountID, p.Method, p.Rate, p.FixedAmount, p.CurrentAmount,
		p.Frequency, p.NextCalculationDate, p.IsActive))
}
