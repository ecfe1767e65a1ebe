package mappings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// activationLock serializes writers of the active flag.
const activationLock = "account_mappings:active"

// TxRepository exposes mapping statements bound to one transaction.
type TxRepository interface {
	LockMappings(ctx context.Context) error
	GetActiveMapping(ctx context.Context) (*Mapping, error)
	GetMapping(ctx context.Context, id int64) (Mapping, error)
	InsertMapping(ctx context.Context, m Mapping) (Mapping, error)
	UpdateMapping(ctx context.Context, m Mapping) (Mapping, error)
	DeactivateMappings(ctx context.Context, userID int64) error
	SetMappingActive(ctx context.Context, id int64, userID int64) error
	ListPostableAccounts(ctx context.Context) ([]accounts.Account, error)
}

// Repository persists account mappings.
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
		return errors.New("mappings repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

// GetActive reads the active mapping outside of a transaction.
func (r *Repository) GetActive(ctx context.Context) (*Mapping, error) {
	return NewQueries(r.pool).GetActiveMapping(ctx)
}

// Queries implements mapping statements over a pool or a transaction.
type Queries struct {
	q db.DBTX
}

// NewQueries binds mapping statements to q.
func NewQueries(q db.DBTX) *Queries {
	return &Queries{q: q}
}

const mappingColumns = `id, name, description, bindings, is_active, created_by, COALESCE(updated_by, 0), created_at, updated_at`

func scanMapping(row pgx.Row) (Mapping, error) {
	var (
		m       Mapping
		raw     []byte
		created *int64
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &raw, &m.IsActive, &created, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Mapping{}, shared.ErrMappingNotFound
		}
		return Mapping{}, err
	}
	if created != nil {
		m.CreatedBy = *created
	}
	m.Bindings = make(map[Role]int64)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.Bindings); err != nil {
			return Mapping{}, err
		}
	}
	return m, nil
}

func (r *Queries) LockMappings(ctx context.Context) error {
	return db.AdvisoryXactLock(ctx, r.q, activationLock)
}

func (r *Queries) GetActiveMapping(ctx context.Context) (*Mapping, error) {
	m, err := scanMapping(r.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE is_active ORDER BY id LIMIT 1`))
	if err != nil {
		if errors.Is(err, shared.ErrMappingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *Queries) GetMapping(ctx context.Context, id int64) (Mapping, error) {
	return scanMapping(r.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE id=$1`, id))
}

func (r *Queries) InsertMapping(ctx context.Context, m Mapping) (Mapping, error) {
	raw, err := json.Marshal(m.Bindings)
	if err != nil {
		return Mapping{}, err
	}
	return scanMapping(r.q.QueryRow(ctx, `INSERT INTO account_mappings (name, description, bindings, is_active, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$5) RETURNING `+mappingColumns, m.Name, m.Description, raw, m.IsActive, nullInt(m.CreatedBy)))
}

func (r *Queries) UpdateMapping(ctx context.Context, m Mapping) (Mapping, error) {
	raw, err := json.Marshal(m.Bindings)
	if err != nil {
		return Mapping{}, err
	}
	return scanMapping(r.q.QueryRow(ctx, `UPDATE account_mappings SET name=$2, description=$3, bindings=$4, is_active=$5, updated_by=$6, updated_at=NOW()
WHERE id=$1 RETURNING `+mappingColumns, m.ID, m.Name, m.Description, raw, m.IsActive, nullInt(m.UpdatedBy)))
}

func (r *Queries) DeactivateMappings(ctx context.Context, userID int64) error {
	_, err := r.q.Exec(ctx, `UPDATE account_mappings SET is_active=FALSE, updated_by=$1, updated_at=NOW() WHERE is_active`, nullInt(userID))
	return err
}

func (r *Queries) SetMappingActive(ctx context.Context, id int64, userID int64) error {
	cmd, err := r.q.Exec(ctx, `UPDATE account_mappings SET is_active=TRUE, updated_by=$2, updated_at=NOW() WHERE id=$1`, id, nullInt(userID))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrMappingNotFound
	}
	return nil
}

// ListPostableAccounts returns active leaf accounts ordered by code.
func (r *Queries) ListPostableAccounts(ctx context.Context) ([]accounts.Account, error) {
	all, err := accounts.NewQueries(r.q).ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if !a.IsGroup && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
