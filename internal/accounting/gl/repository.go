package gl

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Queries implements GL statements over a pool or a transaction.
type Queries struct {
	q    db.DBTX
	accs *accounts.Queries
}

// NewQueries binds GL statements to q.
func NewQueries(q db.DBTX) *Queries {
	return &Queries{q: q, accs: accounts.NewQueries(q)}
}

const glColumns = `id, journal_entry_id, journal_detail_id, account_id, posting_date, voucher_type, voucher_no, debit, credit,
currency, exchange_rate, remarks, is_cancelled, cancelled_at, cancelled_by, COALESCE(created_by, 0), created_at`

func scanGL(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.JournalEntryID, &e.JournalDetailID, &e.AccountID, &e.PostingDate, &e.VoucherType, &e.VoucherNo, &e.Debit, &e.Credit,
		&e.Currency, &e.ExchangeRate, &e.Remarks, &e.IsCancelled, &e.CancelledAt, &e.CancelledBy, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrGLEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *Queries) LockAccount(ctx context.Context, id int64) (accounts.Account, error) {
	return r.accs.LockAccount(ctx, id)
}

func (r *Queries) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return r.accs.UpdateAccountBalance(ctx, id, balance)
}

func (r *Queries) InsertGLEntry(ctx context.Context, e Entry) (Entry, error) {
	return scanGL(r.q.QueryRow(ctx, `INSERT INTO gl_entries (journal_entry_id, journal_detail_id, account_id, posting_date, voucher_type, voucher_no,
debit, credit, currency, exchange_rate, remarks, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING `+glColumns,
		e.JournalEntryID, e.JournalDetailID, e.AccountID, e.PostingDate, e.VoucherType, e.VoucherNo,
		e.Debit, e.Credit, e.Currency, e.ExchangeRate, e.Remarks, nullInt(e.CreatedBy)))
}

func (r *Queries) LockGLEntry(ctx context.Context, id int64) (Entry, error) {
	return scanGL(r.q.QueryRow(ctx, `SELECT `+glColumns+` FROM gl_entries WHERE id=$1 FOR UPDATE`, id))
}

func (r *Queries) MarkGLEntryCancelled(ctx context.Context, id, userID int64, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE gl_entries SET is_cancelled=TRUE, cancelled_at=$2, cancelled_by=$3 WHERE id=$1 AND NOT is_cancelled`, id, at, nullInt(userID))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyCancelled
	}
	return nil
}

func (r *Queries) ListLiveGLEntries(ctx context.Context, journalEntryID int64) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `SELECT `+glColumns+` FROM gl_entries WHERE journal_entry_id=$1 AND NOT is_cancelled ORDER BY id`, journalEntryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanGL(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumLiveByAccount aggregates non-cancelled GL rows per account.
func (r *Queries) SumLiveByAccount(ctx context.Context) ([]Sums, error) {
	rows, err := r.q.Query(ctx, `SELECT account_id, COALESCE(SUM(debit),0), COALESCE(SUM(credit),0)
FROM gl_entries WHERE NOT is_cancelled GROUP BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sums
	for rows.Next() {
		var s Sums
		if err := rows.Scan(&s.AccountID, &s.Debit, &s.Credit); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
