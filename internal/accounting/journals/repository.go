package journals

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Queries implements journal statements over a pool or a transaction.
type Queries struct {
	q db.DBTX
}

// NewQueries binds journal statements to q.
func NewQueries(q db.DBTX) *Queries {
	return &Queries{q: q}
}

const journalColumns = `id, entry_number, date, description, total_debit, total_credit, status, type, voucher_no, source_id,
currency, exchange_rate, party_id, COALESCE(created_by, 0), created_at, updated_at`

func scanJournal(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.EntryNumber, &e.Date, &e.Description, &e.TotalDebit, &e.TotalCredit, &e.Status, &e.Type, &e.VoucherNo, &e.SourceID,
		&e.Currency, &e.ExchangeRate, &e.PartyID, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *Queries) GetActiveMapping(ctx context.Context) (*mappings.Mapping, error) {
	return mappings.NewQueries(r.q).GetActiveMapping(ctx)
}

func (r *Queries) AdvisoryLock(ctx context.Context, key string) error {
	return db.AdvisoryXactLock(ctx, r.q, key)
}

func (r *Queries) FindPostedJournal(ctx context.Context, voucherType shared.VoucherType, voucherNo string) (*JournalEntry, error) {
	e, err := scanJournal(r.q.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries
WHERE type=$1 AND voucher_no=$2 AND status='POSTED' FOR UPDATE`, voucherType, voucherNo))
	if err != nil {
		if errors.Is(err, shared.ErrJournalNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// MaxEntrySuffix returns the highest numeric suffix used by prefix, or zero.
func (r *Queries) MaxEntrySuffix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(entry_number FROM '[0-9]+$') AS BIGINT)), 0)
FROM journal_entries WHERE entry_number LIKE $1`, prefix+"-%").Scan(&n)
	return n, err
}

func (r *Queries) InsertJournal(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO journal_entries (entry_number, date, description, total_debit, total_credit, status, type, voucher_no,
source_id, currency, exchange_rate, party_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+journalColumns,
		e.EntryNumber, e.Date, e.Description, e.TotalDebit, e.TotalCredit, e.Status, e.Type, e.VoucherNo,
		e.SourceID, e.Currency, e.ExchangeRate, e.PartyID, nullInt(e.CreatedBy))
	inserted, err := scanJournal(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_voucher") {
			return JournalEntry{}, shared.ErrDuplicatePosting
		}
		return JournalEntry{}, err
	}
	return inserted, nil
}

func (r *Queries) InsertJournalDetails(ctx context.Context, entryID int64, lines []Line) ([]Detail, error) {
	details := make([]Detail, 0, len(lines))
	for _, line := range lines {
		d := Detail{JournalEntryID: entryID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Description: line.Description}
		err := r.q.QueryRow(ctx, `INSERT INTO journal_entry_details (journal_entry_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, entryID, line.AccountID, line.Debit, line.Credit, line.Description).Scan(&d.ID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return nil, shared.ErrAccountNotFound
			}
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

func (r *Queries) GetJournal(ctx context.Context, id int64) (JournalEntry, error) {
	return scanJournal(r.q.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=$1`, id))
}

func (r *Queries) ListJournalDetails(ctx context.Context, entryID int64) ([]Detail, error) {
	rows, err := r.q.Query(ctx, `SELECT id, journal_entry_id, account_id, debit, credit, description
FROM journal_entry_details WHERE journal_entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.JournalEntryID, &d.AccountID, &d.Debit, &d.Credit, &d.Description); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (r *Queries) UpdateJournalStatus(ctx context.Context, id int64, status JournalStatus) error {
	cmd, err := r.q.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
