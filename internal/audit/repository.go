package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit logs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertAuditLog appends e.
func (r *Repository) InsertAuditLog(ctx context.Context, e Entry) error {
	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return err
	}
	changed := e.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (id, table_name, record_id, action, user_id, old_values, new_values, changed_fields,
category, severity, description, ip_address, user_agent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.TableName, e.RecordID, e.Action, nullInt(e.UserID), oldJSON, newJSON, changed,
		e.Category, e.Severity, e.Description, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

// AuditWindow returns newest-first rows matching filters.
func (r *Repository) AuditWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if f.TableName != "" {
		add("table_name = $%d", f.TableName)
	}
	if f.RecordID != "" {
		add("record_id = $%d", f.RecordID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	sql := `SELECT id, table_name, record_id, action, COALESCE(user_id, 0), old_values, new_values, changed_fields,
category, severity, description, ip_address, user_agent, created_at FROM audit_logs`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	sql += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e              Entry
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &e.Action, &e.UserID, &oldRaw, &newRaw, &e.ChangedFields,
			&e.Category, &e.Severity, &e.Description, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(oldRaw) > 0 {
			if err := json.Unmarshal(oldRaw, &e.OldValues); err != nil {
				return nil, err
			}
		}
		if len(newRaw) > 0 {
			if err := json.Unmarshal(newRaw, &e.NewValues); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalValues(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
