package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Writer menyimpan entry audit secara append-only.
type Writer interface {
	InsertAuditLog(ctx context.Context, e Entry) error
}

// Logger records financial mutations. Failures are logged and returned but
// callers treat them as non-fatal once the financial transaction committed.
type Logger struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger constructs the audit logger.
func NewLogger(writer Writer, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{writer: writer, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (l *Logger) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// LogAction classifies and appends one audit entry.
func (l *Logger) LogAction(ctx context.Context, in Input) (Entry, error) {
	if l == nil || l.writer == nil {
		return Entry{}, errors.New("audit: logger not initialised")
	}
	in.TableName = strings.TrimSpace(in.TableName)
	in.RecordID = strings.TrimSpace(in.RecordID)
	if in.TableName == "" || in.RecordID == "" || in.Action == "" {
		return Entry{}, errors.New("audit: table, record and action required")
	}
	e := Entry{
		ID:            uuid.NewString(),
		TableName:     in.TableName,
		RecordID:      in.RecordID,
		Action:        Action(strings.ToUpper(string(in.Action))),
		UserID:        in.UserID,
		OldValues:     in.OldValues,
		NewValues:     in.NewValues,
		ChangedFields: ChangedFields(in.OldValues, in.NewValues),
		Category:      in.Category,
		Severity:      in.Severity,
		Description:   in.Description,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		CreatedAt:     l.now().UTC(),
	}
	if e.Category == "" {
		e.Category = CategoryFor(e.TableName)
	}
	if e.Severity == "" {
		e.Severity = SeverityFor(e.Action)
	}
	if err := l.writer.InsertAuditLog(ctx, e); err != nil {
		l.logger.Error("audit log write failed",
			slog.String("table", e.TableName),
			slog.String("record_id", e.RecordID),
			slog.String("action", string(e.Action)),
			slog.Any("error", err))
		return Entry{}, err
	}
	return e, nil
}
