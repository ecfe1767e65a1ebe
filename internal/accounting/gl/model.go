package gl

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Entry is an append-only general ledger row mirroring one journal detail.
type Entry struct {
	ID              int64
	JournalEntryID  int64
	JournalDetailID int64
	AccountID       int64
	PostingDate     time.Time
	VoucherType     shared.VoucherType
	VoucherNo       string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Currency        string
	ExchangeRate    decimal.Decimal
	Remarks         string
	IsCancelled     bool
	CancelledAt     *time.Time
	CancelledBy     *int64
	CreatedBy       int64
	CreatedAt       time.Time
}
