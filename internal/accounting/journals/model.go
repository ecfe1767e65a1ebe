package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
	// JournalStatusCancelled marks an entry superseded by a forced re-post.
	JournalStatusCancelled JournalStatus = "CANCELLED"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	EntryNumber  string
	Date         time.Time
	Description  string
	TotalDebit   decimal.Decimal
	TotalCredit  decimal.Decimal
	Status       JournalStatus
	Type         shared.VoucherType
	VoucherNo    string
	SourceID     uuid.UUID
	Currency     string
	ExchangeRate decimal.Decimal
	PartyID      *int64
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Detail is one persisted journal line.
type Detail struct {
	ID             int64
	JournalEntryID int64
	AccountID      int64
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Description    string
}

// Line is a composed debit or credit before persistence.
type Line struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// PostOptions tunes duplicate handling for a voucher.
type PostOptions struct {
	// Force supersedes an existing posting of the same voucher.
	Force bool
	// RejectDuplicate turns the default no-op into ErrDuplicatePosting.
	RejectDuplicate bool
}

// PostResult describes the outcome of Engine.Post.
type PostResult struct {
	Entry   JournalEntry
	Details []Detail
	// Created is false when an existing posting was returned unchanged.
	Created bool
	// Superseded is the entry cancelled by a forced re-post.
	Superseded *JournalEntry
}
