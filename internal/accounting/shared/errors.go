package shared

import (
	"errors"
	"strings"
)

var (
	// ErrConfiguration indicates the account mapping is missing or incomplete.
	ErrConfiguration = errors.New("accounting: account mapping configuration invalid")
	// ErrAmountMismatch indicates document totals do not add up.
	ErrAmountMismatch = errors.New("accounting: document amounts do not match total")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a line with both, neither or negative amounts.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrInvalidDocument indicates a source document failed validation.
	ErrInvalidDocument = errors.New("accounting: invalid document")
	// ErrDuplicatePosting indicates the voucher already has a ledger footprint.
	ErrDuplicatePosting = errors.New("accounting: voucher already posted")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAccountNotFound indicates a referenced account does not exist.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountIsGroup indicates a posting against an aggregator account.
	ErrAccountIsGroup = errors.New("accounting: group accounts are not postable")
	// ErrAccountInactive indicates a posting against a deactivated account.
	ErrAccountInactive = errors.New("accounting: account inactive")
	// ErrAccountCycle indicates a parent assignment would create a loop.
	ErrAccountCycle = errors.New("accounting: account hierarchy cycle")
	// ErrAccountInUse indicates the account still has children or GL entries.
	ErrAccountInUse = errors.New("accounting: account in use")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
	// ErrGLEntryNotFound indicates missing GL row.
	ErrGLEntryNotFound = errors.New("accounting: gl entry not found")
	// ErrAlreadyCancelled indicates a GL row was cancelled before.
	ErrAlreadyCancelled = errors.New("accounting: gl entry already cancelled")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrInvoiceNotFound indicates missing invoice.
	ErrInvoiceNotFound = errors.New("settlement: invoice not found")
	// ErrCashDocumentNotFound indicates missing receipt or payment voucher.
	ErrCashDocumentNotFound = errors.New("settlement: cash document not found")
	// ErrAllocationNotFound indicates missing allocation.
	ErrAllocationNotFound = errors.New("settlement: allocation not found")
	// ErrAllocationOverflow indicates an allocation above cash or outstanding.
	ErrAllocationOverflow = errors.New("settlement: allocation exceeds available amount")
	// ErrAlreadyReversed indicates the allocation was reversed before.
	ErrAlreadyReversed = errors.New("settlement: allocation already reversed")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrProvisionNotFound indicates missing provision.
	ErrProvisionNotFound = errors.New("provisions: provision not found")
)

// ConfigurationError lists the mapping roles that could not be resolved.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrConfiguration.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Missing) > 0 {
		b.WriteString(": missing roles ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
