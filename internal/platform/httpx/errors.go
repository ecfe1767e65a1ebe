// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

type errorClass struct {
	status int
	title  string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusNotFound, "Not Found", []error{
		ErrNotFound,
		shared.ErrJournalNotFound,
		shared.ErrAccountNotFound,
		shared.ErrGLEntryNotFound,
		shared.ErrMappingNotFound,
		shared.ErrInvoiceNotFound,
		shared.ErrCashDocumentNotFound,
		shared.ErrAllocationNotFound,
		shared.ErrProvisionNotFound,
	}},
	{http.StatusConflict, "Conflict", []error{
		shared.ErrDuplicatePosting,
		shared.ErrDuplicateCode,
		shared.ErrAlreadyCancelled,
		shared.ErrAlreadyReversed,
		shared.ErrAccountInUse,
	}},
	{http.StatusUnprocessableEntity, "Unprocessable Entity", []error{
		shared.ErrConfiguration,
		shared.ErrAmountMismatch,
		shared.ErrUnbalanced,
		shared.ErrTooFewLines,
		shared.ErrInvalidLine,
		shared.ErrAccountIsGroup,
		shared.ErrAccountInactive,
		shared.ErrAccountCycle,
		shared.ErrAllocationOverflow,
		shared.ErrInvalidStatus,
	}},
	{http.StatusBadRequest, "Validation Failed", []error{
		ErrValidation,
		shared.ErrInvalidDocument,
	}},
}

// StatusFor returns the HTTP status an error maps to.
func StatusFor(err error) (int, string) {
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.title
			}
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, title, "")
		return
	}
	Problem(w, status, title, err.Error())
}
