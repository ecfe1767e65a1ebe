package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestRespondErrorMapsAccountingErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: 42", shared.ErrAccountNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: SI SI-1", shared.ErrDuplicatePosting), http.StatusConflict},
		{&shared.ConfigurationError{Missing: []string{"sales_tax"}}, http.StatusUnprocessableEntity},
		{shared.ErrAllocationOverflow, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: number required", shared.ErrInvalidDocument), http.StatusBadRequest},
		{ErrValidation, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, tc.status, body.Status)
		require.Equal(t, tc.err.Error(), body.Detail)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "refused")
}
