package accounts_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

func newRouter(store *memstore.Store) http.Handler {
	r := chi.NewRouter()
	accounts.NewHandler(nil, accounts.NewService(store.Accounts(), nil)).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.UserHeader, "9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndList(t *testing.T) {
	store := memstore.New()
	h := newRouter(store)

	rec := do(t, h, http.MethodPost, "/api/accounts", `{"code":"4100","name":"Freight Revenue","type":"REVENUE"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "CREDIT", created["nature"])

	rec = do(t, h, http.MethodPost, "/api/accounts", `{"code":"4100","name":"Dup","type":"REVENUE"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h := newRouter(memstore.New())

	rec := do(t, h, http.MethodPost, "/api/accounts", `{"code":"9","name":"x","type":"CONTINGENT"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/accounts/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/accounts/42", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"code":"1","name":"x","type":"ASSET"}`))
	anon := httptest.NewRecorder()
	h.ServeHTTP(anon, req)
	require.Equal(t, http.StatusUnauthorized, anon.Code)
}

func TestHandlerDeleteInUse(t *testing.T) {
	store := memstore.New()
	top := store.AddAccount("1000", "Assets", accounts.AccountTypeAsset, group)
	store.AddAccount("1100", "Cash", accounts.AccountTypeAsset, func(a *accounts.Account) { a.ParentID = &top.ID })
	h := newRouter(store)

	rec := do(t, h, http.MethodDelete, "/api/accounts/1", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/accounts/2/parent", `{"parent_id":null}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/accounts/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerDeleteReferencedByInvoice(t *testing.T) {
	store := memstore.New()
	receivable := store.AddAccount("1201", "Accounts Receivable", accounts.AccountTypeAsset)
	store.AddInvoice(settlement.Invoice{Number: "SI-9", PartyID: 4, Status: settlement.InvoiceUnpaid, ReceivableAccountID: &receivable.ID})
	h := newRouter(store)

	rec := do(t, h, http.MethodDelete, "/api/accounts/1", "")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}
