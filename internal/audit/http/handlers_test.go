package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
)

type stubTimelineService struct {
	pages       []audit.Result
	calls       int
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	idx := s.calls
	s.calls++
	if idx >= len(s.pages) {
		return audit.Result{}, nil
	}
	return s.pages[idx], nil
}

func newRouter(service *stubTimelineService) http.Handler {
	handler := NewHandler(nil, service)
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestTimelineDefaultsRange(t *testing.T) {
	service := &stubTimelineService{pages: []audit.Result{{
		Rows:   []audit.Entry{{ID: "a", TableName: "journal_entries", RecordID: "1", Action: audit.ActionPost}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}}}
	rr := httptest.NewRecorder()
	newRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?table=journal_entries", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), service.lastFilters.From)
	require.Equal(t, "journal_entries", service.lastFilters.TableName)

	var body audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
}

func TestTimelineRejectsInvertedRange(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(&stubTimelineService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?from=2024-03-10&to=2024-03-01", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportWalksPages(t *testing.T) {
	service := &stubTimelineService{pages: []audit.Result{
		{Rows: []audit.Entry{{TableName: "invoices", RecordID: "1", Action: audit.ActionCreate}}, Paging: audit.PagingInfo{Page: 1, HasNext: true}},
		{Rows: []audit.Entry{{TableName: "invoices", RecordID: "2", Action: audit.ActionCreate}}, Paging: audit.PagingInfo{Page: 2}},
	}}
	rr := httptest.NewRecorder()
	newRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, service.calls)
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "created_at,table"))
}
