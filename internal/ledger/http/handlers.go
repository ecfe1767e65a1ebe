package ledgerhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
)

// LedgerService is the posting surface used by the handler.
type LedgerService interface {
	PostDocument(ctx context.Context, doc journals.Document, userID int64, opts journals.PostOptions) (ledger.Posting, error)
	CreateSalesInvoice(ctx context.Context, in ledger.InvoiceInput, userID int64) (ledger.InvoicePosting, error)
	CreateCashDocument(ctx context.Context, in ledger.CashInput, userID int64) (ledger.CashPosting, error)
	AllocateCash(ctx context.Context, cashDocID int64, req ledger.AllocationRequest, userID int64) (settlement.Outcome, error)
	ReverseAllocation(ctx context.Context, allocationID, userID int64, reason string) (settlement.Allocation, error)
	CancelGLEntry(ctx context.Context, glEntryID, userID int64) (gl.Entry, error)
	GetAccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// MappingService manages account mappings.
type MappingService interface {
	GetActive(ctx context.Context) (*mappings.Mapping, error)
	Create(ctx context.Context, in mappings.Input, userID int64) (mappings.Mapping, error)
	Activate(ctx context.Context, id int64, userID int64) (mappings.Mapping, error)
	CreateDefaultMapping(ctx context.Context, userID int64) (mappings.Mapping, error)
}

// Handler exposes ledger operations as JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	ledger    LedgerService
	mappings  MappingService
	validator *validator.Validate
}

// NewHandler builds the ledger HTTP handler.
func NewHandler(logger *slog.Logger, ledger LedgerService, mappings MappingService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, ledger: ledger, mappings: mappings, validator: validator.New()}
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	userID, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	res, err := h.ledger.CreateSalesInvoice(r.Context(), req.input(), userID)
	if err != nil {
		h.fail(w, "create sales invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"invoice": viewInvoice(res.Invoice),
		"posting": viewPosting(res.Posting),
	})
}

func (h *Handler) createCashDocument(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	userID, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	res, err := h.ledger.CreateCashDocument(r.Context(), req.input(), userID)
	if err != nil {
		h.fail(w, "create cash document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"document": cashView{
			ID:      res.Document.ID,
			Kind:    string(res.Document.Kind),
			Number:  res.Document.Number,
			PartyID: res.Document.PartyID,
			Amount:  res.Document.Amount,
			Status:  string(res.Document.Status),
		},
		"posting":    viewPosting(res.Posting),
		"settlement": viewOutcome(res.Settlement),
	})
}

func (h *Handler) postDocument(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	userID, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	doc, opts := req.document()
	res, err := h.ledger.PostDocument(r.Context(), doc, userID, opts)
	if err != nil {
		h.fail(w, "post document", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, viewPosting(res))
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	cashID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req allocationRequest
	userID, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	out, err := h.ledger.AllocateCash(r.Context(), cashID, req.request(), userID)
	if err != nil {
		h.fail(w, "allocate cash", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOutcome(out))
}

func (h *Handler) reverseAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	userID, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	alloc, err := h.ledger.ReverseAllocation(r.Context(), id, userID, req.Reason)
	if err != nil {
		h.fail(w, "reverse allocation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewAllocation(alloc))
}

func (h *Handler) cancelGLEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	entry, err := h.ledger.CancelGLEntry(r.Context(), id, userID)
	if err != nil {
		h.fail(w, "cancel gl entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewGLEntry(entry))
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bal, err := h.ledger.GetAccountBalance(r.Context(), id)
	if err != nil {
		h.fail(w, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "balance": bal})
}

func (h *Handler) activeMapping(w http.ResponseWriter, r *http.Request) {
	m, err := h.mappings.GetActive(r.Context())
	if err != nil {
		h.fail(w, "active mapping", err)
		return
	}
	if m == nil {
		httpx.RespondError(w, fmt.Errorf("%w: no active account mapping", shared.ErrMappingNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, viewMapping(*m))
}

func (h *Handler) createMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	userID, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	m, err := h.mappings.Create(r.Context(), req.input(), userID)
	if err != nil {
		h.fail(w, "create mapping", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewMapping(m))
}

func (h *Handler) activateMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	m, err := h.mappings.Activate(r.Context(), id, userID)
	if err != nil {
		h.fail(w, "activate mapping", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewMapping(m))
}

// defaultMapping stores the discovered mapping even when it is incomplete
// and reports the missing roles alongside it.
func (h *Handler) defaultMapping(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	m, err := h.mappings.CreateDefaultMapping(r.Context(), userID)
	var cfg *shared.ConfigurationError
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusCreated, viewMapping(m))
	case errors.As(err, &cfg) && m.ID != 0:
		httpx.JSON(w, http.StatusCreated, map[string]any{
			"mapping": viewMapping(m),
			"missing": cfg.Missing,
		})
	default:
		h.fail(w, "create default mapping", err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) (int64, bool) {
	userID, ok := h.user(w, r)
	if !ok {
		return 0, false
	}
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return 0, false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return 0, false
	}
	return userID, true
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return httpx.UserID(w, r)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
