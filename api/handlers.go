/*
handlers.go - HTTP API handlers for the spending tracker

PURPOSE:
  Exposes the ledger via a JSON API. Handles HTTP request/response and
  JSON serialization, and delegates to the ledger, importer, workbook
  and analytics packages.

ENDPOINTS:
  Accounts:
    GET    /api/accounts               List accounts and total balance
    POST   /api/accounts               Create account (opening balance)
    GET    /api/accounts/{id}          Account with its transactions
    PUT    /api/accounts/{id}          Rename / change currency
    DELETE /api/accounts/{id}          Delete account and its transactions

  Categories:
    GET    /api/categories?type=       List categories
    POST   /api/categories             Create category
    POST   /api/categories/seed        Insert the default set into an empty ledger
    DELETE /api/categories/{id}        Delete category (transactions keep no category)

  Transactions:
    GET    /api/transactions           List (accountId, from, to, type, limit)
    POST   /api/transactions           Create
    GET    /api/transactions/{id}      Get with digital tax child
    PUT    /api/transactions/{id}      Update
    DELETE /api/transactions/{id}      Delete

  Workbook:
    POST   /api/import                 Multipart "file" (.xlsx) + "options" JSON
    GET    /api/export                 Download every record as .xlsx

  Reports:
    GET    /api/analytics?period=      Category, monthly and total figures
    GET    /api/dashboard              Landing page figures

  Scenarios (scenarios.go):
    GET    /api/scenarios              List demo scenarios
    GET    /api/scenarios/current      Currently loaded scenario
    POST   /api/scenarios/load         Reset and load a demo scenario

  Admin:
    GET    /api/health                 Storage ping
    POST   /api/reset                  Delete every record (dev only)

ERROR HANDLING:
  Errors are returned as JSON {"error": "..."} with:
  - 400: Rejections (validation, business rules)
  - 404: Referenced resource not found
  - 500: Storage failures (generic message, details only in the log)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/spending-tracker/analytics"
	"github.com/warp/spending-tracker/importer"
	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/logger"
	"github.com/warp/spending-tracker/workbook"
)

// Import route messages.
const (
	MsgImportInvalid = "File contains validation errors. Please fix them and try again."
	MsgImportFailed  = "Failed to import data. Please check the file format."
	MsgImportOptions = "Invalid import options"
	MsgExportFailed  = "Failed to export data"
	MsgInvalidBody   = "Invalid request body"
	MsgInvalidDate   = "Invalid date format"
	MsgInvalidLimit  = "Limit must be a non-negative integer"
)

// XLSXContentType is the media type of exported workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store ledger.TxStore

	accounts     *ledger.Accounts
	categories   *ledger.Categories
	transactions *ledger.Manager
	importer     *importer.Importer
	reports      *analytics.Service

	maxUpload       int64
	defaultCurrency string
	now             func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// HandlerOptions tunes a Handler. Zero values select the defaults.
type HandlerOptions struct {
	MaxUploadBytes  int64
	DefaultCurrency string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store ledger.TxStore, opts HandlerOptions) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = workbook.MaxUploadBytes
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = ledger.DefaultCurrency
	}
	return &Handler{
		Store:           store,
		accounts:        ledger.NewAccounts(store),
		categories:      ledger.NewCategories(store),
		transactions:    ledger.NewManager(store),
		importer:        importer.New(store),
		reports:         analytics.New(store),
		maxUpload:       opts.MaxUploadBytes,
		defaultCurrency: opts.DefaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts, newest first, with their total balance.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountListResponse{
		Accounts:     toAccountDTOs(accounts),
		TotalBalance: ledger.TotalBalance(accounts).String(),
	})
}

// GetAccount returns an account and every transaction touching it.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.AccountID(chi.URLParam(r, "id"))

	acc, err := h.accounts.Get(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txs, err := h.transactions.List(ctx, ledger.TransactionFilter{AccountID: id})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountDetailDTO{
		AccountDTO:   toAccountDTO(acc),
		Transactions: toTransactionDTOs(txs),
	})
}

// CreateAccount opens an account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = h.defaultCurrency
	}

	acc, err := h.accounts.Create(r.Context(), ledger.AccountInput{
		Name:     req.Name,
		Currency: req.Currency,
		Balance:  req.Balance,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acc))
}

// UpdateAccount renames an account. The balance is never touched.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	id := ledger.AccountID(chi.URLParam(r, "id"))
	err := h.accounts.Update(r.Context(), id, ledger.AccountInput{Name: req.Name, Currency: req.Currency})
	h.writeResult(w, r, err)
}

// DeleteAccount removes an account and its transactions.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.Delete(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	h.writeResult(w, r, err)
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns categories ordered by name, optionally by type.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	typ := ledger.CategoryType(strings.ToUpper(r.URL.Query().Get("type")))
	if typ != "" && !typ.Valid() {
		writeError(w, http.StatusBadRequest, "Type must be INCOME or EXPENSE", nil)
		return
	}
	categories, err := h.categories.List(r.Context(), typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTOs(categories))
}

// CreateCategory adds a category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.categories.Create(r.Context(), ledger.CategoryInput{
		Name:  req.Name,
		Type:  ledger.CategoryType(strings.ToUpper(req.Type)),
		Color: req.Color,
		Icon:  req.Icon,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(c))
}

// DeleteCategory removes a category.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	err := h.categories.Delete(r.Context(), ledger.CategoryID(chi.URLParam(r, "id")))
	h.writeResult(w, r, err)
}

// SeedCategories inserts the default categories into an empty ledger.
func (h *Handler) SeedCategories(w http.ResponseWriter, r *http.Request) {
	n, err := h.categories.SeedDefaults(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": n})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns transactions newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, msg := transactionFilter(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg, nil)
		return
	}
	txs, err := h.transactions.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns a transaction with its digital tax child.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	d, err := h.transactions.Get(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailDTO(d))
}

// CreateTransaction records a transaction and applies its balance effect.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := transactionInput(w, r)
	if !ok {
		return
	}
	t, err := h.transactions.Create(r.Context(), in)
	if err != nil {
		h.writeResult(w, r, err)
		return
	}
	dto := toTransactionDTO(t)
	writeJSON(w, http.StatusCreated, TransactionResult{Result: ledger.ResultOf(nil), Transaction: &dto})
}

// UpdateTransaction replaces a transaction's effect with the new one.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := transactionInput(w, r)
	if !ok {
		return
	}
	t, err := h.transactions.Update(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), in)
	if err != nil {
		h.writeResult(w, r, err)
		return
	}
	dto := toTransactionDTO(t)
	writeJSON(w, http.StatusOK, TransactionResult{Result: ledger.ResultOf(nil), Transaction: &dto})
}

// DeleteTransaction removes a transaction and reverts its balance effect.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	err := h.transactions.Delete(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	h.writeResult(w, r, err)
}

func transactionInput(w http.ResponseWriter, r *http.Request) (ledger.Input, bool) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return ledger.Input{}, false
	}
	in, err := req.Input()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ledger.Result{Error: MsgInvalidDate})
		return ledger.Input{}, false
	}
	return in, true
}

// transactionFilter reads the list query. A non-empty message rejects it.
func transactionFilter(r *http.Request) (ledger.TransactionFilter, string) {
	q := r.URL.Query()
	f := ledger.TransactionFilter{AccountID: ledger.AccountID(q.Get("accountId"))}

	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(bound.param); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return f, MsgInvalidDate
			}
			*bound.dst = &t
		}
	}

	for _, v := range q["type"] {
		typ := ledger.TransactionType(strings.ToUpper(v))
		if !typ.Valid() {
			return f, ledger.MsgInvalidType
		}
		f.Types = append(f.Types, typ)
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, MsgInvalidLimit
		}
		f.Limit = n
	}
	return f, ""
}

// =============================================================================
// WORKBOOK HANDLERS
// =============================================================================

// Import reconciles an uploaded workbook into the ledger.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	// Room for the multipart envelope around a file at the limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusBadRequest, workbook.ErrFileTooLarge.Message, nil)
		default:
			writeError(w, http.StatusBadRequest, workbook.ErrNoFile.Message, nil)
		}
		return
	}
	defer file.Close()

	if err := workbook.CheckUpload(header.Filename, header.Size, h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	opts := importer.DefaultOptions()
	if raw := r.FormValue("options"); raw != "" {
		var req ImportOptionsRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			writeError(w, http.StatusBadRequest, MsgImportOptions, err)
			return
		}
		if opts, err = req.Options(); err != nil {
			writeError(w, http.StatusBadRequest, MsgImportOptions, err)
			return
		}
	}

	parsed, err := workbook.ParseUpload(header.Filename, file)
	if errors.Is(err, workbook.ErrLegacyFormat) {
		log.Warn().Err(err).Str("file", header.Filename).Msg("legacy workbook rejected")
		writeError(w, http.StatusBadRequest, workbook.ErrLegacyFormat.Message, nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("workbook unreadable")
		writeError(w, http.StatusInternalServerError, MsgImportFailed, nil)
		return
	}
	if len(parsed.Errors) > 0 {
		writeJSON(w, http.StatusBadRequest, ParseErrorResponse{
			Success:     false,
			ParseErrors: parsed.Errors,
			Message:     MsgImportInvalid,
		})
		return
	}

	res, err := h.importer.Import(ctx, parsed.Data, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, MsgImportOptions, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export downloads every record as an .xlsx workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := workbook.Load(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := workbook.Write(&buf, snap); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, MsgExportFailed, nil)
		return
	}

	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+workbook.Filename(h.now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// Analytics returns the report for ?period= (default all time).
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reports.Summarize(r.Context(), analytics.ParsePeriod(r.URL.Query().Get("period")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Dashboard returns the landing page figures.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		TotalBalance:       d.TotalBalance.String(),
		AccountCount:       d.AccountCount,
		MonthlyIncome:      d.MonthlyIncome.String(),
		MonthlyExpenses:    d.MonthlyExpenses.String(),
		Accounts:           toAccountDTOs(d.Accounts),
		RecentTransactions: toTransactionDTOs(d.Recent),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Health pings the store when it supports it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase deletes every record. For development only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Reset is not supported by this store", nil)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := rs.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""
	log := logger.FromContext(r.Context())
	log.Warn().Msg("database reset")
	writeJSON(w, http.StatusOK, ledger.ResultOf(nil))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusOf maps an operation error to an HTTP status.
func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsRejection(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeResult writes the {success}/{error} outcome of an operation.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("operation failed")
	}
	writeJSON(w, status, ledger.ResultOf(err))
}

// fail writes err as {error}. Storage details stay in the log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, ledger.ResultOf(err).Error, nil)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody, err)
		return false
	}
	return true
}
