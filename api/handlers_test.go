/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Status code mapping (rejection 400, not found 404, storage failure 500)
- Transaction lifecycle over HTTP, including the digital tax child
- Workbook import (multipart) and export (download)
- Reports and demo scenarios
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/spending-tracker/importer"
	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/ledger/store"
	"github.com/warp/spending-tracker/workbook"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t      *testing.T
	mem    *store.Memory
	h      *Handler
	router http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	return newTestServer(t, mem, mem)
}

func newTestServer(t *testing.T, mem *store.Memory, s ledger.TxStore) *testServer {
	h := NewHandler(s, HandlerOptions{})
	h.now = func() time.Time { return time.Date(2025, time.June, 18, 10, 0, 0, 0, time.UTC) }
	return &testServer{
		t:      t,
		mem:    mem,
		h:      h,
		router: NewRouter(h, RouterOptions{Logger: zerolog.Nop()}),
	}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) account(name, balance string) AccountDTO {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/accounts", map[string]any{"name": name, "balance": balance})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[AccountDTO](ts.t, rec)
}

func (ts *testServer) balance(id string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodGet, "/api/accounts/"+id, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[AccountDetailDTO](ts.t, rec).Balance
}

// =============================================================================
// ACCOUNTS / CATEGORIES
// =============================================================================

func TestAccounts_CreateListUpdate(t *testing.T) {
	ts := setupTestServer(t)

	// GIVEN: Two accounts, one without a currency
	checking := ts.account("Checking", "1500.50")
	ts.account("Cash", "0")
	assert.Equal(t, ledger.DefaultCurrency, checking.Currency)
	assert.Equal(t, "1500.5", checking.Balance)

	// WHEN: Listing
	rec := ts.do(http.MethodGet, "/api/accounts", nil)

	// THEN: Both are returned with the total balance
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[AccountListResponse](t, rec)
	assert.Len(t, list.Accounts, 2)
	assert.Equal(t, "1500.5", list.TotalBalance)

	// WHEN: Renamed with a different balance in the body
	rec = ts.do(http.MethodPut, "/api/accounts/"+checking.ID, map[string]any{"name": "Main", "balance": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	// THEN: The balance is untouched
	assert.Equal(t, "1500.5", ts.balance(checking.ID))
}

func TestAccounts_Errors(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(http.MethodPost, "/api/accounts", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.MsgAccountNameRequired, decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodGet, "/api/accounts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ledger.MsgAccountNotFound, decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodDelete, "/api/accounts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Account not found"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader("{"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgInvalidBody, decodeBody[ErrorResponse](t, w).Error)
}

func TestCategories_CreateListSeed(t *testing.T) {
	ts := setupTestServer(t)

	// GIVEN: Defaults seeded into an empty ledger
	rec := ts.do(http.MethodPost, "/api/categories/seed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(ledger.DefaultCategories), decodeBody[map[string]int](t, rec)["created"])

	// WHEN: Seeding again
	rec = ts.do(http.MethodPost, "/api/categories/seed", nil)
	assert.Equal(t, 0, decodeBody[map[string]int](t, rec)["created"])

	// THEN: A duplicate is rejected, a new one is created, type filter works
	rec = ts.do(http.MethodPost, "/api/categories", map[string]any{"name": "comida", "type": "expense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.MsgCategoryExists, decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodPost, "/api/categories", map[string]any{"name": "Mascotas", "type": "EXPENSE", "icon": "dog"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[CategoryDTO](t, rec)
	assert.Equal(t, ledger.DefaultCategoryColor, created.Color)

	rec = ts.do(http.MethodGet, "/api/categories?type=income", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range decodeBody[[]CategoryDTO](t, rec) {
		assert.Equal(t, "INCOME", c.Type)
	}

	rec = ts.do(http.MethodGet, "/api/categories?type=transfer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/categories/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactions_DigitalTaxLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	card := ts.account("Card", "1000")

	// WHEN: An expense with digital tax is created
	rec := ts.do(http.MethodPost, "/api/transactions", map[string]any{
		"type":            "EXPENSE",
		"amount":          200,
		"description":     "Netflix",
		"date":            "2025-06-01",
		"accountId":       card.ID,
		"applyDigitalTax": true,
	})

	// THEN: 201 with the parent, and both rows hit the balance
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[TransactionResult](t, rec)
	assert.True(t, res.Success)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, "2025-06-01T00:00:00Z", res.Transaction.Date)
	assert.Equal(t, "780", ts.balance(card.ID))

	// WHEN: Fetched
	rec = ts.do(http.MethodGet, "/api/transactions/"+res.Transaction.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[TransactionDTO](t, rec)

	// THEN: The tax child is attached and cannot be deleted directly
	require.NotNil(t, detail.DigitalTax)
	assert.Equal(t, "20", detail.DigitalTax.Amount)
	assert.True(t, detail.DigitalTax.IsDigitalTax)
	assert.Equal(t, res.Transaction.ID, detail.DigitalTax.ParentTransactionID)

	rec = ts.do(http.MethodDelete, "/api/transactions/"+detail.DigitalTax.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"`+ledger.MsgTaxDelete+`"}`, rec.Body.String())

	// WHEN: Updated to 300 and then deleted
	rec = ts.do(http.MethodPut, "/api/transactions/"+res.Transaction.ID, map[string]any{
		"type": "EXPENSE", "amount": "300", "accountId": card.ID, "applyDigitalTax": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "670", ts.balance(card.ID))

	rec = ts.do(http.MethodDelete, "/api/transactions/"+res.Transaction.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	// THEN: The balance is back where it started
	assert.Equal(t, "1000", ts.balance(card.ID))
}

func TestTransactions_Rejections(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.account("A", "100")

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantError  string
	}{
		{"missing amount", map[string]any{"type": "INCOME", "accountId": a.ID}, http.StatusBadRequest, ledger.MsgRequired},
		{"negative amount", map[string]any{"type": "INCOME", "amount": -5, "accountId": a.ID}, http.StatusBadRequest, ledger.MsgAmountPositive},
		{"self transfer", map[string]any{"type": "TRANSFER", "amount": 5, "accountId": a.ID, "toAccountId": a.ID}, http.StatusBadRequest, ledger.MsgSelfTransfer},
		{"bad date", map[string]any{"type": "INCOME", "amount": 5, "accountId": a.ID, "date": "June 1st"}, http.StatusBadRequest, MsgInvalidDate},
		{"unknown account", map[string]any{"type": "INCOME", "amount": 5, "accountId": "nope"}, http.StatusNotFound, ledger.MsgAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			res := decodeBody[TransactionResult](t, rec)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
		})
	}

	assert.Equal(t, "100", ts.balance(a.ID), "rejections change nothing")
}

func TestTransactions_StorageFailureIsGeneric(t *testing.T) {
	// GIVEN: A store whose units of work always fail
	mem := store.NewMemory()
	ts := newTestServer(t, mem, brokenStore{mem})
	a := ts.account("A", "100")

	// WHEN: A transaction is created
	rec := ts.do(http.MethodPost, "/api/transactions", map[string]any{"type": "INCOME", "amount": 5, "accountId": a.ID})

	// THEN: 500 with the generic message only
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"`+ledger.MsgGenericFailure+`"}`, rec.Body.String())
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) WithTx(context.Context, func(ledger.Store) error) error {
	return errors.New("database is locked")
}

func TestTransactions_ListFilters(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.account("A", "0")
	b := ts.account("B", "0")

	for _, body := range []map[string]any{
		{"type": "INCOME", "amount": 10, "accountId": a.ID, "date": "2025-01-10"},
		{"type": "EXPENSE", "amount": 3, "accountId": a.ID, "date": "2025-02-10"},
		{"type": "TRANSFER", "amount": 2, "accountId": a.ID, "toAccountId": b.ID, "date": "2025-03-10"},
	} {
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/transactions", body).Code)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?accountId=" + b.ID, 1},
		{"?type=income&type=expense", 2},
		{"?from=2025-02-01", 2},
		{"?to=2025-01-31", 1},
		{"?limit=1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/transactions"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, decodeBody[[]TransactionDTO](t, rec), tt.want)
		})
	}

	for _, bad := range []string{"?type=refund", "?from=yesterday", "?limit=-1"} {
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/transactions"+bad, nil).Code, bad)
	}
}

// =============================================================================
// IMPORT / EXPORT
// =============================================================================

func xlsx(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func (ts *testServer) upload(filename string, content []byte, options string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(ts.t, err)
		_, err = part.Write(content)
		require.NoError(ts.t, err)
	}
	if options != "" {
		require.NoError(ts.t, mw.WriteField("options", options))
	}
	require.NoError(ts.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestImport_Success(t *testing.T) {
	ts := setupTestServer(t)
	ts.account("Checking", "999")

	// GIVEN: A workbook updating Checking and adding income to it
	file := xlsx(t, map[string][][]any{
		workbook.SheetAccounts: {
			{"Name", "Balance", "Currency"},
			{"checking", 100, "PYG"},
		},
		workbook.SheetTransactions: {
			{"Type", "Amount", "Description", "Date", "Account"},
			{"INCOME", 50, "Bonus", "2025-05-01", "Checking"},
		},
	})

	// WHEN: Uploaded with the accounts update strategy
	rec := ts.upload("data.xlsx", file, `{"accounts":"update"}`)

	// THEN: The reset balance plus the imported income
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[importer.Result](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Accounts.Updated)
	assert.Equal(t, 1, res.Transactions.Created)

	list := decodeBody[AccountListResponse](t, ts.do(http.MethodGet, "/api/accounts", nil))
	require.Len(t, list.Accounts, 1)
	assert.Equal(t, "150", list.Accounts[0].Balance)
}

func TestImport_Rejections(t *testing.T) {
	ts := setupTestServer(t)
	valid := xlsx(t, map[string][][]any{workbook.SheetAccounts: {{"Name"}, {"Cash"}}})

	tests := []struct {
		name      string
		filename  string
		content   []byte
		options   string
		wantCode  int
		wantError string
	}{
		{"no file", "", nil, "", http.StatusBadRequest, workbook.ErrNoFile.Message},
		{"wrong type", "data.csv", []byte("a,b"), "", http.StatusBadRequest, workbook.ErrFileType.Message},
		{"bad options json", "data.xlsx", valid, "{", http.StatusBadRequest, MsgImportOptions},
		{"unknown strategy", "data.xlsx", valid, `{"transactions":"merge"}`, http.StatusBadRequest, MsgImportOptions},
		{"not a workbook", "data.xlsx", []byte("garbage"), "", http.StatusInternalServerError, MsgImportFailed},
		{"legacy xls", "data.xls", []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1"), "", http.StatusBadRequest, workbook.ErrLegacyFormat.Message},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.upload(tt.filename, tt.content, tt.options)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantError, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestImport_ParseErrorsAbortBeforeWriting(t *testing.T) {
	ts := setupTestServer(t)

	// GIVEN: One good account row and one bad transaction row
	file := xlsx(t, map[string][][]any{
		workbook.SheetAccounts: {{"Name", "Balance"}, {"Cash", 10}},
		workbook.SheetTransactions: {
			{"Type", "Amount", "Description", "Date", "Account"},
			{"GIFT", 5, "", "2025-05-01", "Cash"},
		},
	})

	// WHEN: Uploaded
	rec := ts.upload("data.xlsx", file, "")

	// THEN: 400 with the row errors and nothing imported
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ParseErrorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, MsgImportInvalid, resp.Message)
	require.Len(t, resp.ParseErrors, 1)
	assert.Equal(t, importer.SheetTransactions, resp.ParseErrors[0].Sheet)
	assert.Equal(t, 2, resp.ParseErrors[0].Row)

	list := decodeBody[AccountListResponse](t, ts.do(http.MethodGet, "/api/accounts", nil))
	assert.Empty(t, list.Accounts)
}

func TestExport_Download(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.account("Checking", "10")
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/transactions", map[string]any{
		"type": "EXPENSE", "amount": 4, "accountId": a.ID, "date": "2025-06-02",
	}).Code)

	rec := ts.do(http.MethodGet, "/api/export", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="spending-tracker-2025-06-18.xlsx"`, rec.Header().Get("Content-Disposition"))

	parsed, err := workbook.Parse(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, parsed.Errors)
	require.Len(t, parsed.Accounts, 1)
	assert.Equal(t, "6", parsed.Accounts[0].Balance.String())
	require.Len(t, parsed.Transactions, 1)
	assert.Equal(t, "Checking", parsed.Transactions[0].AccountName)
}

// =============================================================================
// REPORTS / SCENARIOS / ADMIN
// =============================================================================

func TestReports(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.account("A", "100")
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/transactions", map[string]any{
		"type": "EXPENSE", "amount": 30, "accountId": a.ID,
	}).Code)

	rec := ts.do(http.MethodGet, "/api/analytics?period=bogus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "all", sum["period"])
	assert.Equal(t, "All time", sum["periodLabel"])
	assert.Equal(t, "-30", sum["netSavings"])

	rec = ts.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[DashboardDTO](t, rec)
	assert.Equal(t, "70", d.TotalBalance)
	assert.Equal(t, 1, d.AccountCount)
	assert.Len(t, d.RecentTransactions, 1)
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		id       string
		balances map[string]string
	}{
		{"getting-started", map[string]string{"Cuenta Corriente": "2500000", "Efectivo": "300000"}},
		{"household", map[string]string{"Cuenta Corriente": "13400000", "Ahorros": "4000000"}},
		{"digital-services", map[string]string{"Tarjeta de Crédito": "17.74", "Cuenta Corriente": "1380"}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			// GIVEN: Leftover data from a previous run
			ts := setupTestServer(t)
			ts.account("Leftover", "1")

			// WHEN: The scenario is loaded
			rec := ts.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": tt.id})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			// THEN: Only the scenario's accounts exist, with derived balances
			list := decodeBody[AccountListResponse](t, ts.do(http.MethodGet, "/api/accounts", nil))
			got := make(map[string]string)
			for _, a := range list.Accounts {
				got[a.Name] = a.Balance
			}
			assert.Equal(t, tt.balances, got)

			current := decodeBody[ScenarioDTO](t, ts.do(http.MethodGet, "/api/scenarios/current", nil))
			assert.Equal(t, tt.id, current.ID)
		})
	}

	ts := setupTestServer(t)
	rec := ts.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, ts.do(http.MethodGet, "/api/scenarios", nil)), len(Scenarios()))
}

func TestAdmin_HealthAndReset(t *testing.T) {
	ts := setupTestServer(t)
	ts.account("A", "1")

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/health", nil).Code)

	rec := ts.do(http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[AccountListResponse](t, ts.do(http.MethodGet, "/api/accounts", nil))
	assert.Empty(t, list.Accounts)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/nothing-here", nil).Code)
}
