package workbook

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/spending-tracker/importer"
	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/ledger/store"
)

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newWorkbook builds an .xlsx in memory with the given sheets and rows.
func newWorkbook(t *testing.T, sheets map[string][][]any) *bytes.Buffer {
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
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

// =============================================================================
// UPLOAD BOUNDARY
// =============================================================================

func TestCheckUpload(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int64
		limit   int64
		wantErr error
	}{
		{"xlsx accepted", "data.xlsx", 1024, 0, nil},
		{"xls accepted, any case", "DATA.XLS", 1024, 0, nil},
		{"no file", "", 0, 0, ErrNoFile},
		{"csv rejected", "data.csv", 10, 0, ErrFileType},
		{"over default limit", "big.xlsx", MaxUploadBytes + 1, 0, ErrFileTooLarge},
		{"exactly at limit", "big.xlsx", MaxUploadBytes, 0, nil},
		{"custom limit", "data.xlsx", 2048, 1024, ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUpload(tt.file, tt.size, tt.limit)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUploadErrorMessages(t *testing.T) {
	assert.Equal(t, "No file provided", ErrNoFile.Error())
	assert.Equal(t, "File too large. Maximum size is 10MB.", ErrFileTooLarge.Error())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "spending-tracker-2025-06-01.xlsx", Filename(testNow))
}

// =============================================================================
// PARSE
// =============================================================================

func TestParse_ValidRows(t *testing.T) {
	// GIVEN: A workbook with one valid row per sheet and lower-case types
	buf := newWorkbook(t, map[string][][]any{
		SheetAccounts: {
			{"Name", "Balance", "Currency"},
			{"Checking", 1500.5, "USD"},
			{"Cash", "", ""},
		},
		SheetCategories: {
			{"Name", "Type", "Color", "Icon"},
			{"Food", "expense", "#FF0000", "utensils"},
			{"Salary", "INCOME"},
		},
		SheetTransactions: {
			{"Type", "Amount", "Description", "Date", "Account", "Category", "To Account"},
			{"expense", 12.34, "Lunch", "2025-03-10", "Checking", "Food"},
			{"TRANSFER", 100, "", "2025-03-11", "Checking", "", "Cash"},
		},
	})

	// WHEN: Parsed
	p, err := parseAt(buf, testNow)
	require.NoError(t, err)

	// THEN: Every row is typed, defaults are filled in and there are no errors
	assert.Empty(t, p.Errors)
	require.Len(t, p.Accounts, 2)
	assert.Equal(t, "Checking", p.Accounts[0].Name)
	assert.True(t, dec("1500.5").Equal(p.Accounts[0].Balance))
	assert.Equal(t, "USD", p.Accounts[0].Currency)
	assert.True(t, p.Accounts[1].Balance.IsZero())
	assert.Equal(t, ledger.DefaultCurrency, p.Accounts[1].Currency)

	require.Len(t, p.Categories, 2)
	assert.Equal(t, ledger.CategoryExpense, p.Categories[0].Type)
	assert.Equal(t, "utensils", p.Categories[0].Icon)
	assert.Equal(t, ledger.DefaultCategoryColor, p.Categories[1].Color)

	require.Len(t, p.Transactions, 2)
	tx := p.Transactions[0]
	assert.Equal(t, ledger.TxExpense, tx.Type)
	assert.True(t, dec("12.34").Equal(tx.Amount))
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, "Food", tx.CategoryName)
	assert.Equal(t, "Cash", p.Transactions[1].ToAccountName)
}

func TestParse_ValidationErrors(t *testing.T) {
	// GIVEN: Rows that each break one rule
	buf := newWorkbook(t, map[string][][]any{
		SheetAccounts: {
			{"Name", "Balance", "Currency"},
			{"", 10},
			{"Savings", "lots"},
		},
		SheetCategories: {
			{"Name", "Type", "Color", "Icon"},
			{"", "EXPENSE"},
			{"Misc", "TRANSFER"},
			{"Rent", "EXPENSE", "red"},
		},
		SheetTransactions: {
			{"Type", "Amount", "Description", "Date", "Account", "Category", "To Account"},
			{"REFUND", 10, "", "2025-03-10", "Checking"},
			{"EXPENSE", -5, "", "2025-03-10", "Checking"},
			{"EXPENSE", 5, "", "yesterday", "Checking"},
			{"EXPENSE", 5, "", "2025-03-10", ""},
			{"TRANSFER", 5, "", "2025-03-10", "Checking"},
		},
	})

	// WHEN: Parsed
	p, err := parseAt(buf, testNow)
	require.NoError(t, err)

	// THEN: No row survives and each error names its sheet row
	assert.Empty(t, p.Accounts)
	assert.Empty(t, p.Categories)
	assert.Empty(t, p.Transactions)

	type got struct {
		sheet importer.Sheet
		row   int
		msg   string
	}
	var errs []got
	for _, e := range p.Errors {
		errs = append(errs, got{e.Sheet, e.Row, e.Message})
	}
	assert.Equal(t, []got{
		{importer.SheetAccounts, 2, MsgAccountNameRequired},
		{importer.SheetAccounts, 3, MsgBalanceNumber},
		{importer.SheetCategories, 2, MsgCategoryNameRequired},
		{importer.SheetCategories, 3, MsgCategoryType},
		{importer.SheetCategories, 4, MsgColor},
		{importer.SheetTransactions, 2, MsgTransactionType},
		{importer.SheetTransactions, 3, MsgAmountPositive},
		{importer.SheetTransactions, 4, MsgInvalidDate},
		{importer.SheetTransactions, 5, MsgAccountNameRequired},
		{importer.SheetTransactions, 6, MsgTransferDestination},
	}, errs)
}

func TestParse_MissingSheetsAndEmptyRows(t *testing.T) {
	// GIVEN: Only an Accounts sheet, with a blank row in the middle
	buf := newWorkbook(t, map[string][][]any{
		SheetAccounts: {
			{"Name", "Balance", "Currency"},
			{"Checking", 1},
			{"", "", ""},
			{"Cash", 2},
		},
	})

	// WHEN: Parsed
	p, err := parseAt(buf, testNow)
	require.NoError(t, err)

	// THEN: The blank row is ignored and the missing sheets yield nothing
	assert.Empty(t, p.Errors)
	require.Len(t, p.Accounts, 2)
	assert.Equal(t, 2, p.Accounts[0].Row)
	assert.Equal(t, 4, p.Accounts[1].Row, "rows keep their sheet number")
	assert.Empty(t, p.Categories)
	assert.Empty(t, p.Transactions)
}

func TestImport_ErrorsReportSheetRows(t *testing.T) {
	// GIVEN: Blank rows before an existing account and an unknown account
	buf := newWorkbook(t, map[string][][]any{
		SheetAccounts: {
			{"Name", "Balance", "Currency"},
			{"", "", ""},
			{"Checking", 1},
		},
		SheetTransactions: {
			{"Type", "Amount", "Description", "Date", "Account"},
			{"INCOME", 5, "Tip", "2025-05-01", "Checking"},
			{"", "", "", "", ""},
			{"", "", "", "", ""},
			{"EXPENSE", 3, "Taxi", "2025-05-02", "Wallet"},
		},
	})
	p, err := parseAt(buf, testNow)
	require.NoError(t, err)
	require.Empty(t, p.Errors)

	mem := store.NewMemory()
	_, err = ledger.NewAccounts(mem).Create(context.Background(), ledger.AccountInput{Name: "Checking"})
	require.NoError(t, err)

	// WHEN: Imported with the error strategy for accounts
	opts := importer.DefaultOptions()
	opts.Accounts = importer.StrategyError
	res, err := importer.New(mem).Import(context.Background(), p.Data, opts)
	require.NoError(t, err)

	// THEN: Errors point at the rows as numbered in the sheet
	require.Len(t, res.Accounts.Errors, 1)
	assert.Equal(t, 3, res.Accounts.Errors[0].Row)
	require.Len(t, res.Transactions.Errors, 1)
	assert.Equal(t, 5, res.Transactions.Errors[0].Row)
	assert.Equal(t, 1, res.Transactions.Created)
}

func TestParse_EmptyDateMeansNow(t *testing.T) {
	buf := newWorkbook(t, map[string][][]any{
		SheetTransactions: {
			{"Type", "Amount", "Description", "Date", "Account"},
			{"INCOME", 5, "Tip", "", "Cash"},
		},
	})

	p, err := parseAt(buf, testNow)
	require.NoError(t, err)
	require.Len(t, p.Transactions, 1)
	assert.Equal(t, testNow, p.Transactions[0].Date)
}

func TestParse_NotAWorkbook(t *testing.T) {
	_, err := Parse(bytes.NewBufferString("name,balance\nChecking,1"))
	assert.Error(t, err)
}

func TestParseUpload_LegacyFormat(t *testing.T) {
	legacy := []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")

	_, err := ParseUpload("budget.XLS", bytes.NewReader(legacy))
	assert.ErrorIs(t, err, ErrLegacyFormat)

	_, err = ParseUpload("budget.xlsx", bytes.NewReader(legacy))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLegacyFormat)

	// A readable workbook named .xls parses normally
	buf := newWorkbook(t, map[string][][]any{SheetAccounts: {{"Name"}, {"Cash"}}})
	p, err := ParseUpload("budget.xls", buf)
	require.NoError(t, err)
	assert.Len(t, p.Accounts, 1)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-10", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"2025-03-10T08:30:00Z", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)},
		{"2025-03-10 08:30:00", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)},
		{"45726", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"45726.5", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		{"2025-03-10T08:30:00.75Z", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, testNow)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := parseDate("10/03/2025", testNow)
	assert.Error(t, err)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// GIVEN: A store with two accounts, a category and two transactions
	mem := store.NewMemory()
	accounts := ledger.NewAccounts(mem)
	checking, err := accounts.Create(ctx, ledger.AccountInput{Name: "Checking", Balance: dec("1000.25")})
	require.NoError(t, err)
	_, err = accounts.Create(ctx, ledger.AccountInput{Name: "Bank", Currency: "USD"})
	require.NoError(t, err)
	bank := findAccount(t, mem, "Bank")

	food, err := ledger.NewCategories(mem).Create(ctx, ledger.CategoryInput{Name: "Food", Type: ledger.CategoryExpense, Icon: "utensils"})
	require.NoError(t, err)

	manager := ledger.NewManager(mem)
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	_, err = manager.Create(ctx, ledger.Input{
		Type: ledger.TxExpense, Amount: dec("12.5"), Description: "Lunch",
		Date: &day, AccountID: checking.ID, CategoryID: food.ID,
	})
	require.NoError(t, err)
	later := day.AddDate(0, 0, 1)
	_, err = manager.Create(ctx, ledger.Input{
		Type: ledger.TxTransfer, Amount: dec("100"), Date: &later,
		AccountID: checking.ID, ToAccountID: bank.ID,
	})
	require.NoError(t, err)

	// WHEN: Exported and parsed back
	snap, err := Load(ctx, mem)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))

	p, err := parseAt(&buf, testNow)
	require.NoError(t, err)

	// THEN: Every row survives with names in place of identifiers
	assert.Empty(t, p.Errors)

	require.Len(t, p.Accounts, 2)
	assert.Equal(t, "Bank", p.Accounts[0].Name, "accounts are sorted by name")
	assert.Equal(t, "USD", p.Accounts[0].Currency)
	assert.True(t, dec("100").Equal(p.Accounts[0].Balance))
	assert.Equal(t, "Checking", p.Accounts[1].Name)
	assert.True(t, dec("887.75").Equal(p.Accounts[1].Balance))

	require.Len(t, p.Categories, 1)
	assert.Equal(t, importer.CategoryRow{Row: 2, Name: "Food", Type: ledger.CategoryExpense, Color: ledger.DefaultCategoryColor, Icon: "utensils"}, p.Categories[0])

	require.Len(t, p.Transactions, 2)
	transfer, expense := p.Transactions[0], p.Transactions[1]
	assert.Equal(t, ledger.TxTransfer, transfer.Type, "newest first")
	assert.Equal(t, "Checking", transfer.AccountName)
	assert.Equal(t, "Bank", transfer.ToAccountName)
	assert.Empty(t, transfer.CategoryName)
	assert.True(t, later.Equal(transfer.Date), "got %s", transfer.Date)

	assert.Equal(t, "Lunch", expense.Description)
	assert.Equal(t, "Food", expense.CategoryName)
	assert.True(t, dec("12.5").Equal(expense.Amount))
	assert.WithinDuration(t, day, expense.Date, time.Second)
}

func TestBuild_SheetLayout(t *testing.T) {
	f, err := Build(Snapshot{})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetAccounts, SheetCategories, SheetTransactions}, f.GetSheetList())

	rows, err := f.GetRows(SheetTransactions)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Type", "Amount", "Description", "Date", "Account", "Category", "To Account"}, rows[0])

	width, err := f.GetColWidth(SheetTransactions, "C")
	require.NoError(t, err)
	assert.Equal(t, 30.0, width)
}

func TestExport_ReimportSkipsExisting(t *testing.T) {
	ctx := context.Background()

	// GIVEN: An expense recorded without a date, stamped with a sub-second clock
	mem := store.NewMemory()
	acc, err := ledger.NewAccounts(mem).Create(ctx, ledger.AccountInput{Name: "Checking", Balance: dec("1000")})
	require.NoError(t, err)
	clock := time.Date(2025, time.June, 18, 10, 22, 48, 836394369, time.UTC)
	manager := ledger.NewManager(mem).WithClock(func() time.Time { return clock })
	created, err := manager.Create(ctx, ledger.Input{Type: ledger.TxExpense, Amount: dec("200"), AccountID: acc.ID})
	require.NoError(t, err)
	assert.True(t, created.Date.Equal(clock.Truncate(time.Second)), "dates keep whole seconds")

	// WHEN: The store is exported and the backup imported back into it
	snap, err := Load(ctx, mem)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))
	p, err := parseAt(&buf, testNow)
	require.NoError(t, err)
	require.Empty(t, p.Errors)

	res, err := importer.New(mem).Import(ctx, p.Data, importer.DefaultOptions())
	require.NoError(t, err)

	// THEN: Every row is recognised and the balance is unchanged
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Accounts.Skipped)
	assert.Equal(t, 0, res.Transactions.Created)
	assert.Equal(t, 1, res.Transactions.Skipped)
	assert.True(t, dec("800").Equal(findAccount(t, mem, "Checking").Balance))
}

func findAccount(t *testing.T, s ledger.Store, name string) ledger.Account {
	t.Helper()
	list, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	for _, a := range list {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("account %q not found", name)
	return ledger.Account{}
}
