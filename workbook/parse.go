package workbook

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/spending-tracker/importer"
	"github.com/warp/spending-tracker/ledger"
)

// Validation messages.
const (
	MsgAccountNameRequired  = "Account name is required"
	MsgBalanceNumber        = "Balance must be a number"
	MsgCategoryNameRequired = "Category name is required"
	MsgCategoryType         = "Type must be INCOME or EXPENSE"
	MsgColor                = "Color must be a valid hex color"
	MsgTransactionType      = "Type must be INCOME, EXPENSE, or TRANSFER"
	MsgAmountPositive       = "Amount must be positive"
	MsgInvalidDate          = "Invalid date format"
	MsgTransferDestination  = "Transfer requires a destination account (To Account)"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Parsed is the content of an import workbook.
type Parsed struct {
	importer.Data
	Errors []importer.RowError
}

// Parse reads an .xlsx workbook. The error is non-nil only when r is not a
// readable workbook; row problems are reported in Parsed.Errors.
func Parse(r io.Reader) (Parsed, error) {
	return parseAt(r, time.Now().UTC())
}

// ParseUpload is Parse for an uploaded file called name. An .xls file that
// cannot be read (the legacy binary format) yields ErrLegacyFormat.
func ParseUpload(name string, r io.Reader) (Parsed, error) {
	p, err := Parse(r)
	if err != nil && isLegacy(name) {
		return Parsed{}, fmt.Errorf("%w: %v", ErrLegacyFormat, err)
	}
	return p, err
}

func parseAt(r io.Reader, now time.Time) (Parsed, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Parsed{}, fmt.Errorf("reading workbook: %w", err)
	}
	defer f.Close()

	p := Parsed{Errors: []importer.RowError{}}

	accounts, err := sheetRows(f, SheetAccounts)
	if err != nil {
		return Parsed{}, err
	}
	for i, row := range accounts {
		if a, ok := p.account(i+1, row); ok {
			p.Accounts = append(p.Accounts, a)
		}
	}

	categories, err := sheetRows(f, SheetCategories)
	if err != nil {
		return Parsed{}, err
	}
	for i, row := range categories {
		if c, ok := p.category(i+1, row); ok {
			p.Categories = append(p.Categories, c)
		}
	}

	transactions, err := sheetRows(f, SheetTransactions)
	if err != nil {
		return Parsed{}, err
	}
	for i, row := range transactions {
		if t, ok := p.transaction(i+1, row, now); ok {
			p.Transactions = append(p.Transactions, t)
		}
	}

	return p, nil
}

// sheetRows returns the raw cell values of sheet, header included. A
// missing sheet has no rows.
func sheetRows(f *excelize.File, sheet string) ([][]string, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (p *Parsed) fail(sheet importer.Sheet, rowNum int, msg string, data any) {
	p.Errors = append(p.Errors, importer.RowError{Sheet: sheet, Row: rowNum, Message: msg, Data: data})
}

// =============================================================================
// ROWS
// =============================================================================

func (p *Parsed) account(rowNum int, row []string) (importer.AccountRow, bool) {
	if rowNum == 1 {
		return importer.AccountRow{}, false
	}
	name, balance, currency := cell(row, 0), cell(row, 1), cell(row, 2)
	if name == "" && balance == "" && currency == "" {
		return importer.AccountRow{}, false
	}

	a := importer.AccountRow{Row: rowNum, Name: name, Balance: decimal.Zero, Currency: currency}
	if a.Currency == "" {
		a.Currency = ledger.DefaultCurrency
	}
	if name == "" {
		p.fail(importer.SheetAccounts, rowNum, MsgAccountNameRequired, a)
		return a, false
	}
	if balance != "" {
		b, err := decimal.NewFromString(balance)
		if err != nil {
			p.fail(importer.SheetAccounts, rowNum, MsgBalanceNumber, a)
			return a, false
		}
		a.Balance = b
	}
	return a, true
}

func (p *Parsed) category(rowNum int, row []string) (importer.CategoryRow, bool) {
	if rowNum == 1 {
		return importer.CategoryRow{}, false
	}
	name, typ := cell(row, 0), strings.ToUpper(cell(row, 1))
	if name == "" && typ == "" {
		return importer.CategoryRow{}, false
	}

	c := importer.CategoryRow{
		Row:   rowNum,
		Name:  name,
		Type:  ledger.CategoryType(typ),
		Color: cell(row, 2),
		Icon:  cell(row, 3),
	}
	if c.Color == "" {
		c.Color = ledger.DefaultCategoryColor
	}

	switch {
	case name == "":
		p.fail(importer.SheetCategories, rowNum, MsgCategoryNameRequired, c)
	case !c.Type.Valid():
		p.fail(importer.SheetCategories, rowNum, MsgCategoryType, c)
	case !hexColor.MatchString(c.Color):
		p.fail(importer.SheetCategories, rowNum, MsgColor, c)
	default:
		return c, true
	}
	return c, false
}

func (p *Parsed) transaction(rowNum int, row []string, now time.Time) (importer.TransactionRow, bool) {
	if rowNum == 1 {
		return importer.TransactionRow{}, false
	}
	typ, amount, account := strings.ToUpper(cell(row, 0)), cell(row, 1), cell(row, 4)
	if typ == "" && amount == "" && account == "" {
		return importer.TransactionRow{}, false
	}

	t := importer.TransactionRow{
		Row:           rowNum,
		Type:          ledger.TransactionType(typ),
		Description:   cell(row, 2),
		AccountName:   account,
		CategoryName:  cell(row, 5),
		ToAccountName: cell(row, 6),
	}
	amountErr := false
	if amount != "" {
		a, err := decimal.NewFromString(amount)
		amountErr = err != nil
		t.Amount = a
	}
	date, dateErr := parseDate(cell(row, 3), now)
	t.Date = date

	switch {
	case !t.Type.Valid():
		p.fail(importer.SheetTransactions, rowNum, MsgTransactionType, t)
	case amountErr || !t.Amount.IsPositive():
		p.fail(importer.SheetTransactions, rowNum, MsgAmountPositive, t)
	case dateErr != nil:
		p.fail(importer.SheetTransactions, rowNum, MsgInvalidDate, t)
	case account == "":
		p.fail(importer.SheetTransactions, rowNum, MsgAccountNameRequired, t)
	case t.Type == ledger.TxTransfer && t.ToAccountName == "":
		p.fail(importer.SheetTransactions, rowNum, MsgTransferDestination, t)
	default:
		return t, true
	}
	return t, false
}

// dateLayouts are the textual date forms accepted besides Excel serials.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseDate accepts an Excel serial number or a textual date. An empty
// cell means now.
func parseDate(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return ledger.TruncateDate(now), nil
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Serials are floats; snap to the nearest second before truncating.
		return ledger.TruncateDate(t.Round(ledger.DatePrecision)), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return ledger.TruncateDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}
