package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/spending-tracker/ledger"
)

// =============================================================================
// STRATEGIES
// =============================================================================

// Strategy decides what happens to a row that matches an existing record.
type Strategy string

const (
	StrategySkip   Strategy = "skip"
	StrategyUpdate Strategy = "update" // transactions: same as skip
	StrategyError  Strategy = "error"
)

// ErrInvalidStrategy is returned for a strategy other than skip, update or error.
var ErrInvalidStrategy = errors.New("invalid import strategy")

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategySkip || s == StrategyUpdate || s == StrategyError
}

// ParseStrategy parses a strategy name; empty means skip.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategySkip, nil
	}
	st := Strategy(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
	return st, nil
}

// Options selects a strategy per sheet.
type Options struct {
	Accounts     Strategy `json:"accounts"`
	Categories   Strategy `json:"categories"`
	Transactions Strategy `json:"transactions"`
}

// ParseOptions parses the per-sheet strategy names; empty names mean skip.
func ParseOptions(accounts, categories, transactions string) (Options, error) {
	var o Options
	var err error
	if o.Accounts, err = ParseStrategy(accounts); err != nil {
		return Options{}, fmt.Errorf("accounts: %w", err)
	}
	if o.Categories, err = ParseStrategy(categories); err != nil {
		return Options{}, fmt.Errorf("categories: %w", err)
	}
	if o.Transactions, err = ParseStrategy(transactions); err != nil {
		return Options{}, fmt.Errorf("transactions: %w", err)
	}
	return o, nil
}

// DefaultOptions skips every existing record.
func DefaultOptions() Options {
	return Options{Accounts: StrategySkip, Categories: StrategySkip, Transactions: StrategySkip}
}

// Validate rejects unknown strategies.
func (o Options) Validate() error {
	for _, s := range []Strategy{o.Accounts, o.Categories, o.Transactions} {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
		}
	}
	return nil
}

// =============================================================================
// ROWS
// =============================================================================

// Sheet names the worksheet a row came from.
type Sheet string

const (
	SheetAccounts     Sheet = "Accounts"
	SheetCategories   Sheet = "Categories"
	SheetTransactions Sheet = "Transactions"
)

// HeaderRows is the number of header rows above the body of every sheet.
const HeaderRows = 1

// rowNumber returns the sheet row of the i-th body row. Rows read from a
// workbook carry their own number (blank rows are dropped before import);
// rows built in code fall back to the index.
func rowNumber(sheetRow, i int) int {
	if sheetRow > 0 {
		return sheetRow
	}
	return i + HeaderRows + 1
}

// AccountRow is one validated row of the Accounts sheet.
type AccountRow struct {
	Row      int             `json:"-"` // sheet row, 0 if unknown
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// CategoryRow is one validated row of the Categories sheet.
type CategoryRow struct {
	Row   int                 `json:"-"`
	Name  string              `json:"name"`
	Type  ledger.CategoryType `json:"type"`
	Color string              `json:"color"`
	Icon  string              `json:"icon,omitempty"`
}

// TransactionRow is one validated row of the Transactions sheet. Accounts
// and category are referenced by name.
type TransactionRow struct {
	Row           int                    `json:"-"`
	Type          ledger.TransactionType `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	Description   string                 `json:"description,omitempty"`
	Date          time.Time              `json:"date"`
	AccountName   string                 `json:"accountName"`
	CategoryName  string                 `json:"categoryName,omitempty"`
	ToAccountName string                 `json:"toAccountName,omitempty"`
}

// Data is the typed content of an import workbook.
type Data struct {
	Accounts     []AccountRow
	Categories   []CategoryRow
	Transactions []TransactionRow
}

// =============================================================================
// RESULTS
// =============================================================================

// RowError reports a row that was not imported.
type RowError struct {
	Sheet   Sheet  `json:"sheet"`
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Stats counts the outcome of one sheet. It is an accumulator value:
// every method returns an updated copy.
type Stats struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

func (s Stats) created() Stats {
	s.Created++
	return s
}

func (s Stats) updated() Stats {
	s.Updated++
	return s
}

func (s Stats) skipped() Stats {
	s.Skipped++
	return s
}

func (s Stats) failed(e RowError) Stats {
	s.Errors = append(s.Errors[:len(s.Errors):len(s.Errors)], e)
	return s
}

func newStats() Stats {
	return Stats{Errors: []RowError{}}
}

// Result is the outcome of an import run.
type Result struct {
	Success      bool  `json:"success"`
	Accounts     Stats `json:"accounts"`
	Categories   Stats `json:"categories"`
	Transactions Stats `json:"transactions"`
}

// ErrorCount returns the number of row errors over all sheets.
func (r Result) ErrorCount() int {
	return len(r.Accounts.Errors) + len(r.Categories.Errors) + len(r.Transactions.Errors)
}
