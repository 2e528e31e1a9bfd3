/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts and balances are decimal strings in responses ("1500.50").
  Requests accept either a JSON number or a string.

DATES:
  Responses use RFC 3339. Requests accept RFC 3339 or YYYY-MM-DD.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/spending-tracker/importer"
	"github.com/warp/spending-tracker/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"createdAt"`
}

// AccountDetailDTO is an account with its transaction history.
type AccountDetailDTO struct {
	AccountDTO
	Transactions []TransactionDTO `json:"transactions"`
}

// AccountListResponse is the account list with the total balance.
type AccountListResponse struct {
	Accounts     []AccountDTO `json:"accounts"`
	TotalBalance string       `json:"totalBalance"`
}

// AccountRequest is the body of account create and update.
type AccountRequest struct {
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"` // create only
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Currency:  a.Currency,
		Balance:   a.Balance.String(),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toAccountDTOs(accounts []ledger.Account) []AccountDTO {
	out := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountDTO(a)
	}
	return out
}

// =============================================================================
// CATEGORIES
// =============================================================================

// CategoryDTO represents a category in API responses.
type CategoryDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// CategoryRequest is the body of category create.
type CategoryRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

func toCategoryDTO(c ledger.Category) CategoryDTO {
	return CategoryDTO{
		ID:    string(c.ID),
		Name:  c.Name,
		Type:  string(c.Type),
		Color: c.Color,
		Icon:  c.Icon,
	}
}

func toCategoryDTOs(categories []ledger.Category) []CategoryDTO {
	out := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		out[i] = toCategoryDTO(c)
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a transaction in API responses.
type TransactionDTO struct {
	ID                  string          `json:"id"`
	Type                string          `json:"type"`
	Amount              string          `json:"amount"`
	Description         string          `json:"description,omitempty"`
	Date                string          `json:"date"`
	AccountID           string          `json:"accountId"`
	ToAccountID         string          `json:"toAccountId,omitempty"`
	CategoryID          string          `json:"categoryId,omitempty"`
	IsDigitalTax        bool            `json:"isDigitalTax"`
	ParentTransactionID string          `json:"parentTransactionId,omitempty"`
	CreatedAt           string          `json:"createdAt"`
	DigitalTax          *TransactionDTO `json:"digitalTaxTransaction,omitempty"`
}

// TransactionRequest is the body of transaction create and update.
type TransactionRequest struct {
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Date            string          `json:"date"` // empty = now (create) or unchanged (update)
	AccountID       string          `json:"accountId"`
	CategoryID      string          `json:"categoryId"`
	ToAccountID     string          `json:"toAccountId"`
	ApplyDigitalTax bool            `json:"applyDigitalTax"`
}

// TransactionResult is the outcome of a lifecycle operation. Exactly one
// of Success or Error is set.
type TransactionResult struct {
	ledger.Result
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

// Input converts the request into a lifecycle input.
func (r TransactionRequest) Input() (ledger.Input, error) {
	in := ledger.Input{
		Type:            ledger.TransactionType(strings.ToUpper(strings.TrimSpace(r.Type))),
		Amount:          r.Amount,
		Description:     strings.TrimSpace(r.Description),
		AccountID:       ledger.AccountID(r.AccountID),
		CategoryID:      ledger.CategoryID(r.CategoryID),
		ToAccountID:     ledger.AccountID(r.ToAccountID),
		ApplyDigitalTax: r.ApplyDigitalTax,
	}
	if r.Date != "" {
		d, err := parseDate(r.Date)
		if err != nil {
			return ledger.Input{}, err
		}
		in.Date = &d
	}
	return in, nil
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:                  string(t.ID),
		Type:                string(t.Type),
		Amount:              t.Amount.String(),
		Description:         t.Description,
		Date:                t.Date.Format(time.RFC3339),
		AccountID:           string(t.AccountID),
		ToAccountID:         string(t.ToAccountID),
		CategoryID:          string(t.CategoryID),
		IsDigitalTax:        t.IsDigitalTax,
		ParentTransactionID: string(t.ParentID),
		CreatedAt:           t.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		out[i] = toTransactionDTO(t)
	}
	return out
}

func toDetailDTO(d ledger.Detail) TransactionDTO {
	dto := toTransactionDTO(d.Transaction)
	if d.Tax != nil {
		tax := toTransactionDTO(*d.Tax)
		dto.DigitalTax = &tax
	}
	return dto
}

// =============================================================================
// IMPORT / DASHBOARD
// =============================================================================

// ImportOptionsRequest is the JSON "options" form field of an import.
// Missing strategies default to skip.
type ImportOptionsRequest struct {
	Accounts     string `json:"accounts"`
	Categories   string `json:"categories"`
	Transactions string `json:"transactions"`
}

// Options converts the request into importer options.
func (r ImportOptionsRequest) Options() (importer.Options, error) {
	return importer.ParseOptions(r.Accounts, r.Categories, r.Transactions)
}

// ParseErrorResponse rejects a workbook that failed row validation.
type ParseErrorResponse struct {
	Success     bool                `json:"success"`
	ParseErrors []importer.RowError `json:"parseErrors"`
	Message     string              `json:"message"`
}

// DashboardDTO is the landing page report.
type DashboardDTO struct {
	TotalBalance       string           `json:"totalBalance"`
	AccountCount       int              `json:"accountCount"`
	MonthlyIncome      string           `json:"monthlyIncome"`
	MonthlyExpenses    string           `json:"monthlyExpenses"`
	Accounts           []AccountDTO     `json:"accounts"`
	RecentTransactions []TransactionDTO `json:"recentTransactions"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

var requestDateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range requestDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
