/*
Package ledger provides the core of the spending tracker: accounts,
categories, transactions, and the rules that keep account balances
consistent with the transaction log.

PURPOSE:
  Every account carries a stored balance. That balance is a cached value:
  it always equals the sum of the signed effects of the transactions that
  reference the account. This package owns the only code paths allowed to
  change it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:     A bank account with a currency and a cached balance
  - Category:    An INCOME or EXPENSE label for transactions
  - Transaction: INCOME, EXPENSE or TRANSFER moving money in/out/between accounts
  - Typed IDs:   AccountID, CategoryID, TransactionID cannot be mixed up

DESIGN PRINCIPLES:
  1. Precision: all money uses decimal.Decimal, never float64
  2. Single writer: balances change only through balance.go
  3. Atomicity: every lifecycle operation runs inside one TxStore unit

SEE ALSO:
  - balance.go: Balance effects (apply/revert)
  - lifecycle.go: Create/Update/Delete of transactions
  - store.go: Persistence interfaces
*/
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type CategoryID string
type TransactionID string

// NewAccountID returns a fresh random account identifier.
func NewAccountID() AccountID { return AccountID(uuid.NewString()) }

// NewCategoryID returns a fresh random category identifier.
func NewCategoryID() CategoryID { return CategoryID(uuid.NewString()) }

// NewTransactionID returns a fresh random transaction identifier.
func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }

// =============================================================================
// ACCOUNT
// =============================================================================

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "PYG"

// SupportedCurrencies lists the currencies offered by the account form.
var SupportedCurrencies = []string{"PYG", "USD", "EUR", "GBP", "BRL", "ARS"}

// Account is a bank account. Balance is a derived cache of the effects of
// every transaction referencing the account and may be negative.
type Account struct {
	ID        AccountID
	Name      string
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// CATEGORY
// =============================================================================

type CategoryType string

const (
	CategoryIncome  CategoryType = "INCOME"
	CategoryExpense CategoryType = "EXPENSE"
)

// Valid reports whether t is one of the known category types.
func (t CategoryType) Valid() bool {
	return t == CategoryIncome || t == CategoryExpense
}

// DefaultCategoryColor is applied when a category is created without a color.
const DefaultCategoryColor = "#6366f1"

// Category labels income and expense transactions. (Name, Type) is unique
// in practice; lookups treat the name case-insensitively.
type Category struct {
	ID    CategoryID
	Name  string
	Type  CategoryType
	Color string
	Icon  string // empty = no icon
}

// CategoryKey is the natural key used to match categories by name.
type CategoryKey struct {
	Name string // lower-cased
	Type CategoryType
}

// KeyOf returns the case-insensitive natural key of a category name and type.
func KeyOf(name string, t CategoryType) CategoryKey {
	return CategoryKey{Name: strings.ToLower(name), Type: t}
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxIncome   TransactionType = "INCOME"
	TxExpense  TransactionType = "EXPENSE"
	TxTransfer TransactionType = "TRANSFER"
)

// Valid reports whether t is one of the three transaction types.
func (t TransactionType) Valid() bool {
	return t == TxIncome || t == TxExpense || t == TxTransfer
}

// CategoryType returns the category type a transaction of type t may use.
// Transfers carry no category and return "".
func (t TransactionType) CategoryType() CategoryType {
	switch t {
	case TxIncome:
		return CategoryIncome
	case TxExpense:
		return CategoryExpense
	}
	return ""
}

// Transaction is a single ledger row.
//
// INVARIANTS:
//   - ToAccountID is set if and only if Type == TxTransfer
//   - CategoryID is empty for transfers
//   - IsDigitalTax implies Type == TxExpense and ParentID != ""
//   - a non-tax transaction has at most one tax child
type Transaction struct {
	ID          TransactionID
	Type        TransactionType
	Amount      decimal.Decimal
	Description string // empty = none
	Date        time.Time
	AccountID   AccountID
	ToAccountID AccountID  // TRANSFER only
	CategoryID  CategoryID // empty = uncategorised

	IsDigitalTax bool
	ParentID     TransactionID // set on tax sub-transactions only

	CreatedAt time.Time
}

// Effect returns the balance effect of the transaction.
func (t Transaction) Effect() Effect {
	return Effect{
		Type:        t.Type,
		Amount:      t.Amount,
		AccountID:   t.AccountID,
		ToAccountID: t.ToAccountID,
	}
}

// TransactionFilter narrows List queries.
type TransactionFilter struct {
	AccountID AccountID // matches source or destination
	From      *time.Time
	To        *time.Time
	Types     []TransactionType
	Limit     int // 0 = no limit
}

// DatePrecision is the finest unit a transaction date keeps. Exported
// workbooks store dates as Excel serials, which do not carry more.
const DatePrecision = time.Second

// TruncateDate normalizes a transaction date to UTC at DatePrecision.
func TruncateDate(t time.Time) time.Time {
	return t.UTC().Truncate(DatePrecision)
}

// DuplicateKey identifies an imported row that already exists in the ledger.
type DuplicateKey struct {
	Date        time.Time
	Amount      decimal.Decimal
	AccountID   AccountID
	Description string
	Type        TransactionType
}

// Matches reports whether t has the same duplicate key fields. Dates are
// compared at DatePrecision.
func (k DuplicateKey) Matches(t Transaction) bool {
	return TruncateDate(t.Date).Equal(TruncateDate(k.Date)) &&
		t.Amount.Equal(k.Amount) &&
		t.AccountID == k.AccountID &&
		t.Description == k.Description &&
		t.Type == k.Type
}
