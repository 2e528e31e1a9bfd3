/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the interface between the ledger rules and the database.
  Implementations hold accounts, categories and transactions and provide
  an all-or-nothing unit of work (TxStore.WithTx).

KEY INTERFACES:
  AccountStore:     Account rows and the balance column
  CategoryStore:    Category rows
  TransactionStore: Transaction rows, tax child lookup, duplicate search
  Store:            All three
  TxStore:          Store + WithTx for atomic multi-row writes

CASCADE CONTRACT (enforced by the implementation, not by callers):
  - DeleteAccount removes every transaction whose source or destination
    is that account
  - DeleteCategory clears CategoryID on transactions that used it
  - DeleteTransaction removes the transaction's tax child

BALANCE WRITES:
  AdjustBalance adds a signed delta and is called only from balance.go.
  SetAccountState overwrites balance and currency and is called only by the
  importer's "update" strategy (an intentional reset, see importer package).

NOT FOUND:
  Get* methods return (nil, nil) when the row doesn't exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite / PostgreSQL via database/sql
  - ledger/store/memory.go: In-memory for tests and demos
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountStore persists accounts.
type AccountStore interface {
	BalanceAdjuster

	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	// ListAccounts returns accounts newest first.
	ListAccounts(ctx context.Context) ([]Account, error)
	// RenameAccount updates name and currency only.
	RenameAccount(ctx context.Context, id AccountID, name, currency string) error
	// SetAccountState overwrites balance and currency.
	SetAccountState(ctx context.Context, id AccountID, balance decimal.Decimal, currency string) error
	DeleteAccount(ctx context.Context, id AccountID) error
}

// CategoryStore persists categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id CategoryID) (*Category, error)
	// FindCategory matches name case-insensitively within a type.
	FindCategory(ctx context.Context, name string, t CategoryType) (*Category, error)
	// ListCategories returns categories ordered by name; t == "" means all.
	ListCategories(ctx context.Context, t CategoryType) ([]Category, error)
	// SetCategoryStyle updates color and icon only.
	SetCategoryStyle(ctx context.Context, id CategoryID, color, icon string) error
	DeleteCategory(ctx context.Context, id CategoryID) error
	CountCategories(ctx context.Context) (int, error)
}

// TransactionStore persists transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	// TaxChild returns the digital tax sub-transaction of parent, if any.
	TaxChild(ctx context.Context, parent TransactionID) (*Transaction, error)
	// UpdateTransaction overwrites every column except ID and CreatedAt.
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, id TransactionID) error
	// ListTransactions returns matching transactions, newest date first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
	// FindDuplicate returns an existing transaction matching k exactly.
	FindDuplicate(ctx context.Context, k DuplicateKey) (*Transaction, error)
}

// Store is the full ledger persistence surface.
type Store interface {
	AccountStore
	CategoryStore
	TransactionStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
