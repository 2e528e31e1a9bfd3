/*
Package sqlite provides a SQL-backed implementation of ledger.TxStore.

PURPOSE:
  Persists accounts, categories and transactions in a relational database.
  SQLite is the default; the same schema and queries run on PostgreSQL
  (driver "postgres") with placeholders rebound from ? to $n.

INTERFACES IMPLEMENTED:
  ledger.Store:   Account, category and transaction persistence
  ledger.TxStore: WithTx, one database transaction per unit

KEY TABLES:
  accounts:     Bank accounts and their cached balance
  categories:   INCOME / EXPENSE labels
  transactions: Ledger rows, including digital tax children

CASCADES (declared as foreign keys, so the database enforces them):
  transactions.account_id            ON DELETE CASCADE
  transactions.to_account_id         ON DELETE CASCADE
  transactions.category_id           ON DELETE SET NULL
  transactions.parent_transaction_id ON DELETE CASCADE

MONEY AND TIME:
  Decimal columns are stored as TEXT (decimal.String()) so no precision is
  lost on either driver. Times are stored as fixed-width UTC text, which
  keeps lexical order equal to chronological order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite runs on a single connection
  so that ":memory:" databases are shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  manager := ledger.NewManager(store)

MIGRATION:
  Schema is auto-migrated on Open(). Statements are idempotent.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/spending-tracker/ledger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var _ ledger.TxStore = (*Store)(nil)

// Store implements ledger.TxStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect string
	mu      sync.RWMutex
	q       queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath+"?_foreign_keys=on&_journal_mode=WAL")
}

// Open connects to dsn with the given driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, dialect: driver, q: queries{db: db, dialect: driver}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_created_at
		ON accounts(created_at DESC);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		color TEXT NOT NULL,
		icon TEXT
	);

	-- Lookup by (name, type) during import and tax category resolution
	CREATE INDEX IF NOT EXISTS idx_categories_type_name
		ON categories(type, name);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		date TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		to_account_id TEXT REFERENCES accounts(id) ON DELETE CASCADE,
		category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
		is_digital_tax INTEGER NOT NULL DEFAULT 0,
		parent_transaction_id TEXT REFERENCES transactions(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);

	-- Listing newest first (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(date DESC);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, date);

	CREATE INDEX IF NOT EXISTS idx_transactions_to_account
		ON transactions(to_account_id);

	CREATE INDEX IF NOT EXISTS idx_transactions_category
		ON transactions(category_id);

	-- Tax child lookup
	CREATE INDEX IF NOT EXISTS idx_transactions_parent
		ON transactions(parent_transaction_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset deletes every row. Used by tests and the demo seed command.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"transactions", "categories", "accounts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (s *Store) AdjustBalance(ctx context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.AdjustBalance(ctx, id, delta)
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateAccount(ctx, a)
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListAccounts(ctx)
}

func (s *Store) RenameAccount(ctx context.Context, id ledger.AccountID, name, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.RenameAccount(ctx, id, name, currency)
}

func (s *Store) SetAccountState(ctx context.Context, id ledger.AccountID, balance decimal.Decimal, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetAccountState(ctx, id, balance, currency)
}

func (s *Store) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteAccount(ctx, id)
}

// =============================================================================
// CATEGORY STORE
// =============================================================================

func (s *Store) CreateCategory(ctx context.Context, c ledger.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateCategory(ctx, c)
}

func (s *Store) GetCategory(ctx context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetCategory(ctx, id)
}

func (s *Store) FindCategory(ctx context.Context, name string, t ledger.CategoryType) (*ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.FindCategory(ctx, name, t)
}

func (s *Store) ListCategories(ctx context.Context, t ledger.CategoryType) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListCategories(ctx, t)
}

func (s *Store) SetCategoryStyle(ctx context.Context, id ledger.CategoryID, color, icon string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetCategoryStyle(ctx, id, color, icon)
}

func (s *Store) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteCategory(ctx, id)
}

func (s *Store) CountCategories(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.CountCategories(ctx)
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateTransaction(ctx, t)
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetTransaction(ctx, id)
}

func (s *Store) TaxChild(ctx context.Context, parent ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.TaxChild(ctx, parent)
}

func (s *Store) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateTransaction(ctx, t)
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListTransactions(ctx, f)
}

func (s *Store) FindDuplicate(ctx context.Context, k ledger.DuplicateKey) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.FindDuplicate(ctx, k)
}
