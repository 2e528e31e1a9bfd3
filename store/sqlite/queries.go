package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/spending-tracker/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ ledger.Store = queries{}

// queries implements ledger.Store against a querier without locking.
type queries struct {
	db      querier
	dialect string
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, rebind(q.dialect, query), args...)
}

func (q queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, rebind(q.dialect, query), args...)
}

func (q queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, rebind(q.dialect, query), args...)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, name, currency, balance, created_at`

func (q queries) AdjustBalance(ctx context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	var raw string
	err := q.queryRow(ctx, `SELECT balance FROM accounts WHERE id = ?`, string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance for account %s: %w", id, err)
	}

	_, err = q.exec(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`,
		balance.Add(delta).String(), string(id))
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (q queries) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := q.exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`, string(a.ID), a.Name, a.Currency, a.Balance.String(), formatTime(a.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("account %s already exists", a.ID)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (q queries) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	row := q.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q queries) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := q.query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q queries) RenameAccount(ctx context.Context, id ledger.AccountID, name, currency string) error {
	res, err := q.exec(ctx, `UPDATE accounts SET name = ?, currency = ? WHERE id = ?`,
		name, currency, string(id))
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res, fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound))
}

func (q queries) SetAccountState(ctx context.Context, id ledger.AccountID, balance decimal.Decimal, currency string) error {
	res, err := q.exec(ctx, `UPDATE accounts SET balance = ?, currency = ? WHERE id = ?`,
		balance.String(), currency, string(id))
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res, fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound))
}

// DeleteAccount relies on ON DELETE CASCADE for the account's transactions.
func (q queries) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	if _, err := q.exec(ctx, `DELETE FROM accounts WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func scanAccount(row scanner) (ledger.Account, error) {
	var (
		a                   ledger.Account
		id, balance, create string
	)
	if err := row.Scan(&id, &a.Name, &a.Currency, &balance, &create); err != nil {
		return a, err
	}
	a.ID = ledger.AccountID(id)

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return a, fmt.Errorf("corrupt balance for account %s: %w", id, err)
	}
	if a.CreatedAt, err = parseTime(create); err != nil {
		return a, err
	}
	return a, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

const categoryColumns = `id, name, type, color, icon`

func (q queries) CreateCategory(ctx context.Context, c ledger.Category) error {
	_, err := q.exec(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`, string(c.ID), c.Name, string(c.Type), c.Color, nullString(c.Icon))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("category %s already exists", c.ID)
		}
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (q queries) GetCategory(ctx context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	row := q.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, string(id))
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) FindCategory(ctx context.Context, name string, t ledger.CategoryType) (*ledger.Category, error) {
	row := q.queryRow(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE type = ? AND LOWER(name) = LOWER(?)
		ORDER BY name, id
		LIMIT 1
	`, string(t), name)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) ListCategories(ctx context.Context, t ledger.CategoryType) ([]ledger.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	var args []any
	if t != "" {
		query += ` WHERE type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY name, id`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) SetCategoryStyle(ctx context.Context, id ledger.CategoryID, color, icon string) error {
	res, err := q.exec(ctx, `UPDATE categories SET color = ?, icon = ? WHERE id = ?`,
		color, nullString(icon), string(id))
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return requireRow(res, fmt.Errorf("category %s: %w", id, ledger.ErrCategoryNotFound))
}

// DeleteCategory relies on ON DELETE SET NULL for transactions.category_id.
func (q queries) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	if _, err := q.exec(ctx, `DELETE FROM categories WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (q queries) CountCategories(ctx context.Context) (int, error) {
	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func scanCategory(row scanner) (ledger.Category, error) {
	var (
		c       ledger.Category
		id, typ string
		icon    sql.NullString
	)
	if err := row.Scan(&id, &c.Name, &typ, &c.Color, &icon); err != nil {
		return c, err
	}
	c.ID = ledger.CategoryID(id)
	c.Type = ledger.CategoryType(typ)
	c.Icon = icon.String
	return c, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, type, amount, description, date, account_id, to_account_id,
	category_id, is_digital_tax, parent_transaction_id, created_at`

func (q queries) CreateTransaction(ctx context.Context, t ledger.Transaction) error {
	_, err := q.exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(t.ID),
		string(t.Type),
		t.Amount.String(),
		nullString(t.Description),
		formatTime(t.Date),
		string(t.AccountID),
		nullString(string(t.ToAccountID)),
		nullString(string(t.CategoryID)),
		boolInt(t.IsDigitalTax),
		nullString(string(t.ParentID)),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("transaction %s already exists", t.ID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (q queries) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, string(id))
	return scanOptionalTransaction(row)
}

func (q queries) TaxChild(ctx context.Context, parent ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.queryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE parent_transaction_id = ? AND is_digital_tax = 1
		LIMIT 1
	`, string(parent))
	return scanOptionalTransaction(row)
}

func (q queries) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	res, err := q.exec(ctx, `
		UPDATE transactions SET
			type = ?, amount = ?, description = ?, date = ?, account_id = ?,
			to_account_id = ?, category_id = ?, is_digital_tax = ?, parent_transaction_id = ?
		WHERE id = ?
	`,
		string(t.Type),
		t.Amount.String(),
		nullString(t.Description),
		formatTime(t.Date),
		string(t.AccountID),
		nullString(string(t.ToAccountID)),
		nullString(string(t.CategoryID)),
		boolInt(t.IsDigitalTax),
		nullString(string(t.ParentID)),
		string(t.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireRow(res, fmt.Errorf("transaction %s: %w", t.ID, ledger.ErrTransactionNotFound))
}

// DeleteTransaction relies on ON DELETE CASCADE to remove the tax child.
func (q queries) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	if _, err := q.exec(ctx, `DELETE FROM transactions WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

func (q queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, `(account_id = ? OR to_account_id = ?)`)
		args = append(args, string(f.AccountID), string(f.AccountID))
	}
	if f.From != nil {
		where = append(where, `date >= ?`)
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, `date <= ?`)
		args = append(args, formatTime(*f.To))
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, `type IN (`+strings.Join(marks, ", ")+`)`)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(f.Limit)
	}

	return q.queryTransactions(ctx, query, args...)
}

// FindDuplicate narrows by indexed columns in SQL and compares amount and
// description in Go, so "10" and "10.00" match on every driver. The date
// filter spans the whole second of k.Date.
func (q queries) FindDuplicate(ctx context.Context, k ledger.DuplicateKey) (*ledger.Transaction, error) {
	from := ledger.TruncateDate(k.Date)
	candidates, err := q.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND date >= ? AND date < ? AND type = ?
	`, string(k.AccountID), formatTime(from), formatTime(from.Add(ledger.DatePrecision)), string(k.Type))
	if err != nil {
		return nil, err
	}
	for _, t := range candidates {
		if k.Matches(t) {
			return &t, nil
		}
	}
	return nil, nil
}

func (q queries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanOptionalTransaction(row *sql.Row) (*ledger.Transaction, error) {
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		t                      ledger.Transaction
		id, typ, amount, date  string
		accountID, created     string
		description, toAccount sql.NullString
		categoryID, parentID   sql.NullString
		isDigitalTax           int
	)
	err := row.Scan(&id, &typ, &amount, &description, &date, &accountID, &toAccount,
		&categoryID, &isDigitalTax, &parentID, &created)
	if err != nil {
		return t, err
	}

	t.ID = ledger.TransactionID(id)
	t.Type = ledger.TransactionType(typ)
	t.Description = description.String
	t.AccountID = ledger.AccountID(accountID)
	t.ToAccountID = ledger.AccountID(toAccount.String)
	t.CategoryID = ledger.CategoryID(categoryID.String)
	t.IsDigitalTax = isDigitalTax != 0
	t.ParentID = ledger.TransactionID(parentID.String)

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("corrupt amount for transaction %s: %w", id, err)
	}
	if t.Date, err = parseTime(date); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	return t, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed width so that text order is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func rebind(dialect, query string) string {
	if dialect != DriverPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
