/*
Package importer reconciles a bulk set of typed rows into the ledger.

PURPOSE:
  The batch variant of ledger.Manager. Rows reference accounts and
  categories by name; the importer resolves those names, detects
  duplicates and applies the same balance effects as single operations,
  continuing past per-row errors.

PHASES (one ledger.TxStore unit for the whole run):
  1. Accounts:     match by lower-cased name
                   update = overwrite balance and currency
  2. Categories:   match by (lower-cased name, type)
                   update = overwrite color and icon
  3. Transactions: resolve names, validate, skip or report duplicates,
                   insert and apply the balance effect

BALANCE RESET:
  The accounts "update" strategy writes an absolute balance and bypasses
  the effect rules. It is the one place a balance is set rather than
  derived: importing a statement resets the account to the statement's
  figure.

ERRORS:
  Per-row problems (unknown name, duplicate under "error", failed
  validation) are recorded in Result and never abort the run. A store
  failure rolls back every phase and is reported as a single error.

SEE ALSO:
  - reconcile.go: Generic keyed reconciliation used by phases 1 and 2
  - workbook/: Produces Data from an .xlsx file
*/
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/logger"
)

// Importer runs import batches against a TxStore.
type Importer struct {
	store ledger.TxStore
	now   func() time.Time
}

// New creates an importer backed by store.
func New(store ledger.TxStore) *Importer {
	return &Importer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Import reconciles data into the ledger. The returned error is non-nil
// only for invalid options, before anything is read or written.
func (im *Importer) Import(ctx context.Context, data Data, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	log := logger.FromContext(ctx)

	var res Result
	err := im.store.WithTx(ctx, func(s ledger.Store) error {
		run := runner{store: s, now: im.now}

		accounts, err := run.accountIndex(ctx)
		if err != nil {
			return err
		}
		if res.Accounts, err = reconcile(ctx, run.accountRules(), data.Accounts, opts.Accounts, accounts, newStats()); err != nil {
			return err
		}

		categories, err := run.categoryIndex(ctx)
		if err != nil {
			return err
		}
		if res.Categories, err = reconcile(ctx, run.categoryRules(), data.Categories, opts.Categories, categories, newStats()); err != nil {
			return err
		}

		res.Transactions, err = run.transactions(ctx, data.Transactions, opts.Transactions, accounts, categories, newStats())
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("import rolled back")
		return Result{
			Accounts: newStats().failed(RowError{
				Sheet:   SheetAccounts,
				Row:     -1,
				Message: "Import failed: " + err.Error(),
			}),
			Categories:   newStats(),
			Transactions: newStats(),
		}, nil
	}

	res.Success = res.ErrorCount() == 0
	log.Info().
		Bool("success", res.Success).
		Int("accounts_created", res.Accounts.Created).
		Int("accounts_updated", res.Accounts.Updated).
		Int("categories_created", res.Categories.Created).
		Int("transactions_created", res.Transactions.Created).
		Int("transactions_skipped", res.Transactions.Skipped).
		Int("errors", res.ErrorCount()).
		Msg("import finished")
	return res, nil
}

// runner holds the unit-of-work store for one import run.
type runner struct {
	store ledger.Store
	now   func() time.Time
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func accountKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r runner) accountIndex(ctx context.Context) (map[string]ledger.AccountID, error) {
	existing, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]ledger.AccountID, len(existing))
	for _, a := range existing {
		if _, ok := index[accountKey(a.Name)]; !ok {
			index[accountKey(a.Name)] = a.ID
		}
	}
	return index, nil
}

func (r runner) accountRules() keyed[AccountRow, string, ledger.AccountID] {
	return keyed[AccountRow, string, ledger.AccountID]{
		sheet: SheetAccounts,
		row:   func(row AccountRow) int { return row.Row },
		key:   func(row AccountRow) string { return accountKey(row.Name) },
		create: func(ctx context.Context, row AccountRow) (ledger.AccountID, error) {
			a := ledger.Account{
				ID:        ledger.NewAccountID(),
				Name:      strings.TrimSpace(row.Name),
				Currency:  currencyOrDefault(row.Currency),
				Balance:   row.Balance,
				CreatedAt: r.now(),
			}
			if err := r.store.CreateAccount(ctx, a); err != nil {
				return "", fmt.Errorf("creating account %q: %w", a.Name, err)
			}
			return a.ID, nil
		},
		update: func(ctx context.Context, id ledger.AccountID, row AccountRow) error {
			return r.store.SetAccountState(ctx, id, row.Balance, currencyOrDefault(row.Currency))
		},
		exists: func(row AccountRow) string {
			return fmt.Sprintf("Account %q already exists", row.Name)
		},
	}
}

func currencyOrDefault(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return ledger.DefaultCurrency
	}
	return c
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (r runner) categoryIndex(ctx context.Context) (map[ledger.CategoryKey]ledger.CategoryID, error) {
	existing, err := r.store.ListCategories(ctx, "")
	if err != nil {
		return nil, err
	}
	index := make(map[ledger.CategoryKey]ledger.CategoryID, len(existing))
	for _, c := range existing {
		key := ledger.KeyOf(c.Name, c.Type)
		if _, ok := index[key]; !ok {
			index[key] = c.ID
		}
	}
	return index, nil
}

func (r runner) categoryRules() keyed[CategoryRow, ledger.CategoryKey, ledger.CategoryID] {
	return keyed[CategoryRow, ledger.CategoryKey, ledger.CategoryID]{
		sheet: SheetCategories,
		row:   func(row CategoryRow) int { return row.Row },
		key:   func(row CategoryRow) ledger.CategoryKey { return ledger.KeyOf(strings.TrimSpace(row.Name), row.Type) },
		create: func(ctx context.Context, row CategoryRow) (ledger.CategoryID, error) {
			c := ledger.Category{
				ID:    ledger.NewCategoryID(),
				Name:  strings.TrimSpace(row.Name),
				Type:  row.Type,
				Color: colorOrDefault(row.Color),
				Icon:  row.Icon,
			}
			if err := r.store.CreateCategory(ctx, c); err != nil {
				return "", fmt.Errorf("creating category %q: %w", c.Name, err)
			}
			return c.ID, nil
		},
		update: func(ctx context.Context, id ledger.CategoryID, row CategoryRow) error {
			return r.store.SetCategoryStyle(ctx, id, colorOrDefault(row.Color), row.Icon)
		},
		exists: func(row CategoryRow) string {
			return fmt.Sprintf("Category %q (%s) already exists", row.Name, row.Type)
		},
	}
}

func colorOrDefault(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return ledger.DefaultCategoryColor
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (r runner) transactions(
	ctx context.Context,
	rows []TransactionRow,
	strategy Strategy,
	accounts map[string]ledger.AccountID,
	categories map[ledger.CategoryKey]ledger.CategoryID,
	stats Stats,
) (Stats, error) {
	for i, row := range rows {
		fail := func(msg string) {
			stats = stats.failed(RowError{Sheet: SheetTransactions, Row: rowNumber(row.Row, i), Message: msg, Data: row})
		}

		in, msg := resolve(row, accounts, categories)
		if msg != "" {
			fail(msg)
			continue
		}
		if err := in.Validate(); err != nil {
			fail(err.Error())
			continue
		}

		t := ledger.Transaction{
			ID:          ledger.NewTransactionID(),
			Type:        in.Type,
			Amount:      in.Amount,
			Description: in.Description,
			Date:        ledger.TruncateDate(row.Date),
			AccountID:   in.AccountID,
			ToAccountID: in.ToAccountID,
			CategoryID:  in.CategoryID,
			CreatedAt:   r.now(),
		}
		if row.Date.IsZero() {
			t.Date = ledger.TruncateDate(t.CreatedAt)
		}

		dup, err := r.store.FindDuplicate(ctx, ledger.DuplicateKey{
			Date:        t.Date,
			Amount:      t.Amount,
			AccountID:   t.AccountID,
			Description: t.Description,
			Type:        t.Type,
		})
		if err != nil {
			return stats, err
		}
		if dup != nil {
			if strategy == StrategyError {
				fail(fmt.Sprintf("Duplicate transaction found (%s of %s on %s)",
					t.Type, t.Amount.String(), t.Date.Format("2006-01-02")))
				continue
			}
			stats = stats.skipped()
			continue
		}

		if err := r.store.CreateTransaction(ctx, t); err != nil {
			return stats, fmt.Errorf("creating transaction on row %d: %w", rowNumber(row.Row, i), err)
		}
		if err := ledger.ApplyEffect(ctx, r.store, t.Effect()); err != nil {
			return stats, err
		}
		stats = stats.created()
	}
	return stats, nil
}

// resolve turns the names of row into identifiers. It returns a non-empty
// message when a name cannot be resolved.
func resolve(
	row TransactionRow,
	accounts map[string]ledger.AccountID,
	categories map[ledger.CategoryKey]ledger.CategoryID,
) (ledger.Input, string) {
	in := ledger.Input{
		Type:        row.Type,
		Amount:      row.Amount,
		Description: strings.TrimSpace(row.Description),
	}

	id, ok := accounts[accountKey(row.AccountName)]
	if !ok {
		return in, fmt.Sprintf("Account %q not found", row.AccountName)
	}
	in.AccountID = id

	if row.Type == ledger.TxTransfer {
		if strings.TrimSpace(row.ToAccountName) == "" {
			return in, "Transfer requires a destination account"
		}
		to, ok := accounts[accountKey(row.ToAccountName)]
		if !ok {
			return in, fmt.Sprintf("Destination account %q not found", row.ToAccountName)
		}
		in.ToAccountID = to
		return in, ""
	}

	if name := strings.TrimSpace(row.CategoryName); name != "" {
		ct := row.Type.CategoryType()
		cat, ok := categories[ledger.KeyOf(name, ct)]
		if !ok {
			return in, fmt.Sprintf("Category %q (%s) not found", row.CategoryName, ct)
		}
		in.CategoryID = cat
	}
	return in, ""
}
