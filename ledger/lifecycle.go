/*
lifecycle.go - Transaction lifecycle: create, update, delete

PURPOSE:
  Every change to a transaction also changes one or two account balances,
  and possibly a linked digital tax sub-transaction. Manager performs the
  row writes and the balance effects as ONE unit (TxStore.WithTx): either
  everything commits or nothing does.

OPERATIONS:
  Create(input):
    validate -> insert row -> apply effect
    [-> insert tax child -> apply tax effect]   (EXPENSE + ApplyDigitalTax)

  Update(id, input):
    reject tax rows -> revert current effect
    [-> revert tax child effect -> delete tax child]
    -> overwrite row -> apply new effect
    [-> insert fresh tax child -> apply tax effect]

  Delete(id):
    reject tax rows -> revert effect [-> revert tax child effect]
    -> delete row (tax child cascades)

ORDERING:
  Reverts always happen before applies within the unit, so a committed
  state never double counts or drops an effect.

CONCURRENCY:
  No locking beyond the store's own transaction isolation.

ERRORS:
  Business-rule violations are *RejectionError and leave no trace.
  Anything else is a store failure and the unit rolls back.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Input is the user-supplied content of a transaction.
type Input struct {
	Type            TransactionType
	Amount          decimal.Decimal
	Description     string
	Date            *time.Time // nil = now (create) or unchanged (update)
	AccountID       AccountID
	CategoryID      CategoryID
	ToAccountID     AccountID
	ApplyDigitalTax bool
}

// wantsTax reports whether the input asks for a digital tax sub-transaction.
func (in Input) wantsTax() bool {
	return in.ApplyDigitalTax && in.Type == TxExpense
}

// Validate checks the input on its own, without looking at the store.
func (in Input) Validate() error {
	if in.Type == "" || in.Amount.IsZero() || in.AccountID == "" {
		return reject(ErrInvalidInput, MsgRequired)
	}
	if !in.Type.Valid() {
		return reject(ErrInvalidInput, MsgInvalidType)
	}
	if !in.Amount.IsPositive() {
		return reject(ErrInvalidInput, MsgAmountPositive)
	}
	if in.Type == TxTransfer {
		if in.ToAccountID == "" {
			return reject(ErrInvalidInput, MsgDestinationRequired)
		}
		if in.ToAccountID == in.AccountID {
			return reject(ErrSelfTransfer, MsgSelfTransfer)
		}
	}
	return nil
}

// resolve checks that every referenced row exists.
func (in Input) resolve(ctx context.Context, s Store) error {
	acc, err := s.GetAccount(ctx, in.AccountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return reject(ErrAccountNotFound, MsgAccountNotFound)
	}

	if in.Type == TxTransfer {
		to, err := s.GetAccount(ctx, in.ToAccountID)
		if err != nil {
			return err
		}
		if to == nil {
			return reject(ErrAccountNotFound, MsgDestinationNotFound)
		}
		return nil
	}

	if in.CategoryID == "" {
		return nil
	}
	cat, err := s.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return err
	}
	if cat == nil {
		return reject(ErrCategoryNotFound, MsgCategoryNotFound)
	}
	if cat.Type != in.Type.CategoryType() {
		return reject(ErrInvalidInput, MsgCategoryMismatch)
	}
	return nil
}

// apply copies the input onto t, normalising fields the type doesn't use.
func (in Input) apply(t Transaction) Transaction {
	t.Type = in.Type
	t.Amount = in.Amount
	t.Description = in.Description
	if in.Date != nil {
		t.Date = TruncateDate(*in.Date)
	}
	t.AccountID = in.AccountID
	t.ToAccountID = ""
	t.CategoryID = in.CategoryID
	if in.Type == TxTransfer {
		t.ToAccountID = in.ToAccountID
		t.CategoryID = ""
	}
	return t
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager runs the transaction lifecycle against a TxStore.
type Manager struct {
	store TxStore
	now   func() time.Time
}

// NewManager creates a lifecycle manager backed by store.
func NewManager(store TxStore) *Manager {
	return &Manager{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create records a new transaction and applies its balance effect.
func (m *Manager) Create(ctx context.Context, in Input) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}

	now := m.now()
	t := in.apply(Transaction{ID: NewTransactionID(), Date: TruncateDate(now), CreatedAt: now})

	err := m.store.WithTx(ctx, func(s Store) error {
		if err := in.resolve(ctx, s); err != nil {
			return err
		}
		if err := s.CreateTransaction(ctx, t); err != nil {
			return fmt.Errorf("creating transaction: %w", err)
		}
		if err := ApplyEffect(ctx, s, t.Effect()); err != nil {
			return err
		}
		if in.wantsTax() {
			return m.addTax(ctx, s, t)
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Update replaces the content of transaction id.
func (m *Manager) Update(ctx context.Context, id TransactionID, in Input) (Transaction, error) {
	var updated Transaction

	err := m.store.WithTx(ctx, func(s Store) error {
		cur, err := load(ctx, s, id)
		if err != nil {
			return err
		}
		if cur.IsDigitalTax {
			return reject(ErrTaxTransaction, MsgTaxEdit)
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if err := in.resolve(ctx, s); err != nil {
			return err
		}

		child, err := s.TaxChild(ctx, id)
		if err != nil {
			return err
		}

		if err := RevertEffect(ctx, s, cur.Effect()); err != nil {
			return err
		}
		if child != nil {
			if err := RevertEffect(ctx, s, child.Effect()); err != nil {
				return err
			}
			if err := s.DeleteTransaction(ctx, child.ID); err != nil {
				return fmt.Errorf("removing tax transaction: %w", err)
			}
		}

		next := in.apply(*cur)
		if err := s.UpdateTransaction(ctx, next); err != nil {
			return fmt.Errorf("updating transaction: %w", err)
		}
		if err := ApplyEffect(ctx, s, next.Effect()); err != nil {
			return err
		}
		if in.wantsTax() {
			if err := m.addTax(ctx, s, next); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return updated, nil
}

// Delete removes transaction id and reverts its balance effect, together
// with the effect of its tax child.
func (m *Manager) Delete(ctx context.Context, id TransactionID) error {
	return m.store.WithTx(ctx, func(s Store) error {
		cur, err := load(ctx, s, id)
		if err != nil {
			return err
		}
		if cur.IsDigitalTax {
			return reject(ErrTaxTransaction, MsgTaxDelete)
		}

		child, err := s.TaxChild(ctx, id)
		if err != nil {
			return err
		}

		if err := RevertEffect(ctx, s, cur.Effect()); err != nil {
			return err
		}
		if child != nil {
			if err := RevertEffect(ctx, s, child.Effect()); err != nil {
				return err
			}
		}
		if err := s.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("deleting transaction: %w", err)
		}
		return nil
	})
}

// Detail is a transaction together with its digital tax child.
type Detail struct {
	Transaction
	Tax *Transaction
}

// Get returns transaction id and its tax child, if any.
func (m *Manager) Get(ctx context.Context, id TransactionID) (Detail, error) {
	t, err := load(ctx, m.store, id)
	if err != nil {
		return Detail{}, err
	}
	child, err := m.store.TaxChild(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Transaction: *t, Tax: child}, nil
}

// List returns transactions matching f, newest first.
func (m *Manager) List(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	return m.store.ListTransactions(ctx, f)
}

func (m *Manager) addTax(ctx context.Context, s Store, parent Transaction) error {
	// Amounts below 0.05 round to no tax at all.
	if !DigitalTax(parent.Amount).IsPositive() {
		return nil
	}
	category, err := taxCategory(ctx, s)
	if err != nil {
		return err
	}
	child := newTaxChild(parent, category, m.now())
	if err := s.CreateTransaction(ctx, child); err != nil {
		return fmt.Errorf("creating tax transaction: %w", err)
	}
	return ApplyEffect(ctx, s, child.Effect())
}

func load(ctx context.Context, s TransactionStore, id TransactionID) (*Transaction, error) {
	t, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, reject(ErrTransactionNotFound, MsgTransactionNotFound)
	}
	return t, nil
}
