package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Accounts manages account rows. Balances are never written here once an
// account exists; they move only through transaction effects.
type Accounts struct {
	store Store
	now   func() time.Time
}

// NewAccounts creates an account service backed by store.
func NewAccounts(store Store) *Accounts {
	return &Accounts{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// AccountInput holds the editable fields of an account.
type AccountInput struct {
	Name     string
	Currency string
	// Opening balance; honoured on create only.
	Balance decimal.Decimal
}

// Create opens an account with an opening balance.
func (a *Accounts) Create(ctx context.Context, in AccountInput) (Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Account{}, reject(ErrInvalidInput, MsgAccountNameRequired)
	}
	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	acc := Account{
		ID:        NewAccountID(),
		Name:      name,
		Currency:  currency,
		Balance:   in.Balance,
		CreatedAt: a.now(),
	}
	if err := a.store.CreateAccount(ctx, acc); err != nil {
		return Account{}, fmt.Errorf("creating account: %w", err)
	}
	return acc, nil
}

// Update renames an account and changes its currency.
func (a *Accounts) Update(ctx context.Context, id AccountID, in AccountInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return reject(ErrInvalidInput, MsgAccountNameRequired)
	}
	acc, err := a.Get(ctx, id)
	if err != nil {
		return err
	}
	currency := in.Currency
	if currency == "" {
		currency = acc.Currency
	}
	return a.store.RenameAccount(ctx, id, name, currency)
}

// Delete removes an account together with its transactions.
func (a *Accounts) Delete(ctx context.Context, id AccountID) error {
	if _, err := a.Get(ctx, id); err != nil {
		return err
	}
	return a.store.DeleteAccount(ctx, id)
}

// Get returns account id or a not-found rejection.
func (a *Accounts) Get(ctx context.Context, id AccountID) (Account, error) {
	acc, err := a.store.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acc == nil {
		return Account{}, reject(ErrAccountNotFound, MsgAccountNotFound)
	}
	return *acc, nil
}

// List returns all accounts, newest first.
func (a *Accounts) List(ctx context.Context) ([]Account, error) {
	return a.store.ListAccounts(ctx)
}

// TotalBalance sums the balances of accounts regardless of currency.
func TotalBalance(accounts []Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}
