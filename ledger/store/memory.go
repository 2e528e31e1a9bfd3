// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/spending-tracker/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var (
	_ ledger.TxStore = (*Memory)(nil)
	_ ledger.Store   = view{}
)

// Memory is a ledger.TxStore kept entirely in memory.
type Memory struct {
	mu sync.RWMutex
	st *state
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(view{m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// Reset drops every record.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

func (m *Memory) AdjustBalance(ctx context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.AdjustBalance(ctx, id, delta)
}

func (m *Memory) CreateAccount(ctx context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.CreateAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.GetAccount(ctx, id)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.ListAccounts(ctx)
}

func (m *Memory) RenameAccount(ctx context.Context, id ledger.AccountID, name, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.RenameAccount(ctx, id, name, currency)
}

func (m *Memory) SetAccountState(ctx context.Context, id ledger.AccountID, balance decimal.Decimal, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.SetAccountState(ctx, id, balance, currency)
}

func (m *Memory) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.DeleteAccount(ctx, id)
}

func (m *Memory) CreateCategory(ctx context.Context, c ledger.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.CreateCategory(ctx, c)
}

func (m *Memory) GetCategory(ctx context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.GetCategory(ctx, id)
}

func (m *Memory) FindCategory(ctx context.Context, name string, t ledger.CategoryType) (*ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.FindCategory(ctx, name, t)
}

func (m *Memory) ListCategories(ctx context.Context, t ledger.CategoryType) ([]ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.ListCategories(ctx, t)
}

func (m *Memory) SetCategoryStyle(ctx context.Context, id ledger.CategoryID, color, icon string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.SetCategoryStyle(ctx, id, color, icon)
}

func (m *Memory) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.DeleteCategory(ctx, id)
}

func (m *Memory) CountCategories(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.CountCategories(ctx)
}

func (m *Memory) CreateTransaction(ctx context.Context, t ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.CreateTransaction(ctx, t)
}

func (m *Memory) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.GetTransaction(ctx, id)
}

func (m *Memory) TaxChild(ctx context.Context, parent ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.TaxChild(ctx, parent)
}

func (m *Memory) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.UpdateTransaction(ctx, t)
}

func (m *Memory) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return view{m.st}.DeleteTransaction(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.ListTransactions(ctx, f)
}

func (m *Memory) FindDuplicate(ctx context.Context, k ledger.DuplicateKey) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return view{m.st}.FindDuplicate(ctx, k)
}

// =============================================================================
// STATE - unlocked data shared by Memory and the transactional view
// =============================================================================

type state struct {
	accounts     map[ledger.AccountID]ledger.Account
	categories   map[ledger.CategoryID]ledger.Category
	transactions map[ledger.TransactionID]ledger.Transaction
	seq          map[string]int // insertion order, for stable sorting
	next         int
}

func newState() *state {
	return &state{
		accounts:     make(map[ledger.AccountID]ledger.Account),
		categories:   make(map[ledger.CategoryID]ledger.Category),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		seq:          make(map[string]int),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.next = s.next
	return c
}

func (s *state) stamp(id string) {
	s.next++
	s.seq[id] = s.next
}

// view implements ledger.Store over a state without locking.
type view struct {
	s *state
}

func (v view) AdjustBalance(_ context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	a, ok := v.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound)
	}
	a.Balance = a.Balance.Add(delta)
	v.s.accounts[id] = a
	return nil
}

func (v view) CreateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := v.s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	v.s.accounts[a.ID] = a
	v.s.stamp(string(a.ID))
	return nil
}

func (v view) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	a, ok := v.s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (v view) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(v.s.accounts))
	for _, a := range v.s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return v.s.seq[string(out[i].ID)] > v.s.seq[string(out[j].ID)]
	})
	return out, nil
}

func (v view) RenameAccount(_ context.Context, id ledger.AccountID, name, currency string) error {
	a, ok := v.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound)
	}
	a.Name, a.Currency = name, currency
	v.s.accounts[id] = a
	return nil
}

func (v view) SetAccountState(_ context.Context, id ledger.AccountID, balance decimal.Decimal, currency string) error {
	a, ok := v.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound)
	}
	a.Balance, a.Currency = balance, currency
	v.s.accounts[id] = a
	return nil
}

func (v view) DeleteAccount(_ context.Context, id ledger.AccountID) error {
	delete(v.s.accounts, id)
	for tid, t := range v.s.transactions {
		if t.AccountID == id || t.ToAccountID == id {
			delete(v.s.transactions, tid)
		}
	}
	v.dropOrphans()
	return nil
}

func (v view) CreateCategory(_ context.Context, c ledger.Category) error {
	if _, ok := v.s.categories[c.ID]; ok {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	v.s.categories[c.ID] = c
	v.s.stamp(string(c.ID))
	return nil
}

func (v view) GetCategory(_ context.Context, id ledger.CategoryID) (*ledger.Category, error) {
	c, ok := v.s.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v view) FindCategory(_ context.Context, name string, t ledger.CategoryType) (*ledger.Category, error) {
	var found *ledger.Category
	for _, c := range v.s.categories {
		if c.Type != t || !strings.EqualFold(c.Name, name) {
			continue
		}
		if found == nil || v.s.seq[string(c.ID)] < v.s.seq[string(found.ID)] {
			found = &c
		}
	}
	return found, nil
}

func (v view) ListCategories(_ context.Context, t ledger.CategoryType) ([]ledger.Category, error) {
	var out []ledger.Category
	for _, c := range v.s.categories {
		if t == "" || c.Type == t {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return v.s.seq[string(out[i].ID)] < v.s.seq[string(out[j].ID)]
	})
	return out, nil
}

func (v view) SetCategoryStyle(_ context.Context, id ledger.CategoryID, color, icon string) error {
	c, ok := v.s.categories[id]
	if !ok {
		return fmt.Errorf("category %s: %w", id, ledger.ErrCategoryNotFound)
	}
	c.Color, c.Icon = color, icon
	v.s.categories[id] = c
	return nil
}

func (v view) DeleteCategory(_ context.Context, id ledger.CategoryID) error {
	delete(v.s.categories, id)
	for tid, t := range v.s.transactions {
		if t.CategoryID == id {
			t.CategoryID = ""
			v.s.transactions[tid] = t
		}
	}
	return nil
}

func (v view) CountCategories(_ context.Context) (int, error) {
	return len(v.s.categories), nil
}

func (v view) CreateTransaction(_ context.Context, t ledger.Transaction) error {
	if _, ok := v.s.transactions[t.ID]; ok {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	if _, ok := v.s.accounts[t.AccountID]; !ok {
		return fmt.Errorf("account %s: %w", t.AccountID, ledger.ErrAccountNotFound)
	}
	v.s.transactions[t.ID] = t
	v.s.stamp(string(t.ID))
	return nil
}

func (v view) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	t, ok := v.s.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (v view) TaxChild(_ context.Context, parent ledger.TransactionID) (*ledger.Transaction, error) {
	for _, t := range v.s.transactions {
		if t.IsDigitalTax && t.ParentID == parent {
			return &t, nil
		}
	}
	return nil, nil
}

func (v view) UpdateTransaction(_ context.Context, t ledger.Transaction) error {
	cur, ok := v.s.transactions[t.ID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", t.ID, ledger.ErrTransactionNotFound)
	}
	t.CreatedAt = cur.CreatedAt
	v.s.transactions[t.ID] = t
	return nil
}

func (v view) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	delete(v.s.transactions, id)
	v.dropOrphans()
	return nil
}

// dropOrphans removes tax children whose parent is gone.
func (v view) dropOrphans() {
	for id, t := range v.s.transactions {
		if t.ParentID == "" {
			continue
		}
		if _, ok := v.s.transactions[t.ParentID]; !ok {
			delete(v.s.transactions, id)
		}
	}
}

func (v view) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, t := range v.s.transactions {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return v.s.seq[string(out[i].ID)] > v.s.seq[string(out[j].ID)]
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(t ledger.Transaction, f ledger.TransactionFilter) bool {
	if f.AccountID != "" && t.AccountID != f.AccountID && t.ToAccountID != f.AccountID {
		return false
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && t.Date.After(*f.To) {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, typ := range f.Types {
			if t.Type == typ {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (v view) FindDuplicate(_ context.Context, k ledger.DuplicateKey) (*ledger.Transaction, error) {
	for _, t := range v.s.transactions {
		if k.Matches(t) {
			return &t, nil
		}
	}
	return nil, nil
}
