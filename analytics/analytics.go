/*
Package analytics aggregates the transaction log into read-only reports.

REPORTS:
  Summary:   category breakdowns, monthly income/expense buckets and
             totals over a Period
  Dashboard: total balance, current-month figures and recent activity

Only INCOME and EXPENSE rows count; transfers move money between the
user's own accounts and are neither. Digital tax rows are expenses like
any other. Nothing here writes to the store.

SEE ALSO:
  - period.go: Period windows
  - api/handlers.go: /api/analytics and /api/dashboard
*/
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/spending-tracker/ledger"
)

// Fallbacks for totals whose category no longer resolves.
const (
	UnknownCategory     = "Unknown"
	UnknownExpenseColor = "#ef4444"
	UnknownIncomeColor  = "#22c55e"
)

// RecentLimit is the number of transactions on the dashboard.
const RecentLimit = 5

// CategoryTotal is the sum of one category's transactions.
type CategoryTotal struct {
	CategoryID ledger.CategoryID `json:"categoryId"`
	Name       string            `json:"name"`
	Color      string            `json:"color"`
	Amount     decimal.Decimal   `json:"value"`
}

// MonthBucket holds one calendar month of income and expenses.
type MonthBucket struct {
	Month   string          `json:"name"`
	Start   time.Time       `json:"start"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// Summary is the analytics report of a period.
type Summary struct {
	Period       Period          `json:"period"`
	Label        string          `json:"periodLabel"`
	Spending     []CategoryTotal `json:"spendingData"`
	Income       []CategoryTotal `json:"incomeData"`
	Monthly      []MonthBucket   `json:"balanceData"`
	TotalIncome  decimal.Decimal `json:"totalIncome"`
	TotalExpense decimal.Decimal `json:"totalExpense"`
	NetSavings   decimal.Decimal `json:"netSavings"`
}

// Dashboard is the landing page report.
type Dashboard struct {
	TotalBalance    decimal.Decimal
	AccountCount    int
	MonthlyIncome   decimal.Decimal
	MonthlyExpenses decimal.Decimal
	Accounts        []ledger.Account
	Recent          []ledger.Transaction
}

// Service builds reports from a store.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

// New creates a report service over store.
func New(store ledger.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summarize builds the report of period p.
func (s *Service) Summarize(ctx context.Context, p Period) (Summary, error) {
	w := p.Range(s.now())
	f := ledger.TransactionFilter{
		From:  w.Start,
		To:    &w.End,
		Types: []ledger.TransactionType{ledger.TxIncome, ledger.TxExpense},
	}
	if w.Start == nil {
		f.To = nil
	}
	txs, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	categories, err := s.store.ListCategories(ctx, "")
	if err != nil {
		return Summary{}, err
	}
	return summarize(p, w, txs, categories), nil
}

func summarize(p Period, w Window, txs []ledger.Transaction, categories []ledger.Category) Summary {
	sum := Summary{
		Period:       p,
		Label:        p.Label(),
		Spending:     byCategory(txs, ledger.TxExpense, categories, UnknownExpenseColor),
		Income:       byCategory(txs, ledger.TxIncome, categories, UnknownIncomeColor),
		Monthly:      monthly(txs, w),
		TotalIncome:  total(txs, ledger.TxIncome),
		TotalExpense: total(txs, ledger.TxExpense),
	}
	sum.NetSavings = sum.TotalIncome.Sub(sum.TotalExpense)
	return sum
}

func total(txs []ledger.Transaction, typ ledger.TransactionType) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		if t.Type == typ {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

// byCategory sums transactions of typ per category, largest first.
// Uncategorised transactions are left out.
func byCategory(txs []ledger.Transaction, typ ledger.TransactionType, categories []ledger.Category, fallbackColor string) []CategoryTotal {
	known := make(map[ledger.CategoryID]ledger.Category, len(categories))
	for _, c := range categories {
		known[c.ID] = c
	}

	sums := make(map[ledger.CategoryID]decimal.Decimal)
	for _, t := range txs {
		if t.Type != typ || t.CategoryID == "" {
			continue
		}
		sums[t.CategoryID] = sums[t.CategoryID].Add(t.Amount)
	}

	out := make([]CategoryTotal, 0, len(sums))
	for id, amount := range sums {
		ct := CategoryTotal{CategoryID: id, Name: UnknownCategory, Color: fallbackColor, Amount: amount}
		if c, ok := known[id]; ok {
			ct.Name = c.Name
			if c.Color != "" {
				ct.Color = c.Color
			}
		}
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// monthly buckets txs by calendar month. Buckets run from the window start
// (or the oldest transaction) to the window end (or the newest
// transaction when unbounded), with empty months included.
func monthly(txs []ledger.Transaction, w Window) []MonthBucket {
	if len(txs) == 0 {
		return []MonthBucket{}
	}

	oldest, newest := txs[0].Date, txs[0].Date
	for _, t := range txs[1:] {
		if t.Date.Before(oldest) {
			oldest = t.Date
		}
		if t.Date.After(newest) {
			newest = t.Date
		}
	}
	first, last := startOfMonth(oldest), startOfMonth(newest)
	if w.Start != nil {
		first, last = startOfMonth(*w.Start), startOfMonth(w.End)
	}

	var buckets []MonthBucket
	index := make(map[time.Time]int)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		index[m] = len(buckets)
		buckets = append(buckets, MonthBucket{
			Month:   MonthLabel(m),
			Start:   m,
			Income:  decimal.Zero,
			Expense: decimal.Zero,
		})
	}

	for _, t := range txs {
		i, ok := index[startOfMonth(t.Date.In(first.Location()))]
		if !ok {
			continue
		}
		switch t.Type {
		case ledger.TxIncome:
			buckets[i].Income = buckets[i].Income.Add(t.Amount)
		case ledger.TxExpense:
			buckets[i].Expense = buckets[i].Expense.Add(t.Amount)
		}
	}
	return buckets
}

// Dashboard builds the landing page report.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{Limit: RecentLimit})
	if err != nil {
		return Dashboard{}, err
	}

	now := s.now()
	from := startOfMonth(now)
	month, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{
		From:  &from,
		Types: []ledger.TransactionType{ledger.TxIncome, ledger.TxExpense},
	})
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		TotalBalance:    ledger.TotalBalance(accounts),
		AccountCount:    len(accounts),
		MonthlyIncome:   total(month, ledger.TxIncome),
		MonthlyExpenses: total(month, ledger.TxExpense),
		Accounts:        accounts,
		Recent:          recent,
	}, nil
}
