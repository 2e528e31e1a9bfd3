package workbook

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/warp/spending-tracker/ledger"
)

// Snapshot is the store content written by an export.
type Snapshot struct {
	Accounts     []ledger.Account
	Categories   []ledger.Category
	Transactions []ledger.Transaction
}

// Load reads a Snapshot from s: accounts and categories by name,
// transactions newest first.
func Load(ctx context.Context, s ledger.Store) (Snapshot, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	categories, err := s.ListCategories(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	transactions, err := s.ListTransactions(ctx, ledger.TransactionFilter{})
	if err != nil {
		return Snapshot{}, err
	}

	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return Snapshot{Accounts: accounts, Categories: categories, Transactions: transactions}, nil
}

// Write serialises snap as an .xlsx workbook to w.
func Write(w io.Writer, snap Snapshot) error {
	f, err := Build(snap)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Build creates the export workbook in memory.
func Build(snap Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	b := builder{f: f}

	b.do(func() error {
		return f.SetDocProps(&excelize.DocProperties{Creator: "Spending Tracker"})
	})
	b.do(func() error { return f.SetSheetName("Sheet1", SheetAccounts) })
	b.do(func() error { _, err := f.NewSheet(SheetCategories); return err })
	b.do(func() error { _, err := f.NewSheet(SheetTransactions); return err })
	b.do(func() (err error) {
		b.header, err = f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E5E7EB"}},
			Border: []excelize.Border{
				{Type: "bottom", Color: "D1D5DB", Style: 1},
			},
		})
		return err
	})
	b.do(func() (err error) {
		layout := DateFormat
		b.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &layout})
		return err
	})

	b.sheet(SheetAccounts, AccountColumns, len(snap.Accounts), func(i int) []any {
		a := snap.Accounts[i]
		return []any{a.Name, a.Balance.InexactFloat64(), a.Currency}
	})

	b.sheet(SheetCategories, CategoryColumns, len(snap.Categories), func(i int) []any {
		c := snap.Categories[i]
		return []any{c.Name, string(c.Type), c.Color, c.Icon}
	})

	accountNames := make(map[ledger.AccountID]string, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accountNames[a.ID] = a.Name
	}
	categoryNames := make(map[ledger.CategoryID]string, len(snap.Categories))
	for _, c := range snap.Categories {
		categoryNames[c.ID] = c.Name
	}
	b.sheet(SheetTransactions, TransactionColumns, len(snap.Transactions), func(i int) []any {
		t := snap.Transactions[i]
		return []any{
			string(t.Type),
			t.Amount.InexactFloat64(),
			t.Description,
			t.Date.UTC(),
			accountNames[t.AccountID],
			categoryNames[t.CategoryID],
			accountNames[t.ToAccountID],
		}
	})
	if n := len(snap.Transactions); n > 0 {
		b.do(func() error {
			return f.SetCellStyle(SheetTransactions, "D2", fmt.Sprintf("D%d", n+1), b.date)
		})
	}

	if b.err != nil {
		f.Close()
		return nil, fmt.Errorf("building workbook: %w", b.err)
	}
	return f, nil
}

// builder stops at the first excelize error.
type builder struct {
	f      *excelize.File
	header int
	date   int
	err    error
}

func (b *builder) do(fn func() error) {
	if b.err == nil {
		b.err = fn()
	}
}

// sheet writes the header, column widths and n body rows.
func (b *builder) sheet(name string, cols []Column, n int, row func(i int) []any) {
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.Header
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			b.do(func() error { return err })
			return
		}
		b.do(func() error { return b.f.SetColWidth(name, col, col, c.Width) })
	}
	b.do(func() error { return b.f.SetSheetRow(name, "A1", &header) })

	last, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		b.do(func() error { return err })
		return
	}
	b.do(func() error { return b.f.SetCellStyle(name, "A1", last+"1", b.header) })

	for i := 0; i < n; i++ {
		values := row(i)
		b.do(func() error {
			return b.f.SetSheetRow(name, fmt.Sprintf("A%d", i+2), &values)
		})
	}
}
