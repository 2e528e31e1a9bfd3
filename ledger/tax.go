package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Digital tax (IVA Digital) charged on expenses paid to foreign digital
// services. Fixed rate, rounded half-up to two decimals.
var DigitalTaxRate = decimal.New(10, -2)

const (
	DigitalTaxPlaces        = 2
	DigitalTaxLabel         = "IVA Digital 10%"
	DigitalTaxCategoryName  = "IVA Digital"
	DigitalTaxCategoryColor = "#f59e0b"
)

// DigitalTax returns the tax owed on amount. Amounts are positive, so
// decimal's half-away-from-zero rounding is half-up here.
func DigitalTax(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(DigitalTaxRate).Round(DigitalTaxPlaces)
}

// taxDescription derives the tax row description from its parent's.
func taxDescription(parent string) string {
	if parent == "" {
		return DigitalTaxLabel
	}
	return fmt.Sprintf("%s (%s)", parent, DigitalTaxLabel)
}

// taxCategory finds the tax category, creating it on first use.
func taxCategory(ctx context.Context, s CategoryStore) (CategoryID, error) {
	c, err := s.FindCategory(ctx, DigitalTaxCategoryName, CategoryExpense)
	if err != nil {
		return "", err
	}
	if c != nil {
		return c.ID, nil
	}
	created := Category{
		ID:    NewCategoryID(),
		Name:  DigitalTaxCategoryName,
		Type:  CategoryExpense,
		Color: DigitalTaxCategoryColor,
	}
	if err := s.CreateCategory(ctx, created); err != nil {
		return "", fmt.Errorf("creating tax category: %w", err)
	}
	return created.ID, nil
}

// newTaxChild builds the tax sub-transaction of parent.
func newTaxChild(parent Transaction, category CategoryID, now time.Time) Transaction {
	return Transaction{
		ID:           NewTransactionID(),
		Type:         TxExpense,
		Amount:       DigitalTax(parent.Amount),
		Description:  taxDescription(parent.Description),
		Date:         parent.Date,
		AccountID:    parent.AccountID,
		CategoryID:   category,
		IsDigitalTax: true,
		ParentID:     parent.ID,
		CreatedAt:    now,
	}
}
