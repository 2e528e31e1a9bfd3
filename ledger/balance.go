/*
balance.go - Balance effects of transactions

PURPOSE:
  A transaction changes one or two account balances. This file is the only
  place that knows by how much:

    type      | source account | destination account
    ----------+----------------+--------------------
    INCOME    | +amount        | n/a
    EXPENSE   | -amount        | n/a
    TRANSFER  | -amount        | +amount

CONTRACT:
  Apply and Revert are exact inverses: Revert(Apply(s, e), e) == s.
  They do not deduplicate. Callers guarantee each transaction's effect is
  applied at most once and validate the effect beforehand (positive amount,
  known type, destination present and distinct only for transfers).

TWO FORMS:
  - Apply/Revert: pure functions over an in-memory Balances map
  - ApplyEffect/RevertEffect: the same deltas pushed through a Store,
    used inside a TxStore unit by lifecycle.go and the importer

SEE ALSO:
  - lifecycle.go: Orchestrates effects around row writes
  - importer/importer.go: Applies effects for imported rows
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Effect is the balance-relevant projection of a transaction.
type Effect struct {
	Type        TransactionType
	Amount      decimal.Decimal
	AccountID   AccountID
	ToAccountID AccountID
}

// Delta is a signed change to one account balance.
type Delta struct {
	AccountID AccountID
	Amount    decimal.Decimal
}

// Deltas returns the signed per-account changes of e.
func (e Effect) Deltas() []Delta {
	switch e.Type {
	case TxIncome:
		return []Delta{{AccountID: e.AccountID, Amount: e.Amount}}
	case TxExpense:
		return []Delta{{AccountID: e.AccountID, Amount: e.Amount.Neg()}}
	case TxTransfer:
		if e.ToAccountID == "" {
			return nil
		}
		return []Delta{
			{AccountID: e.AccountID, Amount: e.Amount.Neg()},
			{AccountID: e.ToAccountID, Amount: e.Amount},
		}
	}
	return nil
}

// Inverse returns the deltas that undo e.
func (e Effect) Inverse() []Delta {
	deltas := e.Deltas()
	for i := range deltas {
		deltas[i].Amount = deltas[i].Amount.Neg()
	}
	return deltas
}

// =============================================================================
// PURE FORM
// =============================================================================

// Balances maps accounts to their balance. Missing accounts read as zero.
type Balances map[AccountID]decimal.Decimal

// Of returns the balance of id.
func (b Balances) Of(id AccountID) decimal.Decimal {
	if v, ok := b[id]; ok {
		return v
	}
	return decimal.Zero
}

func (b Balances) with(deltas []Delta) Balances {
	out := make(Balances, len(b)+len(deltas))
	for k, v := range b {
		out[k] = v
	}
	for _, d := range deltas {
		out[d.AccountID] = out.Of(d.AccountID).Add(d.Amount)
	}
	return out
}

// Apply returns a copy of b with the effect of e applied.
func Apply(b Balances, e Effect) Balances {
	return b.with(e.Deltas())
}

// Revert returns a copy of b with the effect of e removed.
func Revert(b Balances, e Effect) Balances {
	return b.with(e.Inverse())
}

// =============================================================================
// STORE FORM
// =============================================================================

// BalanceAdjuster is the single store capability the mutator needs.
type BalanceAdjuster interface {
	AdjustBalance(ctx context.Context, id AccountID, delta decimal.Decimal) error
}

// ApplyEffect applies e to the stored balances.
func ApplyEffect(ctx context.Context, s BalanceAdjuster, e Effect) error {
	return adjust(ctx, s, e.Deltas())
}

// RevertEffect removes e from the stored balances.
func RevertEffect(ctx context.Context, s BalanceAdjuster, e Effect) error {
	return adjust(ctx, s, e.Inverse())
}

func adjust(ctx context.Context, s BalanceAdjuster, deltas []Delta) error {
	for _, d := range deltas {
		if err := s.AdjustBalance(ctx, d.AccountID, d.Amount); err != nil {
			return fmt.Errorf("adjusting balance of %s: %w", d.AccountID, err)
		}
	}
	return nil
}
