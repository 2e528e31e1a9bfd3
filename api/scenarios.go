/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for demos. Each scenario creates accounts and categories, then
  records transactions through the same lifecycle manager the API uses,
  so every balance is derived the normal way.

AVAILABLE SCENARIOS:
  getting-started:  Two accounts and the default categories, no activity
  household:        Three months of salary, bills, groceries and savings transfers
  digital-services: Foreign subscriptions charged with IVA Digital

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Seed default categories
  3. Create accounts with opening balances
  4. Record transactions dated in the previous full months

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "household"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - cmd/server/main.go: "seed --scenario" command
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/logger"
)

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrUnknownScenario is returned by LoadScenario for an unlisted ID.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "getting-started",
		Name:        "Getting Started",
		Description: "Two accounts and the default categories, no transactions yet",
	},
	{
		ID:          "household",
		Name:        "Household",
		Description: "Three months of salary, bills, groceries and savings transfers",
	},
	{
		ID:          "digital-services",
		Name:        "Digital Services",
		Description: "Foreign subscriptions with the 10% IVA Digital tax",
	},
}

type scenarioLoader func(ctx context.Context, d *demo) error

var loaders = map[string]scenarioLoader{
	"getting-started":  loadGettingStarted,
	"household":        loadHousehold,
	"digital-services": loadDigitalServices,
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenarioHandler resets the database and loads a scenario.
func (h *Handler) LoadScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	err := h.LoadScenario(r.Context(), req.ScenarioID)
	switch {
	case errors.Is(err, ErrUnknownScenario):
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
	case errors.Is(err, errors.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "Reset is not supported by this store", nil)
	case err != nil:
		h.fail(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
	}
}

// LoadScenario resets the store and loads scenario id.
func (h *Handler) LoadScenario(ctx context.Context, id string) error {
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	rs, ok := h.Store.(resetter)
	if !ok {
		return errors.ErrUnsupported
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := rs.Reset(ctx); err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	h.currentScenario = ""

	d := &demo{h: h, now: h.now()}
	if _, err := h.categories.SeedDefaults(ctx); err != nil {
		return err
	}
	if err := load(ctx, d); err != nil {
		return fmt.Errorf("loading scenario %s: %w", id, err)
	}

	h.currentScenario = id
	log := logger.FromContext(ctx)
	log.Info().Str("scenario", id).Msg("scenario loaded")
	return nil
}

type resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadGettingStarted(ctx context.Context, d *demo) error {
	if _, err := d.account(ctx, "Cuenta Corriente", "2500000", "PYG"); err != nil {
		return err
	}
	_, err := d.account(ctx, "Efectivo", "300000", "PYG")
	return err
}

func loadHousehold(ctx context.Context, d *demo) error {
	checking, err := d.account(ctx, "Cuenta Corriente", "5000000", "PYG")
	if err != nil {
		return err
	}
	savings, err := d.account(ctx, "Ahorros", "1000000", "PYG")
	if err != nil {
		return err
	}

	for back := 3; back >= 1; back-- {
		steps := []struct {
			day      int
			typ      ledger.TransactionType
			amount   string
			desc     string
			category string
		}{
			{1, ledger.TxIncome, "8000000", "Salario mensual", "Salario"},
			{2, ledger.TxExpense, "2500000", "Alquiler", "Servicios"},
			{5, ledger.TxExpense, "350000", "ANDE y agua", "Servicios"},
			{8, ledger.TxExpense, "620000", "Supermercado", "Comida"},
			{15, ledger.TxExpense, "150000", "Combustible", "Transporte"},
			{22, ledger.TxExpense, "580000", "Supermercado", "Comida"},
		}
		for _, s := range steps {
			if err := d.spend(ctx, s.typ, s.amount, s.desc, d.day(back, s.day), checking, s.category, false); err != nil {
				return err
			}
		}
		if err := d.transfer(ctx, "1000000", "Ahorro mensual", d.day(back, 25), checking, savings); err != nil {
			return err
		}
	}
	return nil
}

func loadDigitalServices(ctx context.Context, d *demo) error {
	card, err := d.account(ctx, "Tarjeta de Crédito", "0", "USD")
	if err != nil {
		return err
	}
	checking, err := d.account(ctx, "Cuenta Corriente", "1500", "USD")
	if err != nil {
		return err
	}

	for back := 2; back >= 1; back-- {
		subs := []struct {
			day      int
			amount   string
			desc     string
			category string
		}{
			{3, "15.49", "Netflix", "Entretenimiento"},
			{7, "10.99", "Spotify", "Entretenimiento"},
			{12, "20", "ChatGPT Plus", "Servicios"},
		}
		for _, s := range subs {
			if err := d.spend(ctx, ledger.TxExpense, s.amount, s.desc, d.day(back, s.day), card, s.category, true); err != nil {
				return err
			}
		}
		if err := d.transfer(ctx, "60", "Pago tarjeta", d.day(back, 28), checking, card); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// demo records scenario data through the handler's services.
type demo struct {
	h   *Handler
	now time.Time
}

// day returns day d of the month monthsBack months before now.
func (d *demo) day(monthsBack, day int) time.Time {
	first := time.Date(d.now.Year(), d.now.Month(), 1, 12, 0, 0, 0, time.UTC)
	return first.AddDate(0, -monthsBack, day-1)
}

func (d *demo) account(ctx context.Context, name, balance, currency string) (ledger.AccountID, error) {
	a, err := d.h.accounts.Create(ctx, ledger.AccountInput{
		Name:     name,
		Currency: currency,
		Balance:  decimal.RequireFromString(balance),
	})
	return a.ID, err
}

func (d *demo) spend(ctx context.Context, typ ledger.TransactionType, amount, desc string, date time.Time, account ledger.AccountID, category string, tax bool) error {
	c, err := d.h.Store.FindCategory(ctx, category, typ.CategoryType())
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("category %q not seeded", category)
	}
	_, err = d.h.transactions.Create(ctx, ledger.Input{
		Type:            typ,
		Amount:          decimal.RequireFromString(amount),
		Description:     desc,
		Date:            &date,
		AccountID:       account,
		CategoryID:      c.ID,
		ApplyDigitalTax: tax,
	})
	return err
}

func (d *demo) transfer(ctx context.Context, amount, desc string, date time.Time, from, to ledger.AccountID) error {
	_, err := d.h.transactions.Create(ctx, ledger.Input{
		Type:        ledger.TxTransfer,
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Date:        &date,
		AccountID:   from,
		ToAccountID: to,
	})
	return err
}
