package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Categories manages category rows.
type Categories struct {
	store Store
}

// NewCategories creates a category service backed by store.
func NewCategories(store Store) *Categories {
	return &Categories{store: store}
}

// CategoryInput holds the fields of a new category.
type CategoryInput struct {
	Name  string
	Type  CategoryType
	Color string
	Icon  string
}

// Create adds a category unless one with the same name and type exists.
func (c *Categories) Create(ctx context.Context, in CategoryInput) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Type == "" {
		return Category{}, reject(ErrInvalidInput, MsgCategoryRequired)
	}
	if !in.Type.Valid() {
		return Category{}, reject(ErrInvalidInput, MsgCategoryRequired)
	}

	existing, err := c.store.FindCategory(ctx, name, in.Type)
	if err != nil {
		return Category{}, err
	}
	if existing != nil {
		return Category{}, reject(ErrCategoryExists, MsgCategoryExists)
	}

	color := in.Color
	if color == "" {
		color = DefaultCategoryColor
	}
	cat := Category{ID: NewCategoryID(), Name: name, Type: in.Type, Color: color, Icon: in.Icon}
	if err := c.store.CreateCategory(ctx, cat); err != nil {
		return Category{}, fmt.Errorf("creating category: %w", err)
	}
	return cat, nil
}

// Delete removes a category. Transactions that used it become uncategorised.
func (c *Categories) Delete(ctx context.Context, id CategoryID) error {
	cat, err := c.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if cat == nil {
		return reject(ErrCategoryNotFound, MsgCategoryNotFound)
	}
	return c.store.DeleteCategory(ctx, id)
}

// List returns categories of type t ordered by name; t == "" lists all.
func (c *Categories) List(ctx context.Context, t CategoryType) ([]Category, error) {
	return c.store.ListCategories(ctx, t)
}

// SeedDefaults inserts DefaultCategories when the store has no category yet.
// Returns the number of categories inserted.
func (c *Categories) SeedDefaults(ctx context.Context) (int, error) {
	n, err := c.store.CountCategories(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	for _, d := range DefaultCategories {
		d.ID = NewCategoryID()
		if err := c.store.CreateCategory(ctx, d); err != nil {
			return 0, fmt.Errorf("seeding category %q: %w", d.Name, err)
		}
	}
	return len(DefaultCategories), nil
}

// DefaultCategories is the starter set offered to a new ledger.
var DefaultCategories = []Category{
	{Name: "Salario", Type: CategoryIncome, Color: "#22c55e"},
	{Name: "Freelance", Type: CategoryIncome, Color: "#10b981"},
	{Name: "Inversiones", Type: CategoryIncome, Color: "#14b8a6"},
	{Name: "Otros Ingresos", Type: CategoryIncome, Color: "#06b6d4"},
	{Name: "Comida", Type: CategoryExpense, Color: "#f43f5e"},
	{Name: "Transporte", Type: CategoryExpense, Color: "#ef4444"},
	{Name: "Compras", Type: CategoryExpense, Color: "#f97316"},
	{Name: "Servicios", Type: CategoryExpense, Color: "#eab308"},
	{Name: "Entretenimiento", Type: CategoryExpense, Color: "#a855f7"},
	{Name: "Salud", Type: CategoryExpense, Color: "#ec4899"},
	{Name: "Otros Gastos", Type: CategoryExpense, Color: "#6366f1"},
}
