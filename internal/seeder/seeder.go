package seeder

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/entity"
	repo "github.com/Additional-Code/bistro/internal/repository/order"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Menu item ids are fixed so re-seeding replaces instead of duplicating.
var menu = []entity.MenuItem{
	{ID: "64b7f0a1c2d3e4f5a6b7c801", Name: "Margherita", Description: "Tomato, mozzarella and basil", Price: 9.5, Category: "pizza"},
	{ID: "64b7f0a1c2d3e4f5a6b7c802", Name: "Diavola", Description: "Spicy salami and chili", Price: 11, Category: "pizza"},
	{ID: "64b7f0a1c2d3e4f5a6b7c803", Name: "Caesar Salad", Description: "Romaine, parmesan and croutons", Price: 7.25, Category: "salad"},
	{ID: "64b7f0a1c2d3e4f5a6b7c804", Name: "Tiramisu", Description: "Espresso soaked ladyfingers", Price: 5, Category: "dessert"},
	{ID: "64b7f0a1c2d3e4f5a6b7c805", Name: "Lemonade", Price: 3, Category: "drink"},
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	store  repo.Store
	repo   *repo.Repository
	logger *zap.Logger
}

// New constructs a Seeder over the configured order store.
func New(store repo.Store, repository *repo.Repository, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, repo: repository, logger: logger}
}

// MenuItems upserts the sample menu.
func (s *Seeder) MenuItems(ctx context.Context) error {
	items := make([]entity.MenuItem, len(menu))
	copy(items, menu)
	if err := s.store.PutMenuItems(ctx, items); err != nil {
		return fmt.Errorf("seed menu items: %w", err)
	}
	s.logger.Info("seeded menu items", zap.Int("count", len(items)))
	return nil
}

// Orders seeds the menu and a handful of example orders when no orders exist yet.
func (s *Seeder) Orders(ctx context.Context) error {
	if err := s.MenuItems(ctx); err != nil {
		return err
	}

	existing, err := s.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("check existing orders: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("orders already present; skipping", zap.Int("count", len(existing)))
		return nil
	}

	samples := []entity.Order{
		{
			Name:    "Ada Lovelace",
			Address: "12 Analytical Row",
			Phone:   "555-0100",
			Items: []entity.LineItem{
				entity.NewLineItem(menu[0].ID, 2),
				entity.NewLineItem(menu[4].ID, 2),
			},
		},
		{
			Name:    "Alan Turing",
			Address: "7 Bletchley Lane",
			Phone:   "555-0101",
			Status:  entity.StatusConfirmed,
			Items: []entity.LineItem{
				entity.NewLineItem(menu[1].ID, 1),
				entity.NewLineItem(menu[2].ID, 1),
			},
		},
		{
			Name:    "Grace Hopper",
			Address: "3 Compiler Court",
			Phone:   "555-0102",
			Status:  entity.StatusDelivered,
			Items: []entity.LineItem{
				entity.NewLineItem(menu[3].ID, 3),
			},
		},
	}

	for i := range samples {
		if _, err := s.repo.Create(ctx, &samples[i]); err != nil {
			return fmt.Errorf("seed order %q: %w", samples[i].Name, err)
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	return nil
}
