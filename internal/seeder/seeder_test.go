package seeder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	repo "github.com/Additional-Code/bistro/internal/repository/order"
)

func TestSeedOrdersIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	repository := repo.NewRepository(store)
	s := New(store, repository, zap.NewNop())

	require.NoError(t, s.Orders(ctx))
	require.NoError(t, s.Orders(ctx))

	orders, err := repository.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 3)

	for _, o := range orders {
		for _, li := range o.Items {
			require.NotNil(t, li.Item, "order %s has an unresolved item", o.Name)
		}
	}

	sales, err := repository.TotalSales(ctx)
	require.NoError(t, err)
	// 2*9.5 + 2*3 + 11 + 7.25 + 3*5
	assert.InDelta(t, 58.25, sales.Total, 0.0001)
}

func TestSeedMenuItemsOnly(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := New(store, repo.NewRepository(store), nil)

	require.NoError(t, s.MenuItems(ctx))

	ids := make([]string, 0, len(menu))
	for _, item := range menu {
		ids = append(ids, item.ID)
	}
	items, err := store.MenuItems(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, items, len(menu))
	assert.Equal(t, "Lemonade", items["64b7f0a1c2d3e4f5a6b7c805"].Name)
}
