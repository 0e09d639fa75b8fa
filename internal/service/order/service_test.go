package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/cache"
	"github.com/Additional-Code/bistro/internal/config"
	"github.com/Additional-Code/bistro/internal/entity"
	"github.com/Additional-Code/bistro/internal/messaging"
	repo "github.com/Additional-Code/bistro/internal/repository/order"
	"github.com/Additional-Code/bistro/pkg/errorbank"
)

type fixture struct {
	svc   *Service
	store *repo.MemoryStore
	cache *cache.MemoryStore
	bus   *messaging.MemoryBus
	menu  entity.MenuItem
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := repo.NewMemoryStore()
	menu := []entity.MenuItem{{Name: "Margherita", Price: 10}}
	require.NoError(t, store.PutMenuItems(context.Background(), menu))

	cfg := config.Config{}
	cfg.Cache.DefaultTTL = time.Minute
	cfg.Messaging.Enabled = true
	cfg.Messaging.Kafka.Topic = "orders.events"

	c := cache.NewMemory(time.Minute)
	bus := messaging.NewMemoryBus(cfg.Messaging.Kafka.Topic, 16)
	svc := NewService(Params{
		Repository: repo.NewRepository(store, repo.WithLocation(time.UTC)),
		Cache:      c,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Publisher:  bus,
	})
	return fixture{svc: svc, store: store, cache: c, bus: bus, menu: menu[0]}
}

func (f fixture) order() *entity.Order {
	return &entity.Order{
		Name:    "Ada",
		Address: "1 Main St",
		Phone:   "555-0100",
		Items:   []entity.LineItem{entity.NewLineItem(f.menu.ID, 2)},
	}
}

// nextEvent pulls one published message from the bus.
func nextEvent(t *testing.T, bus *messaging.MemoryBus) (messaging.Message, OrderEvent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got messaging.Message
	errStop := errors.New("stop")
	err := bus.Consume(ctx, func(_ context.Context, msg messaging.Message) error {
		if got.Value == nil {
			got = msg
		}
		cancel()
		return errStop
	})
	require.ErrorIs(t, err, context.Canceled, "no event published")

	var event OrderEvent
	require.NoError(t, json.Unmarshal(got.Value, &event))
	return got, event
}

func TestServiceCreatePublishesEvent(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(context.Background(), f.order())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, created.Status)

	msg, event := nextEvent(t, f.bus)
	assert.Equal(t, EventCreated, msg.Header(messaging.HeaderEventType))
	assert.Equal(t, "order-"+created.ID, string(msg.Key))
	assert.Equal(t, EventCreated, event.Type)
	assert.Equal(t, created.ID, event.ID)
	assert.Equal(t, "pending", event.Status)
}

func TestServiceCreateNil(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), nil)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.KindOf(err))
}

func TestServiceCreateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), &entity.Order{Name: "Ada"})

	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errorbank.KindUnprocessableEntity, appErr.Kind())
	assert.Equal(t, "is required", appErr.Details()["address"])
	assert.Equal(t, "is required", appErr.Details()["phone"])
}

func TestServiceGetCachesAndUpdateEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, f.order())
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Items[0].Item)

	raw, err := f.cache.Get(ctx, "orders:"+created.ID)
	require.NoError(t, err)
	var cached entity.Order
	require.NoError(t, json.Unmarshal(raw, &cached))
	assert.Equal(t, created.ID, cached.ID)
	assert.Equal(t, f.menu.ID, cached.Items[0].ItemID)
	assert.Nil(t, cached.Items[0].Item)

	// A direct store write is invisible while the cached copy lives.
	name := "Changed"
	_, err = f.store.UpdateByID(ctx, created.ID, entity.OrderPatch{Name: &name})
	require.NoError(t, err)
	got, err = f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	status := entity.StatusConfirmed
	_, err = f.svc.Update(ctx, created.ID, entity.OrderPatch{Status: &status})
	require.NoError(t, err)
	_, err = f.cache.Get(ctx, "orders:"+created.ID)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	got, err = f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", got.Name)
	assert.Equal(t, entity.StatusConfirmed, got.Status)
}

func TestServiceGetResolvesMenuAfterCacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, f.order())
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Items[0].Item)
	assert.Equal(t, 10.0, got.Items[0].Item.Price)

	repriced := f.menu
	repriced.Price = 99
	require.NoError(t, f.store.PutMenuItems(ctx, []entity.MenuItem{repriced}))

	got, err = f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Items[0].Item)
	assert.Equal(t, 99.0, got.Items[0].Item.Price)

	_, err = f.cache.Get(ctx, "orders:"+created.ID)
	require.NoError(t, err, "order should still be served from cache")

	f.store.DeleteMenuItem(f.menu.ID)
	got, err = f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Items[0].Dangling())
}

func TestServiceInvalidStatusPattern(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SearchByStatus(context.Background(), "(")
	assert.Equal(t, errorbank.KindBadRequest, errorbank.KindOf(err))

	from := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.SearchByStatusAndDate(context.Background(), "[", from, from)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.KindOf(err))
}

func TestServiceRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, f.order())
	require.NoError(t, err)
	nextEvent(t, f.bus)

	_, err = f.svc.Get(ctx, created.ID)
	require.NoError(t, err)

	removed, err := f.svc.Remove(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed)

	msg, event := nextEvent(t, f.bus)
	assert.Equal(t, EventRemoved, msg.Header(messaging.HeaderEventType))
	assert.Equal(t, created.ID, event.ID)

	_, err = f.svc.Get(ctx, created.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.KindOf(err))

	_, err = f.svc.Remove(ctx, created.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.KindOf(err))
}

func TestServiceInvalidID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "nope")
	assert.Equal(t, errorbank.KindBadRequest, errorbank.KindOf(err))
}

func TestServiceSearchesAndSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.order())
	require.NoError(t, err)

	byStatus, err := f.svc.ListByStatus(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.False(t, byStatus[0].Items[0].Populated)

	search, err := f.svc.SearchByStatus(ctx, "PEND")
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.NotNil(t, search[0].Items[0].Item)

	today := time.Now().UTC()
	ranged, err := f.svc.SearchByStatusAndDate(ctx, "pend", today, today)
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	sales, err := f.svc.TotalSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, sales.Total)

	sales, err = f.svc.TotalSalesByDate(ctx, today.AddDate(0, 0, -2), today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, sales.Total)
}

func TestServiceDanglingSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.order())
	require.NoError(t, err)
	f.store.DeleteMenuItem(f.menu.ID)

	_, err = f.svc.TotalSales(ctx)
	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errorbank.KindInternal, appErr.Kind())
	assert.Equal(t, "dangling_menu_item", appErr.Details()["reason"])
}

func TestServiceMessagingDisabled(t *testing.T) {
	store := repo.NewMemoryStore()
	bus := messaging.NewMemoryBus("orders.events", 1)
	svc := NewService(Params{
		Repository: repo.NewRepository(store),
		Cache:      cache.Noop(),
		Publisher:  bus,
	})

	_, err := svc.Create(context.Background(), &entity.Order{Name: "a", Address: "b", Phone: "c"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = bus.Consume(ctx, func(context.Context, messaging.Message) error {
		t.Fatal("unexpected event")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind errorbank.Kind
	}{
		{"validation", &entity.ValidationError{Fields: map[string]string{"name": "is required"}}, errorbank.KindUnprocessableEntity},
		{"not found", repo.ErrNotFound, errorbank.KindNotFound},
		{"invalid id", fmt.Errorf("%w: %q", repo.ErrInvalidID, "x"), errorbank.KindBadRequest},
		{"invalid pattern", &repo.StoreError{Op: "find", Err: fmt.Errorf("%w: missing )", repo.ErrInvalidPattern)}, errorbank.KindBadRequest},
		{"dangling", fmt.Errorf("order: %w", repo.ErrDanglingItem), errorbank.KindInternal},
		{"timeout", &repo.StoreError{Op: "find", Err: context.DeadlineExceeded}, errorbank.KindUnavailable},
		{"store", &repo.StoreError{Op: "find", Err: errors.New("boom")}, errorbank.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := translate(tc.err, "failed")
			assert.Equal(t, tc.kind, appErr.Kind())
			assert.ErrorIs(t, appErr, tc.err)
		})
	}
}

func TestEvict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := primitive.NewObjectID().Hex()
	require.NoError(t, f.cache.Set(ctx, "orders:"+id, []byte("{}"), 0))
	require.NoError(t, f.svc.Evict(ctx, id))
	_, err := f.cache.Get(ctx, "orders:"+id)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
