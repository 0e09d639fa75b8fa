package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Additional-Code/bistro/internal/entity"
)

type RepositoryTestSuite struct {
	suite.Suite
	store *MemoryStore
	repo  *Repository
	clock time.Time
	ctx   context.Context

	pizza entity.MenuItem
	salad entity.MenuItem
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemoryStore()
	s.clock = time.Date(2024, 1, 5, 10, 30, 0, 123456789, time.UTC)
	s.repo = NewRepository(s.store,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return s.clock }),
	)

	menu := []entity.MenuItem{
		{Name: "Margherita", Price: 10, Category: "pizza"},
		{Name: "Caesar", Price: 5, Category: "salad"},
	}
	s.Require().NoError(s.store.PutMenuItems(s.ctx, menu))
	s.pizza, s.salad = menu[0], menu[1]
}

func (s *RepositoryTestSuite) create(name string, status entity.Status, items ...entity.LineItem) *entity.Order {
	created, err := s.repo.Create(s.ctx, &entity.Order{
		Name:    name,
		Address: "1 Main St",
		Phone:   "555-0100",
		Status:  status,
		Items:   items,
	})
	s.Require().NoError(err)
	return created
}

func (s *RepositoryTestSuite) TestCreateThenGetOne() {
	created := s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 2))

	s.True(primitive.IsValidObjectID(created.ID))
	s.Equal(entity.StatusPending, created.Status)
	s.Equal(s.clock.Truncate(time.Millisecond), created.CreatedAt)
	s.Equal(created.CreatedAt, created.UpdatedAt)

	got, err := s.repo.GetOne(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, got.ID)
	s.Equal("Ada", got.Name)
	s.Equal("1 Main St", got.Address)
	s.Equal("555-0100", got.Phone)
	s.Equal(entity.StatusPending, got.Status)
	s.Equal(created.CreatedAt, got.CreatedAt)
	s.Equal(created.UpdatedAt, got.UpdatedAt)

	s.Require().Len(got.Items, 1)
	s.True(got.Items[0].Populated)
	s.Require().NotNil(got.Items[0].Item)
	s.Equal(s.pizza, *got.Items[0].Item)
	s.Equal(2, *got.Items[0].Quantity)
}

func (s *RepositoryTestSuite) TestCreateReturnsUnresolvedReferences() {
	created := s.create("Ada", entity.StatusConfirmed, entity.NewLineItem(s.pizza.ID, 1))
	s.Require().Len(created.Items, 1)
	s.False(created.Items[0].Populated)
	s.Nil(created.Items[0].Item)
	s.Equal(s.pizza.ID, created.Items[0].ItemID)
}

func (s *RepositoryTestSuite) TestCreateDoesNotMutateInput() {
	input := &entity.Order{Name: "Ada", Address: "x", Phone: "y"}
	created, err := s.repo.Create(s.ctx, input)
	s.Require().NoError(err)
	s.Empty(input.ID)
	s.Empty(input.Status)
	s.NotEmpty(created.ID)
}

func (s *RepositoryTestSuite) TestCreateValidation() {
	_, err := s.repo.Create(s.ctx, &entity.Order{Name: "Ada", Status: "shipped"})

	var verr *entity.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "address")
	s.Contains(verr.Fields, "phone")
	s.Contains(verr.Fields, "status")

	all, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *RepositoryTestSuite) TestUpdateStatusLeavesOtherFields() {
	created := s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 2))
	s.clock = s.clock.Add(time.Hour)

	status := entity.StatusConfirmed
	updated, err := s.repo.Update(s.ctx, created.ID, entity.OrderPatch{Status: &status})
	s.Require().NoError(err)
	s.Equal(entity.StatusConfirmed, updated.Status)

	got, err := s.repo.GetOne(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(entity.StatusConfirmed, got.Status)
	s.Equal(created.Name, got.Name)
	s.Equal(created.Address, got.Address)
	s.Equal(created.Phone, got.Phone)
	s.Equal(created.CreatedAt, got.CreatedAt)
	s.Equal(created.UpdatedAt, got.UpdatedAt)
	s.Require().Len(got.Items, 1)
	s.Equal(s.pizza.ID, got.Items[0].ItemID)
}

func (s *RepositoryTestSuite) TestUpdateReplacesItems() {
	created := s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 2))

	items := []entity.LineItem{entity.NewLineItem(s.salad.ID, 4), entity.NewLineItem(s.pizza.ID, 1)}
	_, err := s.repo.Update(s.ctx, created.ID, entity.OrderPatch{Items: &items})
	s.Require().NoError(err)

	got, err := s.repo.GetOne(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Items, 2)
	s.Equal("Caesar", got.Items[0].Item.Name)
	s.Equal(4, *got.Items[0].Quantity)
	s.Equal("Margherita", got.Items[1].Item.Name)
}

func (s *RepositoryTestSuite) TestUpdateErrors() {
	status := entity.StatusConfirmed
	_, err := s.repo.Update(s.ctx, primitive.NewObjectID().Hex(), entity.OrderPatch{Status: &status})
	s.ErrorIs(err, ErrNotFound)

	_, err = s.repo.Update(s.ctx, "not-an-id", entity.OrderPatch{Status: &status})
	s.ErrorIs(err, ErrInvalidID)

	created := s.create("Ada", "")
	bad := entity.Status("lost")
	_, err = s.repo.Update(s.ctx, created.ID, entity.OrderPatch{Status: &bad})
	var verr *entity.ValidationError
	s.ErrorAs(err, &verr)
}

func (s *RepositoryTestSuite) TestRemove() {
	created := s.create("Ada", "")

	removed, err := s.repo.Remove(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, removed)

	_, err = s.repo.GetOne(s.ctx, created.ID)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.repo.Remove(s.ctx, created.ID)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.repo.Remove(s.ctx, "123")
	s.ErrorIs(err, ErrInvalidID)
}

func (s *RepositoryTestSuite) TestGetOneInvalidID() {
	_, err := s.repo.GetOne(s.ctx, "zzz")
	s.ErrorIs(err, ErrInvalidID)
}

func (s *RepositoryTestSuite) TestGetAllResolvesInInsertionOrder() {
	first := s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 1))
	second := s.create("Grace", entity.StatusDelivered, entity.NewLineItem(s.salad.ID, 1))

	all, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(first.ID, all[0].ID)
	s.Equal(second.ID, all[1].ID)
	for _, o := range all {
		for _, li := range o.Items {
			s.True(li.Populated)
			s.NotNil(li.Item)
		}
	}
}

func (s *RepositoryTestSuite) TestGetByStatusExactAndUnresolved() {
	pending := s.create("Ada", entity.StatusPending, entity.NewLineItem(s.pizza.ID, 1))
	s.create("Grace", entity.StatusConfirmed)

	orders, err := s.repo.GetByStatus(s.ctx, "pending")
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(pending.ID, orders[0].ID)
	s.Require().Len(orders[0].Items, 1)
	s.False(orders[0].Items[0].Populated)
	s.Nil(orders[0].Items[0].Item)
	s.Equal(s.pizza.ID, orders[0].Items[0].ItemID)

	orders, err = s.repo.GetByStatus(s.ctx, "PENDING")
	s.Require().NoError(err)
	s.Empty(orders)

	orders, err = s.repo.GetByStatus(s.ctx, "pend")
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *RepositoryTestSuite) TestGetByStatusQueryCaseInsensitiveSubstring() {
	pending := s.create("Ada", entity.StatusPending, entity.NewLineItem(s.pizza.ID, 1))
	s.create("Grace", entity.StatusConfirmed)

	orders, err := s.repo.GetByStatusQuery(s.ctx, "PEND")
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(pending.ID, orders[0].ID)
	s.Require().NotNil(orders[0].Items[0].Item)
	s.Equal(s.pizza.Name, orders[0].Items[0].Item.Name)

	orders, err = s.repo.GetByStatusQuery(s.ctx, "e")
	s.Require().NoError(err)
	s.Len(orders, 2)
}

func (s *RepositoryTestSuite) TestGetByStatusAndDate() {
	s.clock = time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	early := s.create("Ada", entity.StatusPending)
	s.clock = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	s.create("Grace", entity.StatusPending)
	s.clock = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	s.create("Linus", entity.StatusCancelled)

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	orders, err := s.repo.GetByStatusAndDate(s.ctx, "pend", day, day)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(early.ID, orders[0].ID)
}

func (s *RepositoryTestSuite) TestTotalSales() {
	s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 2))
	s.create("Grace", "", entity.NewLineItem(s.salad.ID, 3))

	sales, err := s.repo.TotalSales(s.ctx)
	s.Require().NoError(err)
	s.Equal(Sales{Total: 35}, sales)
}

func (s *RepositoryTestSuite) TestTotalSalesEmpty() {
	sales, err := s.repo.TotalSales(s.ctx)
	s.Require().NoError(err)
	s.Zero(sales.Total)
}

func (s *RepositoryTestSuite) TestTotalSalesByDateSameDayInclusive() {
	s.clock = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 2))
	s.clock = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	s.create("Grace", "", entity.NewLineItem(s.salad.ID, 3))

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	sales, err := s.repo.TotalSalesByDate(s.ctx, day, day)
	s.Require().NoError(err)
	s.Equal(20.0, sales.Total)

	sales, err = s.repo.TotalSalesByDate(s.ctx, day, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal(35.0, sales.Total)
}

func (s *RepositoryTestSuite) TestTotalSalesByDateUpperBoundExclusive() {
	s.clock = time.Date(2024, 1, 5, 23, 59, 58, 999000000, time.UTC)
	s.create("Inside", "", entity.NewLineItem(s.pizza.ID, 1))
	s.clock = time.Date(2024, 1, 5, 23, 59, 59, 0, time.UTC)
	s.create("Boundary", "", entity.NewLineItem(s.pizza.ID, 1))
	s.clock = time.Date(2024, 1, 5, 23, 59, 59, 500000000, time.UTC)
	s.create("LastSecond", "", entity.NewLineItem(s.pizza.ID, 1))

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	sales, err := s.repo.TotalSalesByDate(s.ctx, day, day)
	s.Require().NoError(err)
	s.Equal(10.0, sales.Total)
}

func (s *RepositoryTestSuite) TestTotalSalesDanglingItem() {
	s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 1))
	s.store.DeleteMenuItem(s.pizza.ID)

	_, err := s.repo.TotalSales(s.ctx)
	s.ErrorIs(err, ErrDanglingItem)

	all, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all[0].Items, 1)
	s.True(all[0].Items[0].Dangling())
}

func (s *RepositoryTestSuite) TestInvalidPatternIsReported() {
	s.create("Ada", "")
	_, err := s.repo.GetByStatusQuery(s.ctx, "(")

	var storeErr *StoreError
	s.Require().ErrorAs(err, &storeErr)
	s.Equal("find", storeErr.Op)
	s.ErrorIs(err, ErrInvalidPattern)

	_, err = s.repo.GetByStatusAndDate(s.ctx, "[", s.clock, s.clock)
	s.ErrorIs(err, ErrInvalidPattern)
}

func (s *RepositoryTestSuite) TestPopulateResolvesCurrentMenu() {
	created := s.create("Ada", "", entity.NewLineItem(s.pizza.ID, 2))
	s.Nil(created.Items[0].Item)

	s.pizza.Price = 12
	s.Require().NoError(s.store.PutMenuItems(s.ctx, []entity.MenuItem{s.pizza}))

	s.Require().NoError(s.repo.Populate(s.ctx, created))
	s.Require().NotNil(created.Items[0].Item)
	s.Equal(12.0, created.Items[0].Item.Price)

	s.store.DeleteMenuItem(s.pizza.ID)
	s.Require().NoError(s.repo.Populate(s.ctx, created))
	s.True(created.Items[0].Dangling())
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) Find(context.Context, Filter) ([]entity.Order, error) {
	return nil, f.err
}

func (f failingStore) Ping(context.Context) error {
	return f.err
}

func TestRepositoryWrapsStoreFailures(t *testing.T) {
	boom := errors.New("connection reset")
	repo := NewRepository(failingStore{MemoryStore: NewMemoryStore(), err: boom})

	_, err := repo.GetAll(context.Background())
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "find", storeErr.Op)
	assert.ErrorIs(t, err, boom)

	_, err = repo.TotalSales(context.Background())
	assert.ErrorIs(t, err, boom)

	err = repo.Ping(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRepositoryConcurrentCreates(t *testing.T) {
	repo := NewRepository(NewMemoryStore())
	ctx := context.Background()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := repo.Create(ctx, &entity.Order{Name: "Ada", Address: "x", Phone: "y"})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n)
}
