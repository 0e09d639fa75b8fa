package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/bistro/internal/entity"
)

const instrumentationName = "github.com/Additional-Code/bistro/repository/order"

var (
	repoTracer = otel.Tracer(instrumentationName)
	repoMeter  = otel.Meter(instrumentationName)
)

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidID is returned when an identifier is not a valid object id.
	ErrInvalidID = errors.New("invalid order id")
	// ErrDanglingItem is returned when a sales total meets a line item whose menu item is gone.
	ErrDanglingItem = errors.New("line item references a missing menu item")
	// ErrInvalidPattern is returned when the store rejects a status pattern as a regular expression.
	ErrInvalidPattern = errors.New("invalid status pattern")
)

// StoreError wraps a failure reported by the document store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("order store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store is the document store holding orders and the menu items they reference.
// Implementations return ErrNotFound for absent orders and never resolve references.
type Store interface {
	Find(ctx context.Context, filter Filter) ([]entity.Order, error)
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	Insert(ctx context.Context, order *entity.Order) error
	UpdateByID(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error)
	DeleteByID(ctx context.Context, id string) (*entity.Order, error)
	MenuItems(ctx context.Context, ids []string) (map[string]entity.MenuItem, error)
	PutMenuItems(ctx context.Context, items []entity.MenuItem) error
	Ping(ctx context.Context) error
}

// Sales is the total sales aggregate.
type Sales struct {
	Total float64 `json:"total"`
}

// Repository is the access path to orders. Reads that return item data resolve
// line item references before handing orders back.
type Repository struct {
	store    Store
	location *time.Location
	now      func() time.Time

	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

// Option customises a Repository.
type Option func(*Repository)

// WithLocation sets the time zone used for calendar-day bounds.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithClock overrides the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository wires a repository on top of store.
func NewRepository(store Store, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	var err error
	r.operations, err = repoMeter.Int64Counter("orders.repository.operations",
		metric.WithDescription("Order repository operations by name and outcome"))
	if err != nil {
		r.operations = noop.Int64Counter{}
	}
	r.duration, err = repoMeter.Float64Histogram("orders.repository.duration",
		metric.WithDescription("Order repository operation latency"),
		metric.WithUnit("s"))
	if err != nil {
		r.duration = noop.Float64Histogram{}
	}
	return r
}

// Location returns the time zone used for calendar-day bounds.
func (r *Repository) Location() *time.Location {
	return r.location
}

// GetAll returns every order with line items resolved.
func (r *Repository) GetAll(ctx context.Context) ([]entity.Order, error) {
	ctx, end := r.begin(ctx, "GetAll")
	orders, err := r.find(ctx, Query{PopulateItem: true})
	end(err)
	return orders, err
}

// GetOne fetches a single order with line items resolved.
func (r *Repository) GetOne(ctx context.Context, id string) (*entity.Order, error) {
	ctx, end := r.begin(ctx, "GetOne", attribute.String("order.id", id))
	order, err := r.getOne(ctx, id)
	end(err)
	return order, err
}

func (r *Repository) getOne(ctx context.Context, id string) (*entity.Order, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	order, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStore("findById", err)
	}
	if err := r.populate(ctx, []*entity.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// Create validates and inserts a new order, applying status and timestamp defaults.
func (r *Repository) Create(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if order == nil {
		return nil, errors.New("nil order")
	}
	ctx, end := r.begin(ctx, "Create")
	created, err := r.create(ctx, order)
	end(err)
	return created, err
}

func (r *Repository) create(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	doc := *order
	doc.ID = ""
	doc.Items = stripItems(order.Items)
	doc.ApplyDefaults(r.now().Truncate(time.Millisecond))
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, &doc); err != nil {
		return nil, wrapStore("create", err)
	}
	return &doc, nil
}

// Update applies a partial replacement and returns the updated order. UpdatedAt is
// only changed when the patch carries it.
func (r *Repository) Update(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error) {
	ctx, end := r.begin(ctx, "Update", attribute.String("order.id", id))
	order, err := r.update(ctx, id, patch)
	end(err)
	return order, err
}

func (r *Repository) update(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Items != nil {
		items := stripItems(*patch.Items)
		patch.Items = &items
	}
	order, err := r.store.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, wrapStore("findByIdAndUpdate", err)
	}
	return order, nil
}

// Remove deletes an order and returns its identifier.
func (r *Repository) Remove(ctx context.Context, id string) (string, error) {
	ctx, end := r.begin(ctx, "Remove", attribute.String("order.id", id))
	removed, err := r.remove(ctx, id)
	end(err)
	return removed, err
}

func (r *Repository) remove(ctx context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	order, err := r.store.DeleteByID(ctx, id)
	if err != nil {
		return "", wrapStore("findByIdAndDelete", err)
	}
	if order == nil {
		return "", ErrNotFound
	}
	return order.ID, nil
}

// GetByStatus returns orders whose status equals status exactly. Line item
// references are left unresolved: only the items array itself is requested, so
// each entry keeps the raw menu item id.
func (r *Repository) GetByStatus(ctx context.Context, status string) ([]entity.Order, error) {
	ctx, end := r.begin(ctx, "GetByStatus", attribute.String("order.status", status))
	orders, err := r.find(ctx, Query{Filter: Filter{Status: status}})
	end(err)
	return orders, err
}

// GetByStatusQuery returns orders whose status matches pattern case-insensitively.
func (r *Repository) GetByStatusQuery(ctx context.Context, pattern string) ([]entity.Order, error) {
	ctx, end := r.begin(ctx, "GetByStatusQuery", attribute.String("order.status_pattern", pattern))
	orders, err := r.find(ctx, Query{Filter: Filter{StatusPattern: pattern}, PopulateItem: true})
	end(err)
	return orders, err
}

// GetByStatusAndDate combines the status pattern with the calendar-day range from..to.
func (r *Repository) GetByStatusAndDate(ctx context.Context, pattern string, from, to time.Time) ([]entity.Order, error) {
	ctx, end := r.begin(ctx, "GetByStatusAndDate",
		attribute.String("order.status_pattern", pattern),
		attribute.String("range.from", from.Format(time.DateOnly)),
		attribute.String("range.to", to.Format(time.DateOnly)),
	)
	lower, upper := DayRange(from, to, r.location)
	orders, err := r.find(ctx, Query{
		Filter:       Filter{StatusPattern: pattern, CreatedFrom: lower, CreatedBefore: upper},
		PopulateItem: true,
	})
	end(err)
	return orders, err
}

// TotalSales sums price times quantity over every line item of every order.
func (r *Repository) TotalSales(ctx context.Context) (Sales, error) {
	ctx, end := r.begin(ctx, "TotalSales")
	sales, err := r.totalSales(ctx, Filter{})
	end(err)
	return sales, err
}

// TotalSalesByDate sums sales for orders created within the calendar-day range from..to.
func (r *Repository) TotalSalesByDate(ctx context.Context, from, to time.Time) (Sales, error) {
	ctx, end := r.begin(ctx, "TotalSalesByDate",
		attribute.String("range.from", from.Format(time.DateOnly)),
		attribute.String("range.to", to.Format(time.DateOnly)),
	)
	lower, upper := DayRange(from, to, r.location)
	sales, err := r.totalSales(ctx, Filter{CreatedFrom: lower, CreatedBefore: upper})
	end(err)
	return sales, err
}

// Ping checks that the store answers.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return wrapStore("ping", err)
	}
	return nil
}

func (r *Repository) totalSales(ctx context.Context, filter Filter) (Sales, error) {
	orders, err := r.find(ctx, Query{Filter: filter, PopulateItem: true})
	if err != nil {
		return Sales{}, err
	}
	return sumSales(orders)
}

func sumSales(orders []entity.Order) (Sales, error) {
	var total float64
	for _, order := range orders {
		for i, li := range order.Items {
			if li.Item == nil {
				return Sales{}, fmt.Errorf("order %s item %d (%s): %w", order.ID, i, li.ItemID, ErrDanglingItem)
			}
			qty := 0
			if li.Quantity != nil {
				qty = *li.Quantity
			}
			total += li.Item.Price * float64(qty)
		}
	}
	return Sales{Total: total}, nil
}

func (r *Repository) find(ctx context.Context, q Query) ([]entity.Order, error) {
	orders, err := r.store.Find(ctx, q.Filter)
	if err != nil {
		return nil, wrapStore("find", err)
	}
	if !q.PopulateItem {
		return orders, nil
	}
	refs := make([]*entity.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := r.populate(ctx, refs); err != nil {
		return nil, err
	}
	return orders, nil
}

// Populate resolves the line item references of order in place.
func (r *Repository) Populate(ctx context.Context, order *entity.Order) error {
	ctx, end := r.begin(ctx, "Populate", attribute.String("order.id", order.ID))
	err := r.populate(ctx, []*entity.Order{order})
	end(err)
	return err
}

// populate replaces each line item reference with the referenced menu item,
// leaving Item nil for references that no longer resolve.
func (r *Repository) populate(ctx context.Context, orders []*entity.Order) error {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, order := range orders {
		for _, li := range order.Items {
			if li.ItemID == "" {
				continue
			}
			if _, ok := seen[li.ItemID]; ok {
				continue
			}
			seen[li.ItemID] = struct{}{}
			ids = append(ids, li.ItemID)
		}
	}

	var items map[string]entity.MenuItem
	if len(ids) > 0 {
		var err error
		items, err = r.store.MenuItems(ctx, ids)
		if err != nil {
			return wrapStore("populate", err)
		}
	}

	for _, order := range orders {
		for i := range order.Items {
			li := &order.Items[i]
			li.Populated = true
			li.Item = nil
			if item, ok := items[li.ItemID]; ok {
				li.Item = &item
			}
		}
	}
	return nil
}

func (r *Repository) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := repoTracer.Start(ctx, "OrderRepository."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			outcome = "not_found"
			span.SetStatus(codes.Error, "not found")
		default:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		opAttrs := metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		)
		r.operations.Add(ctx, 1, opAttrs)
		r.duration.Record(ctx, time.Since(start).Seconds(), opAttrs)
		span.End()
	}
}

func checkID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func wrapStore(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// stripItems keeps only what is persisted for a line item: the reference and quantity.
func stripItems(items []entity.LineItem) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(items))
	for _, li := range items {
		itemID := li.ItemID
		if itemID == "" && li.Item != nil {
			itemID = li.Item.ID
		}
		out = append(out, entity.LineItem{ItemID: itemID, Quantity: li.Quantity})
	}
	return out
}
