package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/cache"
	"github.com/Additional-Code/bistro/internal/config"
	"github.com/Additional-Code/bistro/internal/entity"
	applog "github.com/Additional-Code/bistro/internal/logger"
	"github.com/Additional-Code/bistro/internal/messaging"
	repo "github.com/Additional-Code/bistro/internal/repository/order"
	"github.com/Additional-Code/bistro/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/bistro/service/order")

// Order lifecycle event types.
const (
	EventCreated = "order.created"
	EventUpdated = "order.updated"
	EventRemoved = "order.removed"
)

// Service encapsulates business logic around orders.
type Service struct {
	repo      *repo.Repository
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      p.Repository,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// Location returns the time zone calendar dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.repo.Location()
}

// List returns every order with resolved line items.
func (s *Service) List(ctx context.Context) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, s.fail(span, err, "failed to list orders")
	}
	return orders, nil
}

// Get retrieves an order by id, consulting cache when available. The cache holds
// item references only; menu items are resolved on every read.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		if err := s.repo.Populate(ctx, order); err != nil {
			return nil, s.fail(span, err, "failed to load order")
		}
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("id", id), zap.Error(err))
	}

	order, err := s.repo.GetOne(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	}

	return order, nil
}

// Create inserts a new order and announces it.
func (s *Service) Create(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if order == nil {
		return nil, errorbank.BadRequest("order payload is required")
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("order.name", order.Name),
		attribute.Int("order.items", len(order.Items)),
	))
	defer span.End()

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, s.fail(span, err, "failed to create order")
	}

	s.publish(ctx, EventCreated, created)
	return created, nil
}

// Update applies a partial update, drops the cached copy and announces the change.
func (s *Service) Update(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, s.fail(span, err, "failed to update order")
	}

	s.evict(ctx, id)
	s.publish(ctx, EventUpdated, updated)
	return updated, nil
}

// Remove deletes an order and returns its identifier.
func (s *Service) Remove(ctx context.Context, id string) (string, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Remove", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	removed, err := s.repo.Remove(ctx, id)
	if err != nil {
		return "", s.fail(span, err, "failed to remove order")
	}

	s.evict(ctx, removed)
	s.publish(ctx, EventRemoved, &entity.Order{ID: removed})
	return removed, nil
}

// ListByStatus returns orders whose status equals status exactly, without resolving
// menu item references.
func (s *Service) ListByStatus(ctx context.Context, status string) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListByStatus", trace.WithAttributes(attribute.String("order.status", status)))
	defer span.End()

	orders, err := s.repo.GetByStatus(ctx, status)
	if err != nil {
		return nil, s.fail(span, err, "failed to list orders by status")
	}
	return orders, nil
}

// SearchByStatus returns orders whose status matches pattern case-insensitively.
func (s *Service) SearchByStatus(ctx context.Context, pattern string) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SearchByStatus", trace.WithAttributes(attribute.String("order.status_pattern", pattern)))
	defer span.End()

	orders, err := s.repo.GetByStatusQuery(ctx, pattern)
	if err != nil {
		return nil, s.fail(span, err, "failed to search orders by status")
	}
	return orders, nil
}

// SearchByStatusAndDate narrows SearchByStatus to orders created between from and to.
func (s *Service) SearchByStatusAndDate(ctx context.Context, pattern string, from, to time.Time) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SearchByStatusAndDate", trace.WithAttributes(attribute.String("order.status_pattern", pattern)))
	defer span.End()

	orders, err := s.repo.GetByStatusAndDate(ctx, pattern, from, to)
	if err != nil {
		return nil, s.fail(span, err, "failed to search orders by status and date")
	}
	return orders, nil
}

// TotalSales sums every order.
func (s *Service) TotalSales(ctx context.Context) (repo.Sales, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.TotalSales")
	defer span.End()

	sales, err := s.repo.TotalSales(ctx)
	if err != nil {
		return repo.Sales{}, s.fail(span, err, "failed to compute total sales")
	}
	return sales, nil
}

// TotalSalesByDate sums orders created between from and to.
func (s *Service) TotalSalesByDate(ctx context.Context, from, to time.Time) (repo.Sales, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.TotalSalesByDate")
	defer span.End()

	sales, err := s.repo.TotalSalesByDate(ctx, from, to)
	if err != nil {
		return repo.Sales{}, s.fail(span, err, "failed to compute total sales")
	}
	return sales, nil
}

// Evict drops the cached copy of an order.
func (s *Service) Evict(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, s.cacheKey(id))
}

func (s *Service) evict(ctx context.Context, id string) {
	if err := s.Evict(ctx, id); err != nil {
		s.logger.Warn("orders cache evict failed", zap.String("id", id), zap.Error(err))
	}
}

// fail records err on span and converts it to an AppError.
func (s *Service) fail(span trace.Span, err error, message string) error {
	appErr := translate(err, message)
	if appErr.Kind() == errorbank.KindInternal || appErr.Kind() == errorbank.KindUnavailable {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		s.logger.Error(message, append(applog.TraceFields(span.SpanContext()), zap.Error(err))...)
	}
	return appErr
}

func translate(err error, message string) *errorbank.AppError {
	var verr *entity.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make(map[string]any, len(verr.Fields))
		for field, reason := range verr.Fields {
			details[field] = reason
		}
		return errorbank.Unprocessable("order validation failed", errorbank.WithCause(err), errorbank.WithDetails(details))
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found", errorbank.WithCause(err))
	case errors.Is(err, repo.ErrInvalidID):
		return errorbank.BadRequest("invalid order id", errorbank.WithCause(err))
	case errors.Is(err, repo.ErrInvalidPattern):
		return errorbank.BadRequest("invalid status pattern", errorbank.WithCause(err))
	case errors.Is(err, repo.ErrDanglingItem):
		return errorbank.Internal(message, errorbank.WithCause(err), errorbank.WithDetail("reason", "dangling_menu_item"))
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return errorbank.Unavailable("order store unavailable", errorbank.WithCause(err))
	default:
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, order *entity.Order) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := OrderEvent{
		Type:       eventType,
		ID:         order.ID,
		Status:     string(order.Status),
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", eventType), zap.Error(err))
		return
	}
	headers := map[string]string{messaging.HeaderEventType: eventType}
	if err := s.publisher.Publish(ctx, []byte("order-"+order.ID), payload, headers); err != nil {
		s.logger.Error("publish order event", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *Service) cacheKey(id string) string {
	return fmt.Sprintf("orders:%s", id)
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	unresolved := *order
	unresolved.Items = make([]entity.LineItem, len(order.Items))
	for i, li := range order.Items {
		unresolved.Items[i] = entity.LineItem{ItemID: li.ItemID, Quantity: li.Quantity}
	}
	bytes, err := json.Marshal(unresolved)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}

// OrderEvent is emitted after an order is created, updated or removed.
type OrderEvent struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
