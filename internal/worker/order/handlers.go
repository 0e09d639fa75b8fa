package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/config"
	applog "github.com/Additional-Code/bistro/internal/logger"
	"github.com/Additional-Code/bistro/internal/messaging"
	ordersvc "github.com/Additional-Code/bistro/internal/service/order"
	"github.com/Additional-Code/bistro/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/bistro/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(NewCreatedHandler, fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(NewUpdatedHandler, fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(NewRemovedHandler, fx.ResultTags(`group:"worker.handlers"`)),
	),
)

// Evictor drops cached copies of an order.
type Evictor interface {
	Evict(ctx context.Context, id string) error
}

// NewCreatedHandler logs newly created orders.
func NewCreatedHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:     cfg.Messaging.Kafka.Topic,
		EventType: ordersvc.EventCreated,
		Handler: handle(logger, func(_ context.Context, event ordersvc.OrderEvent) error {
			logger.Info("order created event processed",
				zap.String("id", event.ID),
				zap.String("status", event.Status),
			)
			return nil
		}),
	}
}

// NewUpdatedHandler evicts cached copies of updated orders so that other
// instances stop serving stale reads.
func NewUpdatedHandler(logger *zap.Logger, cfg config.Config, svc *ordersvc.Service) worker.HandlerRegistration {
	return evictRegistration(logger, cfg.Messaging.Kafka.Topic, ordersvc.EventUpdated, svc)
}

// NewRemovedHandler evicts cached copies of removed orders.
func NewRemovedHandler(logger *zap.Logger, cfg config.Config, svc *ordersvc.Service) worker.HandlerRegistration {
	return evictRegistration(logger, cfg.Messaging.Kafka.Topic, ordersvc.EventRemoved, svc)
}

func evictRegistration(logger *zap.Logger, topic, eventType string, evictor Evictor) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:     topic,
		EventType: eventType,
		Handler: handle(logger, func(ctx context.Context, event ordersvc.OrderEvent) error {
			if err := evictor.Evict(ctx, event.ID); err != nil {
				return fmt.Errorf("evict order %s: %w", event.ID, err)
			}
			logger.Debug("order cache evicted", zap.String("id", event.ID), zap.String("type", event.Type))
			return nil
		}),
	}
}

// handle decodes the order event carried by msg and passes it to fn.
func handle(logger *zap.Logger, fn func(context.Context, ordersvc.OrderEvent) error) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.String("messaging.event_type", msg.Header(messaging.HeaderEventType)),
		))
		defer span.End()

		var event ordersvc.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		if event.ID == "" {
			err := fmt.Errorf("order event %q has no id", event.Type)
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid event")
			return err
		}
		span.SetAttributes(attribute.String("order.id", event.ID))

		if err := fn(ctx, event); err != nil {
			applog.WithTrace(ctx, logger).Error("order event handler failed", zap.String("id", event.ID), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler error")
			return err
		}
		return nil
	}
}
