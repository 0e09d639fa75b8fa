package order

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/bistro/internal/dto"
	"github.com/Additional-Code/bistro/internal/entity"
	"github.com/Additional-Code/bistro/internal/presentation/http/response"
	service "github.com/Additional-Code/bistro/internal/service/order"
	"github.com/Additional-Code/bistro/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/bistro/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.GET("/status/:status", h.byStatus)
	g.GET("/sales", h.sales)
	g.GET("/:id", h.getByID)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	status := c.QueryParam("status")
	from, to, ranged, err := h.dateRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list", trace.WithAttributes(
		attribute.String("order.status_pattern", status),
		attribute.Bool("range", ranged),
	))
	defer span.End()

	var orders []entity.Order
	switch {
	case ranged:
		orders, err = h.svc.SearchByStatusAndDate(ctx, status, from, to)
	case status != "":
		orders, err = h.svc.SearchByStatus(ctx, status)
	default:
		orders, err = h.svc.List(ctx)
	}
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithList(dto.FromOrders(orders), len(orders)).Build()
}

func (h *Handler) byStatus(c echo.Context) error {
	b := response.New(c)
	status := c.Param("status")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.byStatus", trace.WithAttributes(attribute.String("order.status", status)))
	defer span.End()

	orders, err := h.svc.ListByStatus(ctx, status)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithList(dto.FromOrders(orders), len(orders)).Build()
}

func (h *Handler) sales(c echo.Context) error {
	b := response.New(c)

	from, to, ranged, err := h.dateRange(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.sales", trace.WithAttributes(attribute.Bool("range", ranged)))
	defer span.End()

	var total float64
	if ranged {
		sales, err := h.svc.TotalSalesByDate(ctx, from, to)
		if err != nil {
			return b.WithError(err).Build()
		}
		total = sales.Total
	} else {
		sales, err := h.svc.TotalSales(ctx)
		if err != nil {
			return b.WithError(err).Build()
		}
		total = sales.Total
	}

	return b.WithData(dto.SalesResponse{Total: total}).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	order := payload.toOrder()

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(
		attribute.String("order.name", order.Name),
		attribute.Int("order.items", len(order.Items)),
	)
	defer span.End()

	created, err := h.svc.Create(ctx, order)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(created)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.update", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	updated, err := h.svc.Update(ctx, id, payload.toPatch())
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(updated)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.remove", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	removed, err := h.svc.Remove(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.RemovedResponse{ID: removed}).Build()
}

// dateRange reads the from/to query parameters. Both or neither must be present.
func (h *Handler) dateRange(c echo.Context) (time.Time, time.Time, bool, error) {
	rawFrom, rawTo := c.QueryParam("from"), c.QueryParam("to")
	if rawFrom == "" && rawTo == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if rawFrom == "" || rawTo == "" {
		return time.Time{}, time.Time{}, false, errorbank.BadRequest("from and to must be provided together")
	}
	loc := h.svc.Location()
	from, err := time.ParseInLocation(time.DateOnly, rawFrom, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, errorbank.BadRequest("invalid from date", errorbank.WithCause(err), errorbank.WithDetail("from", rawFrom))
	}
	to, err := time.ParseInLocation(time.DateOnly, rawTo, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, errorbank.BadRequest("invalid to date", errorbank.WithCause(err), errorbank.WithDetail("to", rawTo))
	}
	return from, to, true, nil
}
