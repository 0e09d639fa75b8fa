package dto

import (
	"time"

	"github.com/Additional-Code/bistro/internal/entity"
)

// MenuItemResponse is a resolved menu item reference.
type MenuItemResponse struct {
	UnderscoreID string  `json:"_id"`
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Price        float64 `json:"price"`
	Category     string  `json:"category,omitempty"`
}

// LineItemResponse holds either the resolved menu item, the raw reference id, or null.
type LineItemResponse struct {
	Item     any  `json:"item"`
	Quantity *int `json:"quantity"`
}

// OrderResponse represents an order as exposed via transport layers. Both `_id` and
// `id` carry the identifier.
type OrderResponse struct {
	UnderscoreID string             `json:"_id"`
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Address      string             `json:"address"`
	Phone        string             `json:"phone"`
	Items        []LineItemResponse `json:"items"`
	Status       string             `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// SalesResponse is the total sales aggregate.
type SalesResponse struct {
	Total float64 `json:"total"`
}

// RemovedResponse reports the identifier of a deleted order.
type RemovedResponse struct {
	ID string `json:"id"`
}

// FromOrder converts an entity into its JSON contract. References that were never
// resolved keep their id; references resolved to a missing item become null.
func FromOrder(order *entity.Order) OrderResponse {
	items := make([]LineItemResponse, 0, len(order.Items))
	for _, li := range order.Items {
		resp := LineItemResponse{Quantity: li.Quantity}
		switch {
		case li.Item != nil:
			resp.Item = FromMenuItem(li.Item)
		case !li.Populated && li.ItemID != "":
			resp.Item = li.ItemID
		}
		items = append(items, resp)
	}
	return OrderResponse{
		UnderscoreID: order.ID,
		ID:           order.ID,
		Name:         order.Name,
		Address:      order.Address,
		Phone:        order.Phone,
		Items:        items,
		Status:       string(order.Status),
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}

// FromOrders converts a slice of orders.
func FromOrders(orders []entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, FromOrder(&orders[i]))
	}
	return out
}

// FromMenuItem converts a menu item.
func FromMenuItem(item *entity.MenuItem) MenuItemResponse {
	return MenuItemResponse{
		UnderscoreID: item.ID,
		ID:           item.ID,
		Name:         item.Name,
		Description:  item.Description,
		Price:        item.Price,
		Category:     item.Category,
	}
}
