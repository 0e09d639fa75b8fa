package order

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Additional-Code/bistro/internal/entity"
)

// itemRef accepts a menu item reference as a plain id or as a populated object
// carrying "_id" or "id", so clients may send back what they read.
type itemRef string

func (r *itemRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = itemRef(id)
		return nil
	}
	var obj struct {
		UnderscoreID string `json:"_id"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("item must be an id or an object with an id: %w", err)
	}
	if obj.UnderscoreID != "" {
		*r = itemRef(obj.UnderscoreID)
	} else {
		*r = itemRef(obj.ID)
	}
	return nil
}

type lineItemPayload struct {
	Item     itemRef `json:"item"`
	Quantity *int    `json:"quantity"`
}

type orderPayload struct {
	Name    *string            `json:"name"`
	Address *string            `json:"address"`
	Phone   *string            `json:"phone"`
	Items   *[]lineItemPayload `json:"items"`
	Status  *string            `json:"status"`
}

func (p orderPayload) lineItems() []entity.LineItem {
	if p.Items == nil {
		return nil
	}
	items := make([]entity.LineItem, 0, len(*p.Items))
	for _, li := range *p.Items {
		items = append(items, entity.LineItem{ItemID: string(li.Item), Quantity: li.Quantity})
	}
	return items
}

func (p orderPayload) toOrder() *entity.Order {
	order := &entity.Order{Items: p.lineItems()}
	if p.Name != nil {
		order.Name = *p.Name
	}
	if p.Address != nil {
		order.Address = *p.Address
	}
	if p.Phone != nil {
		order.Phone = *p.Phone
	}
	if p.Status != nil {
		order.Status = entity.Status(*p.Status)
	}
	return order
}

func (p orderPayload) toPatch() entity.OrderPatch {
	patch := entity.OrderPatch{
		Name:    p.Name,
		Address: p.Address,
		Phone:   p.Phone,
	}
	if p.Items != nil {
		items := p.lineItems()
		patch.Items = &items
	}
	if p.Status != nil {
		status := entity.Status(*p.Status)
		patch.Status = &status
	}
	return patch
}
