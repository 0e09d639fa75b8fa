package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of an order. Any value may follow any other.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every accepted status value.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// MenuItem is a catalog entry referenced by order line items. Orders never own it.
type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
}

// LineItem references a MenuItem by id. Populated marks that reference resolution ran;
// Item then holds the referenced document, or nil when it no longer exists.
type LineItem struct {
	ItemID    string
	Item      *MenuItem
	Populated bool
	Quantity  *int
}

// NewLineItem returns an unresolved reference to itemID.
func NewLineItem(itemID string, quantity int) LineItem {
	return LineItem{ItemID: itemID, Quantity: &quantity}
}

// Dangling reports whether resolution ran and found no MenuItem.
func (li LineItem) Dangling() bool {
	return li.Populated && li.Item == nil
}

// Order represents a customer purchase with delivery details and line items.
type Order struct {
	ID        string
	Name      string
	Address   string
	Phone     string
	Items     []LineItem
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyDefaults fills status and timestamps the way a freshly created order expects.
func (o *Order) ApplyDefaults(now time.Time) {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	if o.Items == nil {
		o.Items = []LineItem{}
	}
}

// Validate checks required fields, the status enum and line item quantities.
func (o *Order) Validate() error {
	verr := &ValidationError{}
	if o.Name == "" {
		verr.Add("name", "is required")
	}
	if o.Address == "" {
		verr.Add("address", "is required")
	}
	if o.Phone == "" {
		verr.Add("phone", "is required")
	}
	if o.Status == "" {
		verr.Add("status", "is required")
	} else if !o.Status.Valid() {
		verr.Add("status", "must be one of pending, confirmed, delivered, cancelled")
	}
	validateItems(verr, o.Items)
	return verr.OrNil()
}

// OrderPatch carries a partial replacement of order fields. Nil fields are left untouched.
type OrderPatch struct {
	Name      *string
	Address   *string
	Phone     *string
	Items     *[]LineItem
	Status    *Status
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// Empty reports whether the patch changes nothing.
func (p OrderPatch) Empty() bool {
	return p.Name == nil && p.Address == nil && p.Phone == nil && p.Items == nil &&
		p.Status == nil && p.CreatedAt == nil && p.UpdatedAt == nil
}

// Validate applies the order schema to the supplied fields only.
func (p OrderPatch) Validate() error {
	verr := &ValidationError{}
	if p.Name != nil && *p.Name == "" {
		verr.Add("name", "is required")
	}
	if p.Address != nil && *p.Address == "" {
		verr.Add("address", "is required")
	}
	if p.Phone != nil && *p.Phone == "" {
		verr.Add("phone", "is required")
	}
	if p.Status != nil && !p.Status.Valid() {
		verr.Add("status", "must be one of pending, confirmed, delivered, cancelled")
	}
	if p.Items != nil {
		validateItems(verr, *p.Items)
	}
	return verr.OrNil()
}

// Apply copies the supplied fields onto o.
func (p OrderPatch) Apply(o *Order) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Address != nil {
		o.Address = *p.Address
	}
	if p.Phone != nil {
		o.Phone = *p.Phone
	}
	if p.Items != nil {
		o.Items = append([]LineItem{}, (*p.Items)...)
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.CreatedAt != nil {
		o.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		o.UpdatedAt = *p.UpdatedAt
	}
}

func validateItems(verr *ValidationError, items []LineItem) {
	for i, li := range items {
		if li.Quantity == nil {
			verr.Add(itemField(i, "quantity"), "is required")
		}
		if li.ItemID != "" && !primitive.IsValidObjectID(li.ItemID) {
			verr.Add(itemField(i, "item"), "must be an object id")
		}
	}
}
