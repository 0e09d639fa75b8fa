package order

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Additional-Code/bistro/internal/entity"
)

// MemoryStore is an in-process Store for local development and tests. Orders are
// returned in insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]entity.Order
	order  []string
	menu   map[string]entity.MenuItem
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]entity.Order),
		menu:   make(map[string]entity.MenuItem),
	}
}

// Find returns copies of the orders matching filter.
func (s *MemoryStore) Find(ctx context.Context, filter Filter) ([]entity.Order, error) {
	var pattern *regexp.Regexp
	if filter.StatusPattern != "" {
		re, err := regexp.Compile("(?i)" + filter.StatusPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		pattern = re
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entity.Order, 0, len(s.order))
	for _, id := range s.order {
		order := s.orders[id]
		if filter.Status != "" && string(order.Status) != filter.Status {
			continue
		}
		if pattern != nil && !pattern.MatchString(string(order.Status)) {
			continue
		}
		if !filter.matchesCreated(order.CreatedAt) {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	return result, nil
}

// FindByID returns the order or ErrNotFound.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

// Insert assigns a new object id and stores a copy of order.
func (s *MemoryStore) Insert(ctx context.Context, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = primitive.NewObjectID().Hex()
	s.orders[order.ID] = cloneOrder(*order)
	s.order = append(s.order, order.ID)
	return nil
}

// UpdateByID applies patch and returns the stored result.
func (s *MemoryStore) UpdateByID(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(&order)
	s.orders[id] = cloneOrder(order)
	out := cloneOrder(order)
	return &out, nil
}

// DeleteByID removes the order and returns what was stored.
func (s *MemoryStore) DeleteByID(ctx context.Context, id string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.orders, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return &order, nil
}

// MenuItems returns the menu items present among ids.
func (s *MemoryStore) MenuItems(ctx context.Context, ids []string) (map[string]entity.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]entity.MenuItem, len(ids))
	for _, id := range ids {
		if item, ok := s.menu[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// PutMenuItems upserts menu items, assigning ids to those without one.
func (s *MemoryStore) PutMenuItems(ctx context.Context, items []entity.MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = primitive.NewObjectID().Hex()
		}
		s.menu[items[i].ID] = items[i]
	}
	return nil
}

// DeleteMenuItem drops a menu item, leaving any order references dangling.
func (s *MemoryStore) DeleteMenuItem(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.menu, id)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func cloneOrder(order entity.Order) entity.Order {
	items := make([]entity.LineItem, len(order.Items))
	for i, li := range order.Items {
		items[i] = entity.LineItem{ItemID: li.ItemID}
		if li.Quantity != nil {
			qty := *li.Quantity
			items[i].Quantity = &qty
		}
	}
	order.Items = items
	return order
}

var _ Store = (*MemoryStore)(nil)
