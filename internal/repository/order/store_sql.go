package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Additional-Code/bistro/internal/entity"
)

type orderRow struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Address   string    `bun:"address,notnull"`
	Phone     string    `bun:"phone,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type orderItemRow struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	OrderID  string `bun:"order_id,pk"`
	LineNo   int    `bun:"line_no,pk"`
	ItemID   string `bun:"item_id,nullzero"`
	Quantity *int   `bun:"quantity"`
}

type menuItemRow struct {
	bun.BaseModel `bun:"table:menu_items,alias:mi"`

	ID          string  `bun:"id,pk"`
	Name        string  `bun:"name,notnull"`
	Description string  `bun:"description"`
	Price       float64 `bun:"price,notnull"`
	Category    string  `bun:"category"`
}

// SQLStore keeps orders in relational tables: orders, order_items and menu_items.
// Identifiers are object id hex strings so every backend accepts the same ids.
type SQLStore struct {
	writer  *bun.DB
	reader  *bun.DB
	dialect string
}

// NewSQLStore builds a store over writer/reader connections. dialect selects the
// case-insensitive regex operator ("postgres" or "mysql").
func NewSQLStore(writer, reader *bun.DB, dialect string) *SQLStore {
	if reader == nil {
		reader = writer
	}
	return &SQLStore{writer: writer, reader: reader, dialect: dialect}
}

// Find selects matching orders and their line items.
func (s *SQLStore) Find(ctx context.Context, filter Filter) ([]entity.Order, error) {
	var rows []orderRow
	q := s.reader.NewSelect().Model(&rows)
	q = s.applyFilter(q, filter).Order("o.id ASC")
	if err := q.Scan(ctx); err != nil {
		return nil, sqlPatternError(err)
	}
	return s.assemble(ctx, s.reader, rows)
}

// FindByID loads a single order.
func (s *SQLStore) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	return s.findByID(ctx, s.reader, id)
}

func (s *SQLStore) findByID(ctx context.Context, db bun.IDB, id string) (*entity.Order, error) {
	row := new(orderRow)
	err := db.NewSelect().Model(row).Where("o.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	orders, err := s.assemble(ctx, db, []orderRow{*row})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// Insert writes the order row and its line items in one transaction.
func (s *SQLStore) Insert(ctx context.Context, order *entity.Order) error {
	id := primitive.NewObjectID().Hex()
	row := &orderRow{
		ID:        id,
		Name:      order.Name,
		Address:   order.Address,
		Phone:     order.Phone,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	err := s.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return err
		}
		return insertItems(ctx, tx, id, order.Items)
	})
	if err != nil {
		return err
	}
	order.ID = id
	return nil
}

// UpdateByID applies the patch inside a transaction and returns the stored result.
func (s *SQLStore) UpdateByID(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error) {
	var updated *entity.Order
	err := s.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*orderRow)(nil)).Where("o.id = ?", id).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		uq := tx.NewUpdate().Model((*orderRow)(nil)).Where("id = ?", id)
		columns := 0
		set := func(expr string, value any) {
			uq = uq.Set(expr, value)
			columns++
		}
		if patch.Name != nil {
			set("name = ?", *patch.Name)
		}
		if patch.Address != nil {
			set("address = ?", *patch.Address)
		}
		if patch.Phone != nil {
			set("phone = ?", *patch.Phone)
		}
		if patch.Status != nil {
			set("status = ?", string(*patch.Status))
		}
		if patch.CreatedAt != nil {
			set("created_at = ?", *patch.CreatedAt)
		}
		if patch.UpdatedAt != nil {
			set("updated_at = ?", *patch.UpdatedAt)
		}
		if columns > 0 {
			if _, err := uq.Exec(ctx); err != nil {
				return err
			}
		}

		if patch.Items != nil {
			if _, err := tx.NewDelete().Model((*orderItemRow)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
				return err
			}
			if err := insertItems(ctx, tx, id, *patch.Items); err != nil {
				return err
			}
		}

		updated, err = s.findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID removes the order and its line items, returning the deleted order.
func (s *SQLStore) DeleteByID(ctx context.Context, id string) (*entity.Order, error) {
	var deleted *entity.Order
	err := s.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.findByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*orderItemRow)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*orderRow)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return err
		}
		deleted = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// MenuItems loads the referenced menu items.
func (s *SQLStore) MenuItems(ctx context.Context, ids []string) (map[string]entity.MenuItem, error) {
	out := make(map[string]entity.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []menuItemRow
	if err := s.reader.NewSelect().Model(&rows).Where("mi.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = entity.MenuItem{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			Price:       row.Price,
			Category:    row.Category,
		}
	}
	return out, nil
}

// PutMenuItems replaces menu items by id, assigning ids where missing.
func (s *SQLStore) PutMenuItems(ctx context.Context, items []entity.MenuItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]menuItemRow, 0, len(items))
	ids := make([]string, 0, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = primitive.NewObjectID().Hex()
		}
		ids = append(ids, items[i].ID)
		rows = append(rows, menuItemRow{
			ID:          items[i].ID,
			Name:        items[i].Name,
			Description: items[i].Description,
			Price:       items[i].Price,
			Category:    items[i].Category,
		})
	}
	return s.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*menuItemRow)(nil)).Where("id IN (?)", bun.In(ids)).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

// Ping checks the writer connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.writer.PingContext(ctx)
}

func (s *SQLStore) applyFilter(q *bun.SelectQuery, filter Filter) *bun.SelectQuery {
	if filter.Status != "" {
		q = q.Where("o.status = ?", filter.Status)
	}
	if filter.StatusPattern != "" {
		switch s.dialect {
		case "mysql":
			q = q.Where("REGEXP_LIKE(o.status, ?, 'i')", filter.StatusPattern)
		default:
			q = q.Where("o.status ~* ?", filter.StatusPattern)
		}
	}
	if !filter.CreatedFrom.IsZero() {
		q = q.Where("o.created_at >= ?", filter.CreatedFrom)
	}
	if !filter.CreatedBefore.IsZero() {
		q = q.Where("o.created_at < ?", filter.CreatedBefore)
	}
	return q
}

// sqlPatternError reports regex compile failures from postgres (SQLSTATE 2201B)
// and mysql (ER_REGEXP_* 3685-3697) as ErrInvalidPattern.
func sqlPatternError(err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "2201B" {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number >= 3685 && myErr.Number <= 3697 {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return err
}

func (s *SQLStore) assemble(ctx context.Context, db bun.IDB, rows []orderRow) ([]entity.Order, error) {
	orders := make([]entity.Order, 0, len(rows))
	if len(rows) == 0 {
		return orders, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var itemRows []orderItemRow
	err := db.NewSelect().Model(&itemRows).
		Where("oi.order_id IN (?)", bun.In(ids)).
		Order("oi.order_id ASC", "oi.line_no ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	byOrder := make(map[string][]entity.LineItem, len(rows))
	for _, ir := range itemRows {
		byOrder[ir.OrderID] = append(byOrder[ir.OrderID], entity.LineItem{ItemID: ir.ItemID, Quantity: ir.Quantity})
	}

	for _, row := range rows {
		items := byOrder[row.ID]
		if items == nil {
			items = []entity.LineItem{}
		}
		orders = append(orders, entity.Order{
			ID:        row.ID,
			Name:      row.Name,
			Address:   row.Address,
			Phone:     row.Phone,
			Items:     items,
			Status:    entity.Status(row.Status),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return orders, nil
}

func insertItems(ctx context.Context, tx bun.Tx, orderID string, items []entity.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]orderItemRow, 0, len(items))
	for i, li := range items {
		rows = append(rows, orderItemRow{OrderID: orderID, LineNo: i, ItemID: li.ItemID, Quantity: li.Quantity})
	}
	_, err := tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

var _ Store = (*SQLStore)(nil)
