package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Additional-Code/bistro/internal/entity"
)

type orderDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Address   string             `bson:"address"`
	Phone     string             `bson:"phone"`
	Items     []lineItemDocument `bson:"items"`
	Status    string             `bson:"status"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type lineItemDocument struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty"`
	Item     *primitive.ObjectID `bson:"item,omitempty"`
	Quantity *int                `bson:"quantity"`
}

type menuItemDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	Price       float64            `bson:"price"`
	Category    string             `bson:"category,omitempty"`
}

// MongoStore keeps orders and menu items in two MongoDB collections.
type MongoStore struct {
	db     *mongo.Database
	orders *mongo.Collection
	menu   *mongo.Collection
}

// NewMongoStore binds the store to the named collections of db.
func NewMongoStore(db *mongo.Database, ordersCollection, menuCollection string) *MongoStore {
	return &MongoStore{
		db:     db,
		orders: db.Collection(ordersCollection),
		menu:   db.Collection(menuCollection),
	}
}

// Find runs filter against the orders collection in natural order.
func (s *MongoStore) Find(ctx context.Context, filter Filter) ([]entity.Order, error) {
	cursor, err := s.orders.Find(ctx, mongoFilter(filter))
	if err != nil {
		return nil, mongoPatternError(err)
	}
	defer cursor.Close(ctx)

	orders := make([]entity.Order, 0)
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		orders = append(orders, doc.toEntity())
	}
	if err := cursor.Err(); err != nil {
		return nil, mongoPatternError(err)
	}
	return orders, nil
}

// mongoRegexInvalid is the server code for a $regex the server cannot compile.
const mongoRegexInvalid = 51091

func mongoPatternError(err error) error {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(mongoRegexInvalid) {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return err
}

// FindByID returns the order with the given object id.
func (s *MongoStore) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	var doc orderDocument
	if err := s.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	order := doc.toEntity()
	return &order, nil
}

// Insert stores order and lets the driver-side object id become its identifier.
func (s *MongoStore) Insert(ctx context.Context, order *entity.Order) error {
	doc, err := orderToDocument(order)
	if err != nil {
		return err
	}
	doc.ID = primitive.NewObjectID()
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		return err
	}
	order.ID = doc.ID.Hex()
	return nil
}

// UpdateByID sets the patched fields and returns the document after the update.
func (s *MongoStore) UpdateByID(ctx context.Context, id string, patch entity.OrderPatch) (*entity.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	set, err := mongoSet(patch)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return s.FindByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc orderDocument
	err = s.orders.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	order := doc.toEntity()
	return &order, nil
}

// DeleteByID removes the order and returns the deleted document.
func (s *MongoStore) DeleteByID(ctx context.Context, id string) (*entity.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	var doc orderDocument
	if err := s.orders.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	order := doc.toEntity()
	return &order, nil
}

// MenuItems loads the referenced menu items in one $in query.
func (s *MongoStore) MenuItems(ctx context.Context, ids []string) (map[string]entity.MenuItem, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	out := make(map[string]entity.MenuItem, len(oids))
	if len(oids) == 0 {
		return out, nil
	}

	cursor, err := s.menu.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc menuItemDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID.Hex()] = entity.MenuItem{
			ID:          doc.ID.Hex(),
			Name:        doc.Name,
			Description: doc.Description,
			Price:       doc.Price,
			Category:    doc.Category,
		}
	}
	return out, cursor.Err()
}

// PutMenuItems upserts menu items by id, assigning ids where missing.
func (s *MongoStore) PutMenuItems(ctx context.Context, items []entity.MenuItem) error {
	for i := range items {
		oid := primitive.NewObjectID()
		if items[i].ID != "" {
			parsed, err := primitive.ObjectIDFromHex(items[i].ID)
			if err != nil {
				return fmt.Errorf("menu item %q: %w", items[i].ID, err)
			}
			oid = parsed
		}
		items[i].ID = oid.Hex()
		doc := menuItemDocument{
			ID:          oid,
			Name:        items[i].Name,
			Description: items[i].Description,
			Price:       items[i].Price,
			Category:    items[i].Category,
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := s.menu.ReplaceOne(ctx, bson.M{"_id": oid}, doc, opts); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndexes creates the indexes backing status and createdAt queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) ([]string, error) {
	return s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func mongoFilter(filter Filter) bson.M {
	query := bson.M{}

	status := bson.M{}
	if filter.Status != "" {
		status["$eq"] = filter.Status
	}
	if filter.StatusPattern != "" {
		status["$regex"] = filter.StatusPattern
		status["$options"] = "i"
	}
	if len(status) > 0 {
		query["status"] = status
	}

	created := bson.M{}
	if !filter.CreatedFrom.IsZero() {
		created["$gte"] = filter.CreatedFrom
	}
	if !filter.CreatedBefore.IsZero() {
		created["$lt"] = filter.CreatedBefore
	}
	if len(created) > 0 {
		query["createdAt"] = created
	}
	return query
}

func mongoSet(patch entity.OrderPatch) (bson.M, error) {
	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Address != nil {
		set["address"] = *patch.Address
	}
	if patch.Phone != nil {
		set["phone"] = *patch.Phone
	}
	if patch.Items != nil {
		items, err := lineItemsToDocuments(*patch.Items)
		if err != nil {
			return nil, err
		}
		set["items"] = items
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.CreatedAt != nil {
		set["createdAt"] = *patch.CreatedAt
	}
	if patch.UpdatedAt != nil {
		set["updatedAt"] = *patch.UpdatedAt
	}
	return set, nil
}

func orderToDocument(order *entity.Order) (orderDocument, error) {
	items, err := lineItemsToDocuments(order.Items)
	if err != nil {
		return orderDocument{}, err
	}
	return orderDocument{
		Name:      order.Name,
		Address:   order.Address,
		Phone:     order.Phone,
		Items:     items,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}, nil
}

func lineItemsToDocuments(items []entity.LineItem) ([]lineItemDocument, error) {
	docs := make([]lineItemDocument, 0, len(items))
	for _, li := range items {
		doc := lineItemDocument{ID: primitive.NewObjectID(), Quantity: li.Quantity}
		if li.ItemID != "" {
			oid, err := primitive.ObjectIDFromHex(li.ItemID)
			if err != nil {
				return nil, fmt.Errorf("line item reference %q: %w", li.ItemID, err)
			}
			doc.Item = &oid
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (d orderDocument) toEntity() entity.Order {
	items := make([]entity.LineItem, 0, len(d.Items))
	for _, li := range d.Items {
		item := entity.LineItem{Quantity: li.Quantity}
		if li.Item != nil {
			item.ItemID = li.Item.Hex()
		}
		items = append(items, item)
	}
	return entity.Order{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Address:   d.Address,
		Phone:     d.Phone,
		Items:     items,
		Status:    entity.Status(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ Store = (*MongoStore)(nil)
