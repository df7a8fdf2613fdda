package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

const (
	usersCollection         = "users"
	productsCollection      = "products"
	ordersCollection        = "orders"
	notificationsCollection = "notifications"
	countersCollection      = "counters"
)

var _ Gateway = (*MongoStore)(nil)

// MongoStore is the document database backend.
type MongoStore struct {
	DB     *mongo.Database
	logger *zap.Logger
}

func NewMongoStore(db *mongo.Database, logger *zap.Logger) *MongoStore {
	return &MongoStore{DB: db, logger: logger}
}

// EnsureIndexes creates the unique email index and the notification inbox index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.DB.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	_, err = s.DB.Collection(notificationsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notifications index: %w", err)
	}
	return nil
}

// --- Users ---

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.findAll(ctx, usersCollection, bson.M{}, options.Find().SetSort(bson.D{{Key: "fullName", Value: 1}}), &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.findOne(ctx, usersCollection, bson.M{"_id": id}, &u)
	return u, err
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.findOne(ctx, usersCollection, bson.M{"email": email}, &u)
	return u, err
}

func (s *MongoStore) PutUser(ctx context.Context, u models.User) error {
	return s.replace(ctx, usersCollection, u.ID, u)
}

func (s *MongoStore) DeleteUser(ctx context.Context, id string) error {
	return s.deleteOne(ctx, usersCollection, id)
}

// --- Products ---

func (s *MongoStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.findAll(ctx, productsCollection, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}), &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *MongoStore) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var p models.Product
	err := s.findOne(ctx, productsCollection, bson.M{"_id": id}, &p)
	return p, err
}

func (s *MongoStore) PutProduct(ctx context.Context, p models.Product) error {
	return s.replace(ctx, productsCollection, p.ID, p)
}

func (s *MongoStore) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteOne(ctx, productsCollection, id)
}

// --- Orders ---

func (s *MongoStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	opts := options.Find().SetSort(bson.D{{Key: "submissionDate", Value: -1}, {Key: "_id", Value: 1}})
	if err := s.findAll(ctx, ordersCollection, bson.M{}, opts, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *MongoStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	err := s.findOne(ctx, ordersCollection, bson.M{"_id": id}, &o)
	return o, err
}

func (s *MongoStore) PutOrder(ctx context.Context, o models.Order) error {
	if o.TechnicianHistory == nil {
		o.TechnicianHistory = []string{}
	}
	return s.replace(ctx, ordersCollection, o.ID, o)
}

func (s *MongoStore) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteOne(ctx, ordersCollection, id)
}

// --- Notifications ---

func (s *MongoStore) PutNotification(ctx context.Context, n models.Notification) error {
	_, err := s.DB.Collection(notificationsCollection).InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *MongoStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var out []models.Notification
	if err := s.findAll(ctx, notificationsCollection, bson.M{"userId": userID}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.DB.Collection(notificationsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Counters ---

func (s *MongoStore) GetCounter(ctx context.Context, code string) (int64, error) {
	var c models.SequenceCounter
	err := s.findOne(ctx, countersCollection, bson.M{"_id": code}, &c)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return c.LastSequence, err
}

// UpdateCounter is a compare-and-swap on lastSequence. A lost race re-reads
// the counter and tries again after a short backoff until ctx is done.
func (s *MongoStore) UpdateCounter(ctx context.Context, code string, fn CounterFunc) (int64, error) {
	coll := s.DB.Collection(countersCollection)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := waitRetry(ctx, attempt); err != nil {
				return 0, fmt.Errorf("%w: %s: %w", ErrCounterConflict, code, err)
			}
		}

		var current models.SequenceCounter
		exists := true
		err := coll.FindOne(ctx, bson.M{"_id": code}).Decode(&current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			exists = false
		} else if err != nil {
			return 0, fmt.Errorf("read counter %s: %w", code, err)
		}

		next, err := fn(current.LastSequence)
		if err != nil {
			return 0, err
		}

		if !exists {
			_, err = coll.InsertOne(ctx, models.SequenceCounter{Code: code, LastSequence: next})
			if mongo.IsDuplicateKeyError(err) {
				s.logger.Debug("counter insert lost race", zap.String("code", code), zap.Int("attempt", attempt))
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("create counter %s: %w", code, err)
			}
			return next, nil
		}

		res, err := coll.UpdateOne(ctx,
			bson.M{"_id": code, "lastSequence": current.LastSequence},
			bson.M{"$set": bson.M{"lastSequence": next}},
		)
		if err != nil {
			return 0, fmt.Errorf("write counter %s: %w", code, err)
		}
		if res.MatchedCount == 0 {
			s.logger.Debug("counter update lost race", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}
		return next, nil
	}
}

// IncrementCounter is a single $inc upsert. Two first inserts of one code
// can collide on _id; the loser retries and then matches the existing
// document.
func (s *MongoStore) IncrementCounter(ctx context.Context, code string) (int64, error) {
	coll := s.DB.Collection(countersCollection)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := waitRetry(ctx, attempt); err != nil {
				return 0, fmt.Errorf("%w: %s: %w", ErrCounterConflict, code, err)
			}
		}
		var c models.SequenceCounter
		err := coll.FindOneAndUpdate(ctx,
			bson.M{"_id": code},
			bson.M{"$inc": bson.M{"lastSequence": int64(1)}},
			opts,
		).Decode(&c)
		if mongo.IsDuplicateKeyError(err) {
			s.logger.Debug("counter upsert lost race", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("increment counter %s: %w", code, err)
		}
		return c.LastSequence, nil
	}
}

// --- helpers ---

func (s *MongoStore) findAll(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions, out interface{}) error {
	cursor, err := s.DB.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) findOne(ctx context.Context, collection string, filter bson.M, out interface{}) error {
	err := s.DB.Collection(collection).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) replace(ctx context.Context, collection, id string, doc interface{}) error {
	_, err := s.DB.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("write %s %s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) deleteOne(ctx context.Context, collection, id string) error {
	res, err := s.DB.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
