package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mongokit/internal/connection"
	"mongokit/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Ops is the subset of driver collection behaviour the CRUD wrapper needs.
type Ops interface {
	InsertOne(ctx context.Context, doc bson.M) error
	FindOne(ctx context.Context, filter bson.D) (bson.M, error)
	UpdateOne(ctx context.Context, filter bson.D, update bson.D) (int64, error)
	DeleteOne(ctx context.Context, filter bson.D) (int64, error)
}

type mongoOps struct {
	coll *mongo.Collection
}

func (o *mongoOps) InsertOne(ctx context.Context, doc bson.M) error {
	_, err := o.coll.InsertOne(ctx, doc)
	return err
}

func (o *mongoOps) FindOne(ctx context.Context, filter bson.D) (bson.M, error) {
	var doc bson.M
	err := o.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (o *mongoOps) UpdateOne(ctx context.Context, filter bson.D, update bson.D) (int64, error) {
	res, err := o.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (o *mongoOps) DeleteOne(ctx context.Context, filter bson.D) (int64, error) {
	res, err := o.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Hydrator post-processes a record after every result-producing operation.
// The caller supplies it explicitly; the wrapper invokes it uniformly.
type Hydrator func(bson.M) bson.M

// Collection wraps one collection with timestamping, ID generation, uniform
// hydration and operation logging.
type Collection struct {
	name    string
	ops     Ops
	hydrate Hydrator
	logger  *slog.Logger
	now     func() time.Time
}

// CollectionOption customises a Collection.
type CollectionOption func(*Collection)

// WithHydrator installs the post-read hook.
func WithHydrator(h Hydrator) CollectionOption {
	return func(c *Collection) { c.hydrate = h }
}

// WithClock replaces the timestamp source. Used by tests.
func WithClock(now func() time.Time) CollectionOption {
	return func(c *Collection) { c.now = now }
}

// NewCollection wraps a collection reached through the shared connection.
func NewCollection(m *connection.Manager, name string, opts ...CollectionOption) (*Collection, error) {
	db := m.Database()
	if db == nil {
		return nil, errors.Join(model.ErrConnection, errors.New("not connected"))
	}
	return newCollection(name, &mongoOps{coll: db.Collection(name)}, opts...), nil
}

func newCollection(name string, ops Ops, opts ...CollectionOption) *Collection {
	c := &Collection{
		name:   name,
		ops:    ops,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collection) applyHydrate(doc bson.M) bson.M {
	if c.hydrate == nil || doc == nil {
		return doc
	}
	return c.hydrate(doc)
}

// Insert stores a document, generating an _id when absent and stamping
// created_at/updated_at in Unix milliseconds. Returns the stored document
// after hydration.
func (c *Collection) Insert(ctx context.Context, doc bson.M) (bson.M, error) {
	if len(doc) == 0 {
		return nil, model.Validation("insert payload must be a non-empty document")
	}

	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = uuid.NewString()
	}
	now := c.now().UnixMilli()
	stored["created_at"] = now
	stored["updated_at"] = now

	start := time.Now()
	if err := c.ops.InsertOne(ctx, stored); err != nil {
		return nil, model.WrapOp(c.name, "insert", time.Since(start), err)
	}

	c.logger.Debug("insert", "collection", c.name, "duration", time.Since(start))
	return c.applyHydrate(stored), nil
}

// Get fetches a document by _id. Missing documents yield ErrNotFound.
func (c *Collection) Get(ctx context.Context, id string) (bson.M, error) {
	if id == "" {
		return nil, model.Validation("document id is required")
	}

	start := time.Now()
	doc, err := c.ops.FindOne(ctx, bson.D{{Key: "_id", Value: id}})
	if errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, model.WrapOp(c.name, "get", time.Since(start), err)
	}

	c.logger.Debug("get", "collection", c.name, "duration", time.Since(start))
	return c.applyHydrate(doc), nil
}

// Update applies a $set patch to a document and refreshes updated_at.
func (c *Collection) Update(ctx context.Context, id string, set bson.M) error {
	if id == "" {
		return model.Validation("document id is required")
	}
	if len(set) == 0 {
		return model.Validation("update payload must be a non-empty document")
	}

	patch := bson.M{"updated_at": c.now().UnixMilli()}
	for k, v := range set {
		patch[k] = v
	}

	start := time.Now()
	matched, err := c.ops.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: patch}},
	)
	if err != nil {
		return model.WrapOp(c.name, "update", time.Since(start), err)
	}
	if matched == 0 {
		return model.ErrNotFound
	}

	c.logger.Debug("update", "collection", c.name, "duration", time.Since(start))
	return nil
}

// Delete removes a document by _id.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.Validation("document id is required")
	}

	start := time.Now()
	deleted, err := c.ops.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return model.WrapOp(c.name, "delete", time.Since(start), err)
	}
	if deleted == 0 {
		return model.ErrNotFound
	}

	c.logger.Debug("delete", "collection", c.name, "duration", time.Since(start))
	return nil
}
