package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"mongokit/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type fakeOps struct {
	inserted []bson.M
	findDoc  bson.M
	findErr  error
	matched  int64
	deleted  int64
	opErr    error

	lastFilter bson.D
	lastUpdate bson.D
}

func (f *fakeOps) InsertOne(_ context.Context, doc bson.M) error {
	if f.opErr != nil {
		return f.opErr
	}
	f.inserted = append(f.inserted, doc)
	return nil
}

func (f *fakeOps) FindOne(_ context.Context, filter bson.D) (bson.M, error) {
	f.lastFilter = filter
	return f.findDoc, f.findErr
}

func (f *fakeOps) UpdateOne(_ context.Context, filter bson.D, update bson.D) (int64, error) {
	f.lastFilter = filter
	f.lastUpdate = update
	return f.matched, f.opErr
}

func (f *fakeOps) DeleteOne(_ context.Context, filter bson.D) (int64, error) {
	f.lastFilter = filter
	return f.deleted, f.opErr
}

func fixedClock() func() time.Time {
	at := time.UnixMilli(1700000000000)
	return func() time.Time { return at }
}

func TestCollectionInsert(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{}
	coll := newCollection("users", ops, WithClock(fixedClock()))

	stored, err := coll.Insert(context.Background(), bson.M{"name": "ada"})
	require.NoError(t, err)

	require.Len(t, ops.inserted, 1)
	assert.NotEmpty(t, stored["_id"], "missing _id is generated")
	assert.Equal(t, int64(1700000000000), stored["created_at"])
	assert.Equal(t, int64(1700000000000), stored["updated_at"])
	assert.Equal(t, "ada", stored["name"])
}

func TestCollectionInsertKeepsExplicitID(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{}
	coll := newCollection("users", ops, WithClock(fixedClock()))

	stored, err := coll.Insert(context.Background(), bson.M{"_id": "custom", "name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "custom", stored["_id"])
}

func TestCollectionInsertDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{}
	coll := newCollection("users", ops, WithClock(fixedClock()))

	in := bson.M{"name": "ada"}
	_, err := coll.Insert(context.Background(), in)
	require.NoError(t, err)
	assert.NotContains(t, in, "_id")
	assert.NotContains(t, in, "created_at")
}

func TestCollectionInsertValidation(t *testing.T) {
	t.Parallel()

	coll := newCollection("users", &fakeOps{})

	_, err := coll.Insert(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = coll.Insert(context.Background(), bson.M{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCollectionHydrator(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{findDoc: bson.M{"_id": "u1", "name": "ada"}}
	coll := newCollection("users", ops,
		WithClock(fixedClock()),
		WithHydrator(func(doc bson.M) bson.M {
			doc["hydrated"] = true
			return doc
		}),
	)

	// The hook runs uniformly after every result-producing operation.
	doc, err := coll.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, true, doc["hydrated"])

	stored, err := coll.Insert(context.Background(), bson.M{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, true, stored["hydrated"])
}

func TestCollectionGet(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{findDoc: bson.M{"_id": "u1"}}
	coll := newCollection("users", ops)

	doc, err := coll.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: "u1"}}, ops.lastFilter)
	assert.Equal(t, "u1", doc["_id"])

	_, err = coll.Get(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrValidation)

	ops.findDoc, ops.findErr = nil, model.ErrNotFound
	_, err = coll.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NotErrorIs(t, err, model.ErrOperation, "not-found is not an operation failure")
}

func TestCollectionUpdate(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{matched: 1}
	coll := newCollection("users", ops, WithClock(fixedClock()))

	require.NoError(t, coll.Update(context.Background(), "u1", bson.M{"name": "bob"}))

	require.Len(t, ops.lastUpdate, 1)
	assert.Equal(t, "$set", ops.lastUpdate[0].Key)
	patch := ops.lastUpdate[0].Value.(bson.M)
	assert.Equal(t, "bob", patch["name"])
	assert.Equal(t, int64(1700000000000), patch["updated_at"])

	assert.ErrorIs(t, coll.Update(context.Background(), "", bson.M{"a": 1}), model.ErrValidation)
	assert.ErrorIs(t, coll.Update(context.Background(), "u1", nil), model.ErrValidation)

	ops.matched = 0
	assert.ErrorIs(t, coll.Update(context.Background(), "gone", bson.M{"a": 1}), model.ErrNotFound)
}

func TestCollectionDelete(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{deleted: 1}
	coll := newCollection("users", ops)

	require.NoError(t, coll.Delete(context.Background(), "u1"))

	ops.deleted = 0
	assert.ErrorIs(t, coll.Delete(context.Background(), "gone"), model.ErrNotFound)

	assert.ErrorIs(t, coll.Delete(context.Background(), ""), model.ErrValidation)
}

func TestCollectionWrapsOperationErrors(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{opErr: errors.New("socket closed")}
	coll := newCollection("users", ops)

	_, err := coll.Insert(context.Background(), bson.M{"name": "ada"})
	require.ErrorIs(t, err, model.ErrOperation)

	var opErr *model.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "users", opErr.Collection)
	assert.Equal(t, "insert", opErr.Method)
}
