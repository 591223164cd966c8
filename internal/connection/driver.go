package connection

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client is the subset of driver behaviour the Manager drives. The state
// machine never touches *mongo.Client directly so it can be exercised
// against a fake.
type Client interface {
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
	ListCollectionNames(ctx context.Context) ([]string, error)
	DropDatabase(ctx context.Context) error
	EnsureIndexes(ctx context.Context, decls []IndexDecl) error
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Database() *mongo.Database
}

// Dialer establishes a Client. The production dialer connects and pings; a
// returned Client is live.
type Dialer func(ctx context.Context, cfg Config) (Client, error)

// MongoDialer is the production Dialer backed by the official driver.
func MongoDialer(ctx context.Context, cfg Config) (Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &mongoClient{client: client, db: client.Database(cfg.Database)}, nil
}

type mongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

func (c *mongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *mongoClient) ListCollectionNames(ctx context.Context) ([]string, error) {
	return c.db.ListCollectionNames(ctx, bson.M{})
}

func (c *mongoClient) DropDatabase(ctx context.Context) error {
	return c.db.Drop(ctx)
}

func (c *mongoClient) EnsureIndexes(ctx context.Context, decls []IndexDecl) error {
	for _, decl := range decls {
		keys := bson.D{}
		for _, k := range decl.Keys {
			dir := 1
			if k.Descending {
				dir = -1
			}
			keys = append(keys, bson.E{Key: k.Field, Value: dir})
		}

		idxOpts := options.Index().SetUnique(decl.Unique)
		if decl.TTL > 0 {
			idxOpts.SetExpireAfterSeconds(int32(decl.TTL.Seconds()))
		}

		_, err := c.db.Collection(decl.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: idxOpts,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *mongoClient) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := c.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	callback := func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}

	_, err = session.WithTransaction(ctx, callback)
	return err
}

func (c *mongoClient) Database() *mongo.Database {
	return c.db
}
