package objects

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "pushbridge/pkg/logx"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    logx.Logger
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("objects.uri is required for mongo driver")
	}
	dbName := strings.TrimSpace(cfg.Database)
	if dbName == "" {
		dbName = "iobroker"
	}
	collName := strings.TrimSpace(cfg.Collection)
	if collName == "" {
		collName = "objects"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Info("mongo connected", logx.String("database", dbName), logx.String("collection", collName))
	return &mongoStore{client: client, coll: client.Database(dbName).Collection(collName), log: log}, nil
}

func (s *mongoStore) GetObject(ctx context.Context, id string) (*Object, error) {
	var o Object
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Native == nil {
		o.Native = map[string]any{}
	}
	return &o, nil
}

func (s *mongoStore) SetObject(ctx context.Context, obj *Object) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": obj.ID}, obj, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
