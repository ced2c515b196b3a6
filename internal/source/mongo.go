package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/model"
)

// DefaultBatchSize is the cursor batch size used when none is configured.
const DefaultBatchSize = 100

// MongoConfig configures the MongoDB connection.
type MongoConfig struct {
	URI            string
	Database       string
	BatchSize      int32
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// MongoSource streams documents from per-project MongoDB collections.
type MongoSource struct {
	client    *mongo.Client
	db        *mongo.Database
	batchSize int32
	log       *zap.Logger
}

// NewMongo connects to MongoDB and verifies the primary is reachable.
func NewMongo(ctx context.Context, cfg MongoConfig) (*MongoSource, error) {
	if cfg.URI == "" {
		return nil, eris.New("mongo: uri is required")
	}
	if cfg.Database == "" {
		return nil, eris.New("mongo: database is required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	opts.SetReadPreference(readpref.SecondaryPreferred())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, eris.Wrap(err, "mongo: ping")
	}

	s := NewMongoFromDatabase(client.Database(cfg.Database), cfg.BatchSize)
	s.client = client
	return s, nil
}

// NewMongoFromDatabase wraps an existing database handle. Close does not
// disconnect the client.
func NewMongoFromDatabase(db *mongo.Database, batchSize int32) *MongoSource {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MongoSource{
		db:        db,
		batchSize: batchSize,
		log:       zap.L().With(zap.String("component", "source.mongo")),
	}
}

// Filter selects completed documents strictly after the checkpoint. A zero
// checkpoint selects every completed document.
func Filter(since model.Checkpoint) bson.D {
	filter := bson.D{{Key: "status", Value: StatusCompleted}}
	if since.LastCompletedAt.IsZero() {
		return filter
	}
	return append(filter, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "completed_at", Value: bson.D{{Key: "$gt", Value: since.LastCompletedAt}}}},
		bson.D{
			{Key: "completed_at", Value: since.LastCompletedAt},
			{Key: "_id", Value: bson.D{{Key: "$gt", Value: since.LastDocID}}},
		},
	}})
}

// Stream iterates the project's documents in checkpoint order.
func (m *MongoSource) Stream(ctx context.Context, projectID string, since model.Checkpoint, fn DocumentFunc) error {
	coll := m.db.Collection(CollectionName(projectID))
	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetBatchSize(m.batchSize)

	cursor, err := coll.Find(ctx, Filter(since), opts)
	if err != nil {
		return eris.Wrapf(err, "mongo: find documents for %s", projectID)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var n int
	for cursor.Next(ctx) {
		var doc model.SourceDocument
		if err := cursor.Decode(&doc); err != nil {
			return eris.Wrapf(err, "mongo: decode document in %s", projectID)
		}
		if doc.ProjectID == "" {
			doc.ProjectID = projectID
		}
		if err := fn(ctx, &doc); err != nil {
			return err
		}
		n++
	}
	if err := cursor.Err(); err != nil {
		return eris.Wrapf(err, "mongo: cursor for %s", projectID)
	}

	m.log.Debug("stream complete",
		zap.String("project_id", projectID),
		zap.Int("documents", n),
	)
	return nil
}

// Get loads one document by id.
func (m *MongoSource) Get(ctx context.Context, projectID, docID string) (*model.SourceDocument, error) {
	var doc model.SourceDocument
	err := m.db.Collection(CollectionName(projectID)).
		FindOne(ctx, bson.D{{Key: "_id", Value: docID}}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, eris.Wrapf(ErrNotFound, "mongo: %s/%s", projectID, docID)
		}
		return nil, eris.Wrapf(err, "mongo: get %s/%s", projectID, docID)
	}
	if doc.ProjectID == "" {
		doc.ProjectID = projectID
	}
	return &doc, nil
}

// Ping checks connectivity to the primary.
func (m *MongoSource) Ping(ctx context.Context) error {
	return eris.Wrap(m.db.Client().Ping(ctx, readpref.Primary()), "mongo: ping")
}

// Close disconnects the client when the source owns it.
func (m *MongoSource) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return eris.Wrap(m.client.Disconnect(ctx), "mongo: disconnect")
}
