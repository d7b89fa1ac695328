// Package mongo stores location records and dataset metadata in MongoDB
// collections, one document per grid point.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

type collection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Store writes records and metadata to two collections.
// It implements pipeline.RecordStore.
type Store struct {
	client   *mongo.Client
	records  collection
	metadata collection
	logger   *slog.Logger
}

// Connect dials uri and verifies the primary is reachable.
func Connect(ctx context.Context, uri, database, recordsColl, metadataColl string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	logger.Info("mongodb connected", "database", database, "records", recordsColl, "metadata", metadataColl)
	return &Store{
		client:   client,
		records:  db.Collection(recordsColl),
		metadata: db.Collection(metadataColl),
		logger:   logger,
	}, nil
}

// InsertMetadata upserts the dataset description by id, so re-running an
// ingest replaces it.
func (s *Store) InsertMetadata(ctx context.Context, meta domain.DatasetMetadata) error {
	doc := toMetadataDoc(meta)
	_, err := s.metadata.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert metadata %s: %w", meta.ID, err)
	}
	return nil
}

// InsertRecords upserts a batch by location id in one ordered bulk write, so
// re-running an ingest replaces earlier documents. The first failure stops
// the batch.
func (s *Store) InsertRecords(ctx context.Context, records []domain.LocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(records))
	for i := range records {
		doc := toRecordDoc(records[i])
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true)
	}
	if _, err := s.records.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(models), err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
