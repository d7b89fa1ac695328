// Package postgres stores location records as JSONB documents.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS grid_metadata (
	id  text PRIMARY KEY,
	doc jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS grid_records (
	id          text   NOT NULL,
	metadata_id text   NOT NULL,
	basin       bigint NOT NULL,
	doc         jsonb  NOT NULL,
	PRIMARY KEY (metadata_id, id)
);
CREATE INDEX IF NOT EXISTS grid_records_basin_idx ON grid_records (metadata_id, basin);
`

const upsertMetadata = `INSERT INTO grid_metadata (id, doc) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`

const upsertRecord = `INSERT INTO grid_records (id, metadata_id, basin, doc) VALUES ($1, $2, $3, $4)
ON CONFLICT (metadata_id, id) DO UPDATE SET basin = EXCLUDED.basin, doc = EXCLUDED.doc`

// Store writes to grid_metadata and grid_records.
// It implements pipeline.RecordStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to dsn and creates the tables if absent.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Info("postgres connected")
	return &Store{db: db, logger: logger}, nil
}

// InsertMetadata upserts the dataset description by id.
func (s *Store) InsertMetadata(ctx context.Context, meta domain.DatasetMetadata) error {
	doc, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", meta.ID, err)
	}
	if _, err := s.db.ExecContext(ctx, upsertMetadata, meta.ID, doc); err != nil {
		return fmt.Errorf("upsert metadata %s: %w", meta.ID, err)
	}
	return nil
}

// InsertRecords upserts a batch in one transaction.
func (s *Store) InsertRecords(ctx context.Context, records []domain.LocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		row, err := newRecordRow(records[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row.id, row.metadataID, row.basin, row.doc); err != nil {
			return fmt.Errorf("upsert record %s: %w", row.id, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type recordRow struct {
	id         string
	metadataID string
	basin      int64
	doc        []byte
}

// newRecordRow keys a record by its first metadata id.
func newRecordRow(rec domain.LocationRecord) (recordRow, error) {
	if len(rec.Metadata) == 0 {
		return recordRow{}, fmt.Errorf("record %s has no metadata id", rec.ID)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return recordRow{}, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return recordRow{id: rec.ID, metadataID: rec.Metadata[0], basin: rec.Basin, doc: doc}, nil
}
