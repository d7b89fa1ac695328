// Package jsonl writes metadata and records as newline-delimited JSON, for
// dry runs and piping into other tools.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

// Store implements pipeline.RecordStore over any writer.
type Store struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// Open writes to path, or to stdout when path is "-".
func Open(path string) (*Store, error) {
	if path == "-" {
		return New(os.Stdout, nil), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return New(f, f), nil
}

// New wraps w. closer, if non-nil, is closed after the final flush.
func New(w io.Writer, closer io.Closer) *Store {
	bw := bufio.NewWriter(w)
	return &Store{w: bw, enc: json.NewEncoder(bw), closer: closer}
}

func (s *Store) InsertMetadata(_ context.Context, meta domain.DatasetMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata %s: %w", meta.ID, err)
	}
	return s.w.Flush()
}

func (s *Store) InsertRecords(_ context.Context, records []domain.LocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		if err := s.enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].ID, err)
		}
	}
	return s.w.Flush()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
