package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/grid-basin-etl/internal/config"
	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

// Writer publishes location records and dataset metadata as JSON messages.
// It implements pipeline.RecordStore.
type Writer struct {
	writer        *kafkago.Writer
	recordTopic   string
	metadataTopic string
	runID         string
	logger        *slog.Logger
}

// NewWriter creates a Kafka producer for the configured record and metadata topics.
func NewWriter(cfg *config.Config, runID string, logger *slog.Logger) *Writer {
	return NewTopicWriter(cfg.KafkaBrokers, cfg.KafkaRecordTopic, cfg.KafkaMetadataTopic, runID, logger)
}

// NewTopicWriter creates a producer without a config, for tools and tests.
func NewTopicWriter(brokers []string, recordTopic, metadataTopic, runID string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{
		writer:        w,
		recordTopic:   recordTopic,
		metadataTopic: metadataTopic,
		runID:         runID,
		logger:        logger,
	}
}

// InsertMetadata publishes the dataset description keyed by its id.
func (w *Writer) InsertMetadata(ctx context.Context, meta domain.DatasetMetadata) error {
	msg, err := serializeMetadata(meta, w.metadataTopic, w.runID)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

// InsertRecords publishes a batch of records in a single WriteMessages call.
func (w *Writer) InsertRecords(ctx context.Context, records []domain.LocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeRecord(records[i], w.recordTopic, w.runID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("records published", "topic", w.recordTopic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeRecord marshals a LocationRecord into a Kafka message keyed by
// its location id.
func serializeRecord(rec domain.LocationRecord, topic, runID string) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", rec.ID, err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "metadata", Value: []byte(strings.Join(rec.Metadata, ","))},
			{Key: "basin", Value: []byte(strconv.FormatInt(rec.Basin, 10))},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}

func serializeMetadata(meta domain.DatasetMetadata, topic, runID string) (kafkago.Message, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize metadata %s: %w", meta.ID, err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(meta.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "data_type", Value: []byte(meta.DataType)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
