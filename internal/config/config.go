package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

// Sink names a storage backend.
type Sink string

const (
	SinkMongo    Sink = "mongo"
	SinkKafka    Sink = "kafka"
	SinkPostgres Sink = "postgres"
	SinkJSONL    Sink = "jsonl"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatasetProfile string
	BasinFile      string
	BasinBounds    domain.BoundsMode

	Sink Sink

	MongoURI      string
	MongoDatabase string

	KafkaBrokers       []string
	KafkaRecordTopic   string
	KafkaMetadataTopic string

	PostgresDSN string
	JSONLPath   string

	BatchSize       int
	LatBandSize     int
	Workers         int
	WritesPerSecond float64
	// TimeMajorCacheMB caps the memory used to keep time-major variables
	// whole across bands; 0 streams every band from disk.
	TimeMajorCacheMB int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	bounds, err := domain.ParseBoundsMode(sharedcfg.EnvOrDefault("BASIN_BOUNDS", "strict"))
	if err != nil {
		return nil, fmt.Errorf("invalid BASIN_BOUNDS: %w", err)
	}

	bandSize, err := parsePositiveInt("LAT_BAND_SIZE", 30)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	cacheMB, err := parseNonNegativeInt("TIME_MAJOR_CACHE_MB", 1024)
	if err != nil {
		return nil, err
	}

	wps := 0.0
	if s := os.Getenv("WRITES_PER_SECOND"); s != "" {
		wps, err = strconv.ParseFloat(s, 64)
		if err != nil || wps < 0 {
			return nil, errors.New("invalid WRITES_PER_SECOND")
		}
	}

	cfg := &Config{
		DatasetProfile: sharedcfg.EnvOrDefault("DATASET_PROFILE", "ccmp-raw"),
		BasinFile:      sharedcfg.EnvOrDefault("BASIN_FILE", "data/basinmask_01.nc"),
		BasinBounds:    bounds,

		Sink: Sink(strings.ToLower(sharedcfg.EnvOrDefault("SINK", string(SinkMongo)))),

		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: sharedcfg.EnvOrDefault("MONGODB_DATABASE", "argo"),

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRecordTopic:   sharedcfg.EnvOrDefault("KAFKA_RECORD_TOPIC", "grid-records"),
		KafkaMetadataTopic: sharedcfg.EnvOrDefault("KAFKA_METADATA_TOPIC", "grid-metadata"),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		JSONLPath:   sharedcfg.EnvOrDefault("JSONL_PATH", "-"),

		BatchSize:       batchSize,
		LatBandSize:     bandSize,
		Workers:         workers,
		WritesPerSecond: wps,

		TimeMajorCacheMB: cacheMB,

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validateSink(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validateSink() error {
	switch c.Sink {
	case SinkMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required when SINK=mongo")
		}
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when SINK=kafka")
		}
		if c.KafkaRecordTopic == "" || c.KafkaMetadataTopic == "" {
			return errors.New("KAFKA_RECORD_TOPIC and KAFKA_METADATA_TOPIC are required when SINK=kafka")
		}
	case SinkPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when SINK=postgres")
		}
	case SinkJSONL:
	default:
		return fmt.Errorf("invalid SINK %q", c.Sink)
	}
	return nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}
