// Command etl ingests one gridded dataset file: every grid point with data
// becomes a basin-classified location record in the configured store.
//
// Usage:
//
//	etl [-progress] <dataset.nc>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/gosuri/uiprogress"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/grid-basin-etl/internal/adapter/http"
	"github.com/couchcryptid/grid-basin-etl/internal/adapter/jsonl"
	kafkaadapter "github.com/couchcryptid/grid-basin-etl/internal/adapter/kafka"
	"github.com/couchcryptid/grid-basin-etl/internal/adapter/mongo"
	"github.com/couchcryptid/grid-basin-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/grid-basin-etl/internal/adapter/postgres"
	"github.com/couchcryptid/grid-basin-etl/internal/config"
	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/observability"
	"github.com/couchcryptid/grid-basin-etl/internal/pipeline"
	"github.com/couchcryptid/grid-basin-etl/internal/profile"
)

func main() {
	_ = godotenv.Load(".env.local")

	showProgress := flag.Bool("progress", false, "draw a progress bar on stdout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-progress] <dataset.nc>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(cfg).With("run_id", runID)
	if err := run(cfg, flag.Arg(0), runID, *showProgress, logger); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, datasetPath, runID string, showProgress bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prof, err := profile.Load(cfg.DatasetProfile)
	if err != nil {
		return err
	}
	logger = logger.With("profile", prof.ID)

	ds, err := netcdf.Open(datasetPath, prof)
	if err != nil {
		return err
	}
	defer ds.Close()
	ds.CacheTimeMajor(int64(cfg.TimeMajorCacheMB) << 20)

	basins, err := netcdf.LoadBasinGrid(cfg.BasinFile, prof.Basin.Variable, *prof.Basin.LonOrigin, *prof.Basin.LatOrigin)
	if err != nil {
		return fmt.Errorf("load basins: %w", err)
	}

	store, err := openStore(ctx, cfg, prof, runID, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	assembler := domain.NewAssembler(basins, prof.Policy(), prof.MetadataKeys, ds.Times(), cfg.BasinBounds, logger)
	p := pipeline.New(ds, assembler, store, logger, observability.NewMetrics(), pipeline.Options{
		BatchSize:       cfg.BatchSize,
		BandSize:        cfg.LatBandSize,
		Workers:         cfg.Workers,
		WritesPerSecond: cfg.WritesPerSecond,
		Metadata:        metadataInput(prof),
	})

	if showProgress {
		nLat, _, _ := ds.Shape()
		uiprogress.Start()
		defer uiprogress.Stop()
		bar := uiprogress.AddBar(nLat).AppendCompleted().PrependElapsed()
		p.WithProgress(func(done, _ int) {
			_ = bar.Set(done)
		})
	}

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	logger.Info("ingest starting", "dataset", datasetPath, "sink", cfg.Sink, "bounds", cfg.BasinBounds)
	if err := p.Run(ctx); err != nil {
		return err
	}
	logger.Info("ingest complete", "records", p.Status().RecordsWritten)
	return nil
}

func metadataInput(prof *profile.Profile) domain.MetadataInput {
	vars := make([]domain.VariableInfo, len(prof.Variables))
	for i, v := range prof.Variables {
		vars[i] = domain.VariableInfo{Name: v.Name, Defaults: v.Defaults}
	}
	return domain.MetadataInput{
		ID:         prof.ID,
		DataType:   prof.DataType,
		Attributes: prof.Attributes,
		Variables:  vars,
		Source:     prof.SourceDocs(),
	}
}

func openStore(ctx context.Context, cfg *config.Config, prof *profile.Profile, runID string, logger *slog.Logger) (pipeline.RecordStore, error) {
	switch cfg.Sink {
	case config.SinkMongo:
		return mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, prof.Collections.Records, prof.Collections.Metadata, logger)
	case config.SinkKafka:
		return kafkaadapter.NewWriter(cfg, runID, logger), nil
	case config.SinkPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, logger)
	case config.SinkJSONL:
		return jsonl.Open(cfg.JSONLPath)
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
