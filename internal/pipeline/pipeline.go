package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/observability"
)

// BandSource is the opened source dataset.
type BandSource interface {
	Shape() (nLat, nLon, nTime int)
	Times() []time.Time
	Attributes(variable string) (domain.Attributes, error)
	ReadBand(ctx context.Context, latBegin, latEnd int) (*domain.Band, error)
}

// RowAssembler turns one band row into location records.
type RowAssembler interface {
	AssembleRow(b *domain.Band, row int) (domain.RowResult, error)
}

// RecordStore persists the dataset description and its location records.
type RecordStore interface {
	InsertMetadata(ctx context.Context, meta domain.DatasetMetadata) error
	InsertRecords(ctx context.Context, records []domain.LocationRecord) error
	Close() error
}

// Options tunes a run. Metadata lists the dataset id, attributes and
// variables (with defaults); attribute values and the time axis are read
// from the source.
type Options struct {
	BatchSize       int
	BandSize        int
	Workers         int
	WritesPerSecond float64
	Metadata        domain.MetadataInput
}

// ProgressFunc is called after every band with rows completed so far.
type ProgressFunc func(rowsDone, rowsTotal int)

// Pipeline reads the source one latitude band at a time, assembles rows in
// parallel and writes records in batches.
type Pipeline struct {
	source    BandSource
	assembler RowAssembler
	store     RecordStore
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	limiter   *rate.Limiter
	progress  ProgressFunc
	ready     atomic.Bool
	rowsDone  atomic.Int64
	rowsTotal atomic.Int64
	written   atomic.Int64
}

// Status is a point-in-time view of a run.
type Status struct {
	RowsDone       int64 `json:"rows_done"`
	RowsTotal      int64 `json:"rows_total"`
	RecordsWritten int64 `json:"records_written"`
}

// New creates a Pipeline with the given stages and observability.
func New(source BandSource, assembler RowAssembler, store RecordStore, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.BandSize <= 0 {
		opts.BandSize = 30
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	p := &Pipeline{
		source:    source,
		assembler: assembler,
		store:     store,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
	if opts.WritesPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.WritesPerSecond), 1)
	}
	return p
}

// WithProgress registers a callback invoked after each band.
func (p *Pipeline) WithProgress(fn ProgressFunc) *Pipeline {
	p.progress = fn
	return p
}

// CheckReadiness returns nil once the dataset metadata has been stored.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("dataset metadata not stored yet")
	}
	return nil
}

// Status reports run progress.
func (p *Pipeline) Status() Status {
	return Status{
		RowsDone:       p.rowsDone.Load(),
		RowsTotal:      p.rowsTotal.Load(),
		RecordsWritten: p.written.Load(),
	}
}

// Run stores the dataset metadata, then every latitude band's records. Any
// error aborts the run.
func (p *Pipeline) Run(ctx context.Context) error {
	nLat, nLon, nTime := p.source.Shape()
	p.logger.Info("pipeline started",
		"latitudes", nLat,
		"longitudes", nLon,
		"timesteps", nTime,
		"band_size", p.opts.BandSize,
		"batch_size", p.opts.BatchSize,
		"workers", p.opts.Workers,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.rowsTotal.Store(int64(nLat))

	meta, err := p.buildMetadata()
	if err != nil {
		return err
	}
	if err := p.store.InsertMetadata(ctx, meta); err != nil {
		p.metrics.StoreErrors.Inc()
		return &domain.StorageWriteError{Op: "insert metadata", Err: err}
	}
	p.ready.Store(true)

	var written int
	for begin := 0; begin < nLat; begin += p.opts.BandSize {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline stopping", "reason", err, "lat_index", begin)
			return err
		}
		end := min(begin+p.opts.BandSize, nLat)
		n, err := p.processBand(ctx, begin, end)
		if err != nil {
			return err
		}
		written += n
		p.rowsDone.Store(int64(end))
		if p.progress != nil {
			p.progress(end, nLat)
		}
	}

	p.logger.Info("pipeline finished", "records", written)
	return nil
}

func (p *Pipeline) buildMetadata() (domain.DatasetMetadata, error) {
	in := p.opts.Metadata
	in.Times = p.source.Times()
	in.Variables = make([]domain.VariableInfo, len(p.opts.Metadata.Variables))
	for i, v := range p.opts.Metadata.Variables {
		attrs, err := p.source.Attributes(v.Name)
		if err != nil {
			return domain.DatasetMetadata{}, err
		}
		v.Attrs = attrs
		in.Variables[i] = v
	}
	return domain.BuildMetadata(in)
}

// processBand reads latitude rows [begin, end), assembles them and writes
// the records. It returns the number of records written.
func (p *Pipeline) processBand(ctx context.Context, begin, end int) (int, error) {
	start := time.Now()

	band, err := p.source.ReadBand(ctx, begin, end)
	if err != nil {
		return 0, fmt.Errorf("read band [%d, %d): %w", begin, end, err)
	}

	results := make([]domain.RowResult, band.Rows())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for row := range band.Rows() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.assembler.AssembleRow(band, row)
			if err != nil {
				return fmt.Errorf("latitude index %d: %w", begin+row, err)
			}
			results[row] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var records []domain.LocationRecord
	dropped := make(map[domain.DropReason]int)
	for _, res := range results {
		records = append(records, res.Records...)
		for reason, n := range res.Dropped {
			dropped[reason] += n
		}
	}
	if err := checkUnique(records); err != nil {
		return 0, err
	}

	p.metrics.RowsProcessed.Add(float64(band.Rows()))
	p.metrics.LocationsEmitted.Add(float64(len(records)))
	droppedTotal := 0
	for reason, n := range dropped {
		p.metrics.LocationsDropped.WithLabelValues(string(reason)).Add(float64(n))
		droppedTotal += n
	}

	if err := p.write(ctx, records); err != nil {
		return 0, err
	}

	p.metrics.BandDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("band complete",
		"lat_begin", begin,
		"lat_end", end,
		"records", len(records),
		"dropped", droppedTotal,
		"duration", time.Since(start),
	)
	return len(records), nil
}

// write splits records into batches and hands them to the store, throttled
// by the optional rate limiter.
func (p *Pipeline) write(ctx context.Context, records []domain.LocationRecord) error {
	for i := 0; i < len(records); i += p.opts.BatchSize {
		batch := records[i:min(i+p.opts.BatchSize, len(records))]
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		if err := p.store.InsertRecords(ctx, batch); err != nil {
			p.metrics.StoreErrors.Inc()
			return &domain.StorageWriteError{Op: "insert records", Err: err}
		}
		p.metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
		p.metrics.BatchSize.Observe(float64(len(batch)))
		p.metrics.RecordsWritten.Add(float64(len(batch)))
		p.written.Add(int64(len(batch)))
	}
	return nil
}

func checkUnique(records []domain.LocationRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return &domain.DuplicateLocationError{ID: r.ID}
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
