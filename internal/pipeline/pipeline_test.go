package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/observability"
	"github.com/couchcryptid/grid-basin-etl/internal/pipeline"
)

// --- mocks ---

// gridSource serves an in-memory lat x lon x time grid in lat,lon,time order.
type gridSource struct {
	lats  []float64
	lons  []float64
	times []time.Time
	vars  []string
	value func(v, t, lat, lon int) float64
	attrs map[string]domain.Attributes
	reads int
}

func (s *gridSource) Shape() (int, int, int) { return len(s.lats), len(s.lons), len(s.times) }
func (s *gridSource) Times() []time.Time     { return s.times }

func (s *gridSource) Attributes(name string) (domain.Attributes, error) {
	a, ok := s.attrs[name]
	if !ok {
		return nil, &domain.MissingVariableError{Name: name}
	}
	return a, nil
}

func (s *gridSource) ReadBand(_ context.Context, begin, end int) (*domain.Band, error) {
	s.reads++
	rows, nLon, nTime := end-begin, len(s.lons), len(s.times)
	b := &domain.Band{LatBegin: begin, Lats: s.lats[begin:end], Lons: s.lons, NTime: nTime}
	for vi, name := range s.vars {
		data := make([]float64, 0, rows*nLon*nTime)
		for r := 0; r < rows; r++ {
			for l := 0; l < nLon; l++ {
				for t := 0; t < nTime; t++ {
					data = append(data, s.value(vi, t, begin+r, l))
				}
			}
		}
		f, err := domain.NewField(name, domain.LayoutLatLonTime, nTime, rows, nLon, data)
		if err != nil {
			return nil, err
		}
		b.Vars = append(b.Vars, f)
	}
	return b, nil
}

type memoryStore struct {
	mu         sync.Mutex
	metadata   []domain.DatasetMetadata
	batches    [][]domain.LocationRecord
	metaErr    error
	recordsErr error
}

func (m *memoryStore) InsertMetadata(_ context.Context, meta domain.DatasetMetadata) error {
	if m.metaErr != nil {
		return m.metaErr
	}
	m.metadata = append(m.metadata, meta)
	return nil
}

func (m *memoryStore) InsertRecords(_ context.Context, records []domain.LocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordsErr != nil {
		return m.recordsErr
	}
	m.batches = append(m.batches, append([]domain.LocationRecord(nil), records...))
	return nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) ids() []string {
	var out []string
	for _, b := range m.batches {
		for _, r := range b {
			out = append(out, r.ID)
		}
	}
	return out
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func globalBasins(t *testing.T) *domain.BasinGrid {
	t.Helper()
	const nLat, nLon = 168, 360
	cells := make([]int64, nLat*nLon)
	for i := range cells {
		cells[i] = int64(i/nLon)*1000 + int64(i%nLon)
	}
	g, err := domain.NewBasinGrid(domain.DefaultBasinLonOrigin, domain.DefaultBasinLatOrigin, nLat, nLon, cells)
	require.NoError(t, err)
	return g
}

func sixHourly(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(1993, time.January, 3, 6*i, 0, 0, 0, time.UTC)
	}
	return out
}

// newSource builds a 3 x 2 x 2 grid where the point at lat index 2, lon
// index 1 is missing everywhere.
func newSource() *gridSource {
	attrs := domain.Attributes{"units": "m s-1", "long_name": "wind"}
	return &gridSource{
		lats:  []float64{10.25, 10.75, 11.25},
		lons:  []float64{20.25, 200.25},
		times: sixHourly(2),
		vars:  []string{"uwnd", "vwnd"},
		value: func(v, t, lat, lon int) float64 {
			if lat == 2 && lon == 1 {
				return math.NaN()
			}
			return float64(v*1000 + lat*100 + lon*10 + t)
		},
		attrs: map[string]domain.Attributes{"uwnd": attrs, "vwnd": attrs},
	}
}

func metadataInput() domain.MetadataInput {
	return domain.MetadataInput{
		ID:         "ccmp",
		DataType:   "ccmp-wind",
		Attributes: []string{"units", "long_name"},
		Variables:  []domain.VariableInfo{{Name: "uwnd"}, {Name: "vwnd"}},
	}
}

func newPipeline(t *testing.T, src *gridSource, store *memoryStore, metrics *observability.Metrics, bounds domain.BoundsMode) *pipeline.Pipeline {
	t.Helper()
	asm := domain.NewAssembler(globalBasins(t), domain.JointNaNPolicy{}, []string{"ccmp"}, src.times, bounds, discardLogger())
	return pipeline.New(src, asm, store, discardLogger(), metrics, pipeline.Options{
		BatchSize: 2,
		BandSize:  2,
		Workers:   3,
		Metadata:  metadataInput(),
	})
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	src := newSource()
	store := &memoryStore{}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(t, src, store, metrics, domain.BoundsStrict)

	var progress [][2]int
	p.WithProgress(func(done, total int) { progress = append(progress, [2]int{done, total}) })

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))

	require.Len(t, store.metadata, 1)
	meta := store.metadata[0]
	assert.Equal(t, "ccmp", meta.ID)
	assert.Equal(t, []string{"m s-1", "wind"}, meta.DataInfo.Values[0])
	assert.Len(t, meta.Timeseries, 2)

	want := []string{"20.25_10.25", "-159.75_10.25", "20.25_10.75", "-159.75_10.75", "20.25_11.25"}
	if diff := cmp.Diff(want, store.ids()); diff != "" {
		t.Fatalf("record order mismatch (-want +got):\n%s", diff)
	}
	// band one has four records in two batches, band two a single record
	require.Len(t, store.batches, 3)
	assert.Equal(t, 2, src.reads)
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, progress)

	first := store.batches[0][0]
	assert.EqualValues(t, 88*1000+200, first.Basin)
	assert.Equal(t, []float64{1000, 1001}, []float64(first.Data[1]))
	assert.Len(t, first.Timeseries, 2)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.RowsProcessed), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.LocationsEmitted), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.RecordsWritten), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LocationsDropped.WithLabelValues("empty")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_MetadataWriteFails(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &memoryStore{metaErr: storeErr}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(t, newSource(), store, metrics, domain.BoundsStrict)

	err := p.Run(context.Background())
	var swe *domain.StorageWriteError
	require.True(t, errors.As(err, &swe))
	assert.Equal(t, "insert metadata", swe.Op)
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, store.batches)
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StoreErrors), 0)
}

func TestPipeline_Run_RecordWriteFails(t *testing.T) {
	storeErr := errors.New("write conflict")
	store := &memoryStore{recordsErr: storeErr}
	src := newSource()
	p := newPipeline(t, src, store, observability.NewMetricsForTesting(), domain.BoundsStrict)

	err := p.Run(context.Background())
	var swe *domain.StorageWriteError
	require.True(t, errors.As(err, &swe))
	assert.Equal(t, "insert records", swe.Op)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 1, src.reads, "run stops at the failing band")
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	store := &memoryStore{}
	src := newSource()
	p := newPipeline(t, src, store, observability.NewMetricsForTesting(), domain.BoundsStrict)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.reads)
	assert.Empty(t, store.batches)
}

func TestPipeline_Run_MissingAttribute(t *testing.T) {
	src := newSource()
	delete(src.attrs, "vwnd")
	store := &memoryStore{}
	p := newPipeline(t, src, store, observability.NewMetricsForTesting(), domain.BoundsStrict)

	err := p.Run(context.Background())
	var missing *domain.MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Empty(t, store.metadata)
}

func TestPipeline_Run_DuplicateLocation(t *testing.T) {
	src := newSource()
	src.lats = []float64{10.25, 10.25, 11.25}
	store := &memoryStore{}
	p := newPipeline(t, src, store, observability.NewMetricsForTesting(), domain.BoundsStrict)

	err := p.Run(context.Background())
	var dup *domain.DuplicateLocationError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "20.25_10.25", dup.ID)
	assert.Empty(t, store.batches)
}

func TestPipeline_Run_OutOfBounds(t *testing.T) {
	src := newSource()
	src.lats = []float64{-78.375, 10.75, 11.25}

	t.Run("strict", func(t *testing.T) {
		store := &memoryStore{}
		p := newPipeline(t, src, store, observability.NewMetricsForTesting(), domain.BoundsStrict)
		err := p.Run(context.Background())
		var oob *domain.IndexOutOfBoundsError
		require.True(t, errors.As(err, &oob))
		assert.Empty(t, store.batches)
	})

	t.Run("lenient", func(t *testing.T) {
		store := &memoryStore{}
		metrics := observability.NewMetricsForTesting()
		p := newPipeline(t, src, store, metrics, domain.BoundsLenient)
		require.NoError(t, p.Run(context.Background()))
		assert.Len(t, store.ids(), 3)
		assert.InDelta(t, 2, testutil.ToFloat64(metrics.LocationsDropped.WithLabelValues("out_of_bounds")), 0)
	})
}

func TestPipeline_Run_Throttled(t *testing.T) {
	store := &memoryStore{}
	src := newSource()
	asm := domain.NewAssembler(globalBasins(t), domain.JointNaNPolicy{}, []string{"ccmp"}, src.times, domain.BoundsStrict, discardLogger())
	p := pipeline.New(src, asm, store, discardLogger(), observability.NewMetricsForTesting(), pipeline.Options{
		BatchSize:       1,
		BandSize:        3,
		Workers:         1,
		WritesPerSecond: 1000,
		Metadata:        metadataInput(),
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, store.batches, 5)
}

func TestPipeline_Status(t *testing.T) {
	store := &memoryStore{}
	p := newPipeline(t, newSource(), store, observability.NewMetricsForTesting(), domain.BoundsStrict)

	assert.Equal(t, pipeline.Status{}, p.Status())
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, pipeline.Status{RowsDone: 3, RowsTotal: 3, RecordsWritten: 5}, p.Status())
}
