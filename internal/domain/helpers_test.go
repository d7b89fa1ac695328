package domain

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestField lays fn out in the requested native order.
func newTestField(t *testing.T, name string, layout Layout, nTime, nRows, nLon int, fn func(t, r, lon int) float64) *Field {
	t.Helper()
	data := make([]float64, nTime*nRows*nLon)
	f, err := NewField(name, layout, nTime, nRows, nLon, data)
	require.NoError(t, err)
	for ti := 0; ti < nTime; ti++ {
		for r := 0; r < nRows; r++ {
			for lon := 0; lon < nLon; lon++ {
				var idx int
				if layout == LayoutTimeLatLon {
					idx = (ti*nRows+r)*nLon + lon
				} else {
					idx = (r*nLon+lon)*nTime + ti
				}
				data[idx] = fn(ti, r, lon)
			}
		}
	}
	return f
}

// seriesField returns a single-point field (1 row, 1 lon) holding values.
func seriesField(t *testing.T, name string, values ...float64) *Field {
	t.Helper()
	return newTestField(t, name, LayoutLatLonTime, len(values), 1, 1, func(ti, _, _ int) float64 {
		return values[ti]
	})
}

// singlePointBand wraps per-variable series at one grid point.
func singlePointBand(vars, counts []*Field) *Band {
	return &Band{
		Lats:   []float64{0.125},
		Lons:   []float64{0.125},
		NTime:  vars[0].NTime,
		Vars:   vars,
		Counts: counts,
	}
}

// indexedBasinGrid stores latIdx*1000+lonIdx in every cell of a global
// 1° grid.
func indexedBasinGrid(t *testing.T) *BasinGrid {
	t.Helper()
	const nLat, nLon = 168, 360
	cells := make([]int64, nLat*nLon)
	for i := 0; i < nLat; i++ {
		for j := 0; j < nLon; j++ {
			cells[i*nLon+j] = int64(i*1000 + j)
		}
	}
	g, err := NewBasinGrid(DefaultBasinLonOrigin, DefaultBasinLatOrigin, nLat, nLon, cells)
	require.NoError(t, err)
	return g
}

// assembleBand runs AssembleRow over every row of b in order and merges the
// results.
func assembleBand(a *Assembler, b *Band) (RowResult, error) {
	total := RowResult{Dropped: make(map[DropReason]int)}
	for r := 0; r < b.Rows(); r++ {
		res, err := a.AssembleRow(b, r)
		if err != nil {
			return RowResult{}, err
		}
		total.Records = append(total.Records, res.Records...)
		for k, v := range res.Dropped {
			total.Dropped[k] += v
		}
	}
	return total, nil
}
