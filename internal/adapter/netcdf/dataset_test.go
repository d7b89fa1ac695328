package netcdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/profile"
)

const ccmpTimeUnits = "hours since 1987-01-01 00:00:00"

func loadProfile(t *testing.T, name string) *profile.Profile {
	t.Helper()
	p, err := profile.Load(name)
	require.NoError(t, err)
	return p
}

// gridValues fills nLat x nLon x nTime values in the given layout with
// lat*100 + lon*10 + t so every cell is distinguishable.
func gridValues(layout domain.Layout, nLat, nLon, nTime int) []float32 {
	out := make([]float32, nLat*nLon*nTime)
	for r := 0; r < nLat; r++ {
		for l := 0; l < nLon; l++ {
			for tt := 0; tt < nTime; tt++ {
				idx := (r*nLon+l)*nTime + tt
				if layout == domain.LayoutTimeLatLon {
					idx = (tt*nLat+r)*nLon + l
				}
				out[idx] = float32(r*100 + l*10 + tt)
			}
		}
	}
	return out
}

func writeRawFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ccmp.nc")
	vars := make([]FixtureVariable, 0, 4)
	for _, name := range []string{"uwnd", "vwnd", "ws", "nobs"} {
		vars = append(vars, FixtureVariable{
			Name:   name,
			Layout: domain.LayoutLatLonTime,
			Values: gridValues(domain.LayoutLatLonTime, 3, 2, 2),
			Attributes: []Attr{
				{Name: "units", Value: "m s-1"},
				{Name: "long_name", Value: name + " long name"},
			},
		})
	}
	require.NoError(t, WriteDataset(path, DatasetFixture{
		Lats:      []float32{-78.375, 0.1, 78.375},
		Lons:      []float32{0.125, 359.875},
		Times:     []float64{52656, 52662},
		TimeUnits: ccmpTimeUnits,
		Variables: vars,
	}))
	return path
}

func TestOpen_RawLayout(t *testing.T) {
	ds, err := Open(writeRawFixture(t), loadProfile(t, "ccmp-raw"))
	require.NoError(t, err)
	defer ds.Close()

	nLat, nLon, nTime := ds.Shape()
	assert.Equal(t, 3, nLat)
	assert.Equal(t, 2, nLon)
	assert.Equal(t, 2, nTime)
	assert.Equal(t, []float64{-78.375, 0.1, 78.375}, ds.Latitudes())
	assert.Equal(t, []float64{0.125, 359.875}, ds.Longitudes())
	require.Len(t, ds.Times(), 2)
	assert.Equal(t, "1993-01-03T00:00:00Z", domain.FormatTimestamp(ds.Times()[0]))
	assert.Equal(t, "1993-01-03T06:00:00Z", domain.FormatTimestamp(ds.Times()[1]))

	attrs, err := ds.Attributes("ws")
	require.NoError(t, err)
	units, err := domain.AttributeString(attrs, "ws", "units")
	require.NoError(t, err)
	assert.Equal(t, "m s-1", units)
}

func TestReadBand_RawLayout(t *testing.T) {
	ds, err := Open(writeRawFixture(t), loadProfile(t, "ccmp-raw"))
	require.NoError(t, err)
	defer ds.Close()

	b, err := ds.ReadBand(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, b.LatBegin)
	assert.Equal(t, []float64{0.1, 78.375}, b.Lats)
	assert.Equal(t, 2, b.NTime)
	require.Len(t, b.Vars, 4)
	assert.Empty(t, b.Counts)

	uwnd := b.Vars[0]
	assert.Equal(t, "uwnd", uwnd.Name)
	assert.Equal(t, domain.LayoutLatLonTime, uwnd.Layout)
	// band row 0 is file row 1
	assert.Equal(t, 100.0, uwnd.At(0, 0, 0))
	assert.Equal(t, 111.0, uwnd.At(1, 0, 1))
	assert.Equal(t, 210.0, uwnd.At(0, 1, 1))
}

func writeWeeklyFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weekly.nc")
	const fill = float32(-9999)

	var vars []FixtureVariable
	for _, name := range []string{"uwnd", "vwnd", "ws"} {
		vals := gridValues(domain.LayoutTimeLatLon, 2, 2, 3)
		vals[0] = fill
		vars = append(vars,
			FixtureVariable{
				Name:       name,
				Layout:     domain.LayoutTimeLatLon,
				Values:     vals,
				Attributes: []Attr{{Name: "units", Value: "m s-1"}, {Name: "_FillValue", Value: fill}},
			},
			FixtureVariable{
				Name:   name + "_nobs",
				Layout: domain.LayoutTimeLatLon,
				Values: gridValues(domain.LayoutTimeLatLon, 2, 2, 3),
			},
		)
	}
	require.NoError(t, WriteDataset(path, DatasetFixture{
		Lats:      []float32{-10.125, 10.125},
		Lons:      []float32{20.125, 200.125},
		Times:     []float64{52656, 52824, 52992},
		TimeUnits: ccmpTimeUnits,
		Variables: vars,
	}))
	return path
}

func TestReadBand_TimeMajorLayout(t *testing.T) {
	ds, err := Open(writeWeeklyFixture(t), loadProfile(t, "ccmp-weekly"))
	require.NoError(t, err)
	defer ds.Close()

	full, err := ds.ReadBand(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, full.Vars, 3)
	require.Len(t, full.Counts, 3)

	ws := full.Vars[2]
	assert.Equal(t, domain.LayoutTimeLatLon, ws.Layout)
	assert.True(t, math.IsNaN(ws.At(0, 0, 0)), "fill value becomes NaN")
	assert.Equal(t, 12.0, ws.At(2, 0, 1))
	assert.Equal(t, "ws_nobs", full.Counts[2].Name)
	assert.Equal(t, 0.0, full.Counts[2].At(0, 0, 0))

	upper, err := ds.ReadBand(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{10.125}, upper.Lats)
	assert.Equal(t, 111.0, upper.Vars[0].At(1, 0, 1))
}

func TestReadBand_TimeMajorCached(t *testing.T) {
	path := writeWeeklyFixture(t)
	prof := loadProfile(t, "ccmp-weekly")

	streamed, err := Open(path, prof)
	require.NoError(t, err)
	defer streamed.Close()

	cached, err := Open(path, prof)
	require.NoError(t, err)
	defer cached.Close()
	cached.CacheTimeMajor(1 << 20)

	for lat := 0; lat < 2; lat++ {
		want, err := streamed.ReadBand(context.Background(), lat, lat+1)
		require.NoError(t, err)
		got, err := cached.ReadBand(context.Background(), lat, lat+1)
		require.NoError(t, err)

		for i := range want.Vars {
			assert.Equal(t, fmt.Sprint(want.Vars[i].Data), fmt.Sprint(got.Vars[i].Data), "row %d %s", lat, want.Vars[i].Name)
			assert.Equal(t, want.Counts[i].Data, got.Counts[i].Data, "row %d %s", lat, want.Counts[i].Name)
		}
	}
	for _, v := range cached.vars {
		assert.Len(t, v.whole, 3*2*2, v.name)
	}
	assert.Nil(t, streamed.vars[0].whole)

	first, err := cached.ReadBand(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(first.Vars[2].At(0, 0, 0)), "fill value becomes NaN")
	assert.Equal(t, 12.0, first.Vars[2].At(2, 0, 1))
}

func TestCacheTimeMajor_Budget(t *testing.T) {
	ds, err := Open(writeWeeklyFixture(t), loadProfile(t, "ccmp-weekly"))
	require.NoError(t, err)
	defer ds.Close()

	assert.False(t, ds.cachesTimeMajor())
	// six variables of 3x2x2 float64 values
	ds.CacheTimeMajor(6 * 12 * 8)
	assert.True(t, ds.cachesTimeMajor())
	ds.CacheTimeMajor(6*12*8 - 1)
	assert.False(t, ds.cachesTimeMajor())
}

func TestReadBand_Cancelled(t *testing.T) {
	ds, err := Open(writeWeeklyFixture(t), loadProfile(t, "ccmp-weekly"))
	require.NoError(t, err)
	defer ds.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ds.ReadBand(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadBand_OutOfRange(t *testing.T) {
	ds, err := Open(writeRawFixture(t), loadProfile(t, "ccmp-raw"))
	require.NoError(t, err)
	defer ds.Close()

	_, err = ds.ReadBand(context.Background(), 2, 4)
	assert.Error(t, err)
	_, err = ds.ReadBand(context.Background(), 1, 1)
	assert.Error(t, err)
}

func TestOpen_MissingVariable(t *testing.T) {
	// the weekly profile expects *_nobs companions the raw file lacks
	_, err := Open(writeRawFixture(t), loadProfile(t, "ccmp-weekly"))
	var missing *domain.MissingVariableError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "uwnd_nobs", missing.Name)
}

func TestLayoutOf(t *testing.T) {
	ds := &Dataset{dims: profile.Dimensions{Latitude: "lat", Longitude: "lon", Time: "time"}}

	l, err := ds.layoutOf("u", []string{"lat", "lon", "time"})
	require.NoError(t, err)
	assert.Equal(t, domain.LayoutLatLonTime, l)

	l, err = ds.layoutOf("u", []string{"time", "lat", "lon"})
	require.NoError(t, err)
	assert.Equal(t, domain.LayoutTimeLatLon, l)

	_, err = ds.layoutOf("u", []string{"lon", "lat", "time"})
	assert.ErrorContains(t, err, "unsupported dimensions")
	_, err = ds.layoutOf("u", []string{"lat", "lon"})
	assert.Error(t, err)
}
