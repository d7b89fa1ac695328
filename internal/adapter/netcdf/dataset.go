// Package netcdf reads gridded source datasets and basin classification
// grids with a pure-Go NetCDF reader, and writes small fixture files.
package netcdf

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/profile"
)

// Dataset is an open source file. It is opened once per run and read one
// latitude band at a time.
type Dataset struct {
	nc          api.Group
	dims        profile.Dimensions
	lats        []float64
	lons        []float64
	times       []time.Time
	vars        []*variable
	counts      []*variable
	cacheBudget int64
}

type variable struct {
	name   string
	layout domain.Layout
	getter api.VarGetter
	attrs  domain.Attributes
	unpack unpacking
	whole  []float64 // unpacked time-major values for every row, once cached
}

// Open reads the coordinate axes of path and resolves every variable the
// profile tracks.
func Open(path string, p *profile.Profile) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	ds := &Dataset{nc: nc, dims: p.Dimensions}
	if err := ds.load(p); err != nil {
		nc.Close()
		return nil, err
	}
	return ds, nil
}

func (ds *Dataset) load(p *profile.Profile) error {
	var err error
	if ds.lats, err = ds.coordinate(ds.dims.Latitude); err != nil {
		return err
	}
	if ds.lons, err = ds.coordinate(ds.dims.Longitude); err != nil {
		return err
	}
	if ds.times, err = ds.timeAxis(); err != nil {
		return err
	}

	for _, name := range p.VariableNames() {
		v, err := ds.resolve(name)
		if err != nil {
			return err
		}
		ds.vars = append(ds.vars, v)
	}
	for _, name := range p.CountNames() {
		v, err := ds.resolve(name)
		if err != nil {
			return err
		}
		ds.counts = append(ds.counts, v)
	}
	return nil
}

func (ds *Dataset) getter(name string) (api.VarGetter, error) {
	if !slices.Contains(ds.nc.ListVariables(), name) {
		return nil, &domain.MissingVariableError{Name: name}
	}
	vg, err := ds.nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return vg, nil
}

func (ds *Dataset) coordinate(name string) ([]float64, error) {
	vg, err := ds.getter(name)
	if err != nil {
		return nil, err
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	vals, err := coordinates(raw)
	if err != nil {
		return nil, fmt.Errorf("coordinate %s: %w", name, err)
	}
	return vals, nil
}

func (ds *Dataset) timeAxis() ([]time.Time, error) {
	name := ds.dims.Time
	vg, err := ds.getter(name)
	if err != nil {
		return nil, err
	}
	units, err := domain.AttributeString(toAttributes(vg.Attributes()), name, "units")
	if err != nil {
		return nil, err
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	offsets, _, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("time axis %s: %w", name, err)
	}
	return domain.DecodeTimes(offsets, units)
}

func (ds *Dataset) resolve(name string) (*variable, error) {
	vg, err := ds.getter(name)
	if err != nil {
		return nil, err
	}
	layout, err := ds.layoutOf(name, vg.Dimensions())
	if err != nil {
		return nil, err
	}
	attrs := toAttributes(vg.Attributes())
	return &variable{
		name:   name,
		layout: layout,
		getter: vg,
		attrs:  attrs,
		unpack: newUnpacking(attrs),
	}, nil
}

func (ds *Dataset) layoutOf(name string, dims []string) (domain.Layout, error) {
	lat, lon, tm := ds.dims.Latitude, ds.dims.Longitude, ds.dims.Time
	switch {
	case slices.Equal(dims, []string{lat, lon, tm}):
		return domain.LayoutLatLonTime, nil
	case slices.Equal(dims, []string{tm, lat, lon}):
		return domain.LayoutTimeLatLon, nil
	default:
		return 0, fmt.Errorf("variable %s: unsupported dimensions %v", name, dims)
	}
}

// Shape returns the grid size as latitudes, longitudes and timesteps.
func (ds *Dataset) Shape() (nLat, nLon, nTime int) {
	return len(ds.lats), len(ds.lons), len(ds.times)
}

func (ds *Dataset) Latitudes() []float64  { return ds.lats }
func (ds *Dataset) Longitudes() []float64 { return ds.lons }
func (ds *Dataset) Times() []time.Time    { return ds.times }

// Attributes returns the attributes of any variable in the file.
func (ds *Dataset) Attributes(name string) (domain.Attributes, error) {
	for _, v := range append(slices.Clone(ds.vars), ds.counts...) {
		if v.name == name {
			return v.attrs, nil
		}
	}
	vg, err := ds.getter(name)
	if err != nil {
		return nil, err
	}
	return toAttributes(vg.Attributes()), nil
}

// CacheTimeMajor lets ReadBand keep time-major variables whole in memory when
// all of them together fit in budget bytes. The reader can only slice the
// time axis of such variables, so without the cache every band re-reads each
// timestep's full grid. A budget of 0 disables the cache.
func (ds *Dataset) CacheTimeMajor(budget int64) {
	ds.cacheBudget = budget
}

func (ds *Dataset) cachesTimeMajor() bool {
	if ds.cacheBudget <= 0 {
		return false
	}
	var n int64
	for _, v := range slices.Concat(ds.vars, ds.counts) {
		if v.layout == domain.LayoutTimeLatLon {
			n++
		}
	}
	size := n * int64(len(ds.times)) * int64(len(ds.lats)) * int64(len(ds.lons)) * 8
	return size <= ds.cacheBudget
}

// ReadBand reads latitude rows [latBegin, latEnd) of every tracked variable.
func (ds *Dataset) ReadBand(ctx context.Context, latBegin, latEnd int) (*domain.Band, error) {
	if latBegin < 0 || latEnd > len(ds.lats) || latBegin >= latEnd {
		return nil, fmt.Errorf("band [%d, %d) outside %d latitudes", latBegin, latEnd, len(ds.lats))
	}
	b := &domain.Band{
		LatBegin: latBegin,
		Lats:     ds.lats[latBegin:latEnd],
		Lons:     ds.lons,
		NTime:    len(ds.times),
	}
	for _, v := range ds.vars {
		f, err := ds.readField(ctx, v, latBegin, latEnd)
		if err != nil {
			return nil, err
		}
		b.Vars = append(b.Vars, f)
	}
	for _, v := range ds.counts {
		f, err := ds.readField(ctx, v, latBegin, latEnd)
		if err != nil {
			return nil, err
		}
		b.Counts = append(b.Counts, f)
	}
	return b, nil
}

func (ds *Dataset) readField(ctx context.Context, v *variable, latBegin, latEnd int) (*domain.Field, error) {
	rows := latEnd - latBegin
	nLon, nTime := len(ds.lons), len(ds.times)

	var data []float64
	switch v.layout {
	case domain.LayoutLatLonTime:
		raw, err := v.getter.GetSlice(int64(latBegin), int64(latEnd))
		if err != nil {
			return nil, fmt.Errorf("read %s rows [%d, %d): %w", v.name, latBegin, latEnd, err)
		}
		if data, _, err = flatten(raw); err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.name, err)
		}
	case domain.LayoutTimeLatLon:
		if ds.cachesTimeMajor() {
			if v.whole == nil {
				whole, err := ds.readSteps(ctx, v, 0, len(ds.lats))
				if err != nil {
					return nil, err
				}
				v.unpack.apply(whole)
				v.whole = whole
			}
			return domain.NewField(v.name, v.layout, nTime, rows, nLon, ds.cachedRows(v, latBegin, latEnd))
		}
		var err error
		if data, err = ds.readSteps(ctx, v, latBegin, latEnd); err != nil {
			return nil, err
		}
	}

	v.unpack.apply(data)
	return domain.NewField(v.name, v.layout, nTime, rows, nLon, data)
}

// readSteps reads rows [latBegin, latEnd) of a time-major variable one
// timestep at a time.
func (ds *Dataset) readSteps(ctx context.Context, v *variable, latBegin, latEnd int) ([]float64, error) {
	nLon, nTime := len(ds.lons), len(ds.times)
	data := make([]float64, 0, nTime*(latEnd-latBegin)*nLon)
	for t := 0; t < nTime; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := v.getter.GetSlice(int64(t), int64(t+1))
		if err != nil {
			return nil, fmt.Errorf("read %s step %d: %w", v.name, t, err)
		}
		slab := reflect.ValueOf(raw)
		if slab.Kind() != reflect.Slice || slab.Len() != 1 {
			return nil, fmt.Errorf("variable %s: unexpected slice at step %d", v.name, t)
		}
		grid := slab.Index(0)
		if grid.Kind() != reflect.Slice || grid.Len() < latEnd {
			return nil, fmt.Errorf("variable %s: step %d has fewer than %d rows", v.name, t, latEnd)
		}
		part, _, err := flatten(grid.Slice(latBegin, latEnd).Interface())
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.name, err)
		}
		data = append(data, part...)
	}
	return data, nil
}

func (ds *Dataset) cachedRows(v *variable, latBegin, latEnd int) []float64 {
	nLat, nLon := len(ds.lats), len(ds.lons)
	out := make([]float64, 0, len(ds.times)*(latEnd-latBegin)*nLon)
	for t := range ds.times {
		out = append(out, v.whole[(t*nLat+latBegin)*nLon:(t*nLat+latEnd)*nLon]...)
	}
	return out
}

// Close releases the file.
func (ds *Dataset) Close() error {
	ds.nc.Close()
	return nil
}
