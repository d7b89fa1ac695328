package netcdf

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/profile"
)

// Attr is one ordered variable attribute.
type Attr struct {
	Name  string
	Value any
}

// FixtureVariable is a 3-D variable with its values flattened in Layout order.
type FixtureVariable struct {
	Name       string
	Layout     domain.Layout
	Values     []float32
	Attributes []Attr
}

// DatasetFixture describes a small classic-format source file.
type DatasetFixture struct {
	Dimensions profile.Dimensions
	Lats       []float32
	Lons       []float32
	Times      []float64
	TimeUnits  string
	Variables  []FixtureVariable
}

type namedVar struct {
	name string
	v    api.Variable
}

// WriteDataset writes f to path in CDF classic format.
func WriteDataset(path string, f DatasetFixture) error {
	dims := f.Dimensions
	if dims.Latitude == "" {
		dims = profile.Dimensions{Latitude: "latitude", Longitude: "longitude", Time: "time"}
	}
	nLat, nLon, nTime := len(f.Lats), len(f.Lons), len(f.Times)

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	vars := []namedVar{
		{dims.Latitude, api.Variable{Values: f.Lats, Dimensions: []string{dims.Latitude}}},
		{dims.Longitude, api.Variable{Values: f.Lons, Dimensions: []string{dims.Longitude}}},
	}
	timeAttrs, err := orderedAttrs([]Attr{{Name: "units", Value: f.TimeUnits}})
	if err != nil {
		cw.Close()
		return err
	}
	vars = append(vars, namedVar{dims.Time, api.Variable{Values: f.Times, Dimensions: []string{dims.Time}, Attributes: timeAttrs}})

	for _, fv := range f.Variables {
		if len(fv.Values) != nLat*nLon*nTime {
			cw.Close()
			return fmt.Errorf("fixture variable %s: %d values for %dx%dx%d grid", fv.Name, len(fv.Values), nLat, nLon, nTime)
		}
		attrs, err := orderedAttrs(fv.Attributes)
		if err != nil {
			cw.Close()
			return err
		}
		v := api.Variable{Attributes: attrs}
		if fv.Layout == domain.LayoutTimeLatLon {
			v.Values = nest3(fv.Values, nTime, nLat, nLon)
			v.Dimensions = []string{dims.Time, dims.Latitude, dims.Longitude}
		} else {
			v.Values = nest3(fv.Values, nLat, nLon, nTime)
			v.Dimensions = []string{dims.Latitude, dims.Longitude, dims.Time}
		}
		vars = append(vars, namedVar{fv.Name, v})
	}

	for _, nv := range vars {
		if err := cw.AddVar(nv.name, nv.v); err != nil {
			cw.Close()
			return fmt.Errorf("add %s: %w", nv.name, err)
		}
	}
	return cw.Close()
}

// WriteBasinMask writes a [lat][lon] int32 classification variable whose
// cell (i, j) sits at (lonOrigin+j, latOrigin+i).
func WriteBasinMask(path, variable string, lonOrigin, latOrigin float64, cells [][]int32) error {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return fmt.Errorf("basin mask %s: empty grid", variable)
	}
	lats := make([]float32, len(cells))
	for i := range lats {
		lats[i] = float32(latOrigin + float64(i))
	}
	lons := make([]float32, len(cells[0]))
	for j := range lons {
		lons[j] = float32(lonOrigin + float64(j))
	}

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := cw.AddVar("lat", api.Variable{Values: lats, Dimensions: []string{"lat"}}); err != nil {
		cw.Close()
		return err
	}
	if err := cw.AddVar("lon", api.Variable{Values: lons, Dimensions: []string{"lon"}}); err != nil {
		cw.Close()
		return err
	}
	if err := cw.AddVar(variable, api.Variable{Values: cells, Dimensions: []string{"lat", "lon"}}); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

func orderedAttrs(attrs []Attr) (api.AttributeMap, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(attrs))
	vals := make(map[string]any, len(attrs))
	for i, a := range attrs {
		keys[i] = a.Name
		vals[a.Name] = a.Value
	}
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	return m, nil
}

func nest3(flat []float32, a, b, c int) [][][]float32 {
	out := make([][][]float32, a)
	for i := range out {
		out[i] = make([][]float32, b)
		for j := range out[i] {
			off := (i*b + j) * c
			out[i][j] = flat[off : off+c]
		}
	}
	return out
}
