package domain

import "fmt"

// Layout is the axis order of a variable in the source file.
type Layout int

const (
	// LayoutLatLonTime stores values as [latitude][longitude][time] (raw CCMP).
	LayoutLatLonTime Layout = iota
	// LayoutTimeLatLon stores values as [time][latitude][longitude] (weekly means).
	LayoutTimeLatLon
)

func (l Layout) String() string {
	switch l {
	case LayoutLatLonTime:
		return "lat,lon,time"
	case LayoutTimeLatLon:
		return "time,lat,lon"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Field is one variable's values over a band of latitude rows, all
// longitudes and all timesteps, flattened in the variable's native layout.
// Fields are read-only once built.
type Field struct {
	Name   string
	Layout Layout
	NTime  int
	NRows  int
	NLon   int
	Data   []float64
}

// NewField validates that data matches the declared shape.
func NewField(name string, layout Layout, nTime, nRows, nLon int, data []float64) (*Field, error) {
	if len(data) != nTime*nRows*nLon {
		return nil, fmt.Errorf("field %s: %d values for shape time=%d rows=%d lon=%d", name, len(data), nTime, nRows, nLon)
	}
	return &Field{Name: name, Layout: layout, NTime: nTime, NRows: nRows, NLon: nLon, Data: data}, nil
}

// At returns the value at timestep t, band row r and longitude index lon.
func (f *Field) At(t, r, lon int) float64 {
	if f.Layout == LayoutTimeLatLon {
		return f.Data[(t*f.NRows+r)*f.NLon+lon]
	}
	return f.Data[(r*f.NLon+lon)*f.NTime+t]
}

// Band is a contiguous run of latitude rows read from the source dataset:
// the tracked variables in output order and, for quality-gated ingests,
// their observation counts aligned 1:1 with Vars.
type Band struct {
	LatBegin int
	Lats     []float64
	Lons     []float64
	NTime    int
	Vars     []*Field
	Counts   []*Field
}

// Rows returns the number of latitude rows in the band.
func (b *Band) Rows() int { return len(b.Lats) }
