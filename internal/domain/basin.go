package domain

import (
	"fmt"
	"math"
)

// Origin of the 1° basinmask_01 grid: the center of cell (0, 0).
const (
	DefaultBasinLonOrigin = -179.5
	DefaultBasinLatOrigin = -77.5
)

// BasinGrid is an immutable 1° lookup grid of basin ids addressed as
// [latitude index][longitude index]. It is safe for concurrent reads.
type BasinGrid struct {
	lonOrigin float64
	latOrigin float64
	nLat      int
	nLon      int
	cells     []int64
}

// NewBasinGrid wraps row-major basin ids. lonOrigin and latOrigin are the
// coordinates of the center of cell (0, 0) and must match the classification
// file exactly.
func NewBasinGrid(lonOrigin, latOrigin float64, nLat, nLon int, cells []int64) (*BasinGrid, error) {
	if nLat <= 0 || nLon <= 0 {
		return nil, fmt.Errorf("basin grid: invalid shape %dx%d", nLat, nLon)
	}
	if len(cells) != nLat*nLon {
		return nil, fmt.Errorf("basin grid: %d cells for shape %dx%d", len(cells), nLat, nLon)
	}
	return &BasinGrid{
		lonOrigin: lonOrigin,
		latOrigin: latOrigin,
		nLat:      nLat,
		nLon:      nLon,
		cells:     cells,
	}, nil
}

// Shape returns the number of latitude and longitude cells.
func (g *BasinGrid) Shape() (nLat, nLon int) {
	return g.nLat, g.nLon
}

// At returns the basin id stored at the given cell.
func (g *BasinGrid) At(latIdx, lonIdx int) (int64, bool) {
	if latIdx < 0 || latIdx >= g.nLat || lonIdx < 0 || lonIdx >= g.nLon {
		return 0, false
	}
	return g.cells[latIdx*g.nLon+lonIdx], true
}

// corner is a candidate cell center bracketing a query point.
type corner struct {
	lon float64
	lat float64
}

// Classify returns the basin id of the cell center nearest to (lon, lat).
// lon must be normalized to (-180, 180].
//
// Only the selected corner is dereferenced; if it falls outside the grid an
// *IndexOutOfBoundsError is returned.
func (g *BasinGrid) Classify(lon, lat float64) (int64, error) {
	c := nearestCorner(lon, lat)

	latIdx := int(math.Round(c.lat - g.latOrigin))
	lonIdx := int(math.Round(c.lon - g.lonOrigin))
	basin, ok := g.At(latIdx, lonIdx)
	if !ok {
		return 0, &IndexOutOfBoundsError{Lon: lon, Lat: lat}
	}
	return basin, nil
}

// nearestCorner picks the closest of the four half-degree cell centers
// around (lon, lat). Ties go to the earliest corner in bottom-left,
// top-left, top-right, bottom-right order.
func nearestCorner(lon, lat float64) corner {
	lonMinus := math.Floor(lon-0.5) + 0.5
	lonPlus := math.Ceil(lon-0.5) + 0.5
	latMinus := math.Floor(lat-0.5) + 0.5
	latPlus := math.Ceil(lat-0.5) + 0.5

	corners := [4]corner{
		{lon: lonMinus, lat: latMinus},
		{lon: lonMinus, lat: latPlus},
		{lon: lonPlus, lat: latPlus},
		{lon: lonPlus, lat: latMinus},
	}

	best := corners[0]
	bestDist := distance(lon, lat, best)
	for _, c := range corners[1:] {
		if d := distance(lon, lat, c); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// distance must stay sqrt(dx²+dy²); math.Hypot rounds differently on ties.
func distance(lon, lat float64, c corner) float64 {
	dx := lon - c.lon
	dy := lat - c.lat
	return math.Sqrt(dx*dx + dy*dy)
}
