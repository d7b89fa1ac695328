package domain

import "strconv"

// NormalizeLongitude maps a longitude on [0, 360) to (-180, 180].
// Values at or below 180 are returned unchanged.
func NormalizeLongitude(lon float64) float64 {
	if lon <= 180.0 {
		return lon
	}
	return lon - 360.0
}

// FormatCoord renders a coordinate in its shortest round-trip decimal form
// without exponent, e.g. -78.375 or 0.125.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LocationID builds the composite identity of a grid point. lon must already
// be normalized.
func LocationID(lon, lat float64) string {
	return FormatCoord(lon) + "_" + FormatCoord(lat)
}
