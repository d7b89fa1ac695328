package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_NearestCorner(t *testing.T) {
	g := indexedBasinGrid(t)

	// (0.3, -0.3) is bracketed by (-0.5,-0.5), (-0.5,0.5), (0.5,0.5), (0.5,-0.5);
	// (0.5,-0.5) is closest, i.e. cell lat=77 lon=180.
	basin, err := g.Classify(0.3, -0.3)
	require.NoError(t, err)
	assert.Equal(t, int64(77*1000+180), basin)
}

func TestClassify_CellCenters(t *testing.T) {
	g := indexedBasinGrid(t)

	tests := []struct {
		lon, lat       float64
		latIdx, lonIdx int
	}{
		{-179.5, -77.5, 0, 0},
		{0.5, -0.5, 77, 180},
		{-0.5, 0.5, 78, 179},
		{179.5, 89.5, 167, 359},
		{10.5, 45.5, 123, 190},
	}
	for _, tt := range tests {
		basin, err := g.Classify(tt.lon, tt.lat)
		require.NoError(t, err)
		assert.Equal(t, int64(tt.latIdx*1000+tt.lonIdx), basin, "center (%v, %v)", tt.lon, tt.lat)
	}
}

func TestClassify_TieBreakFirstCornerWins(t *testing.T) {
	g := indexedBasinGrid(t)

	tests := []struct {
		name           string
		lon, lat       float64
		latIdx, lonIdx int
	}{
		// all four corners equidistant: bottom-left wins
		{name: "four-way", lon: 0, lat: 0, latIdx: 77, lonIdx: 179},
		// top-left and top-right equidistant: top-left wins
		{name: "top pair", lon: 0, lat: 0.2, latIdx: 78, lonIdx: 179},
		// bottom-left and top-left equidistant: bottom-left wins
		{name: "left pair", lon: -0.2, lat: 0, latIdx: 77, lonIdx: 179},
		// top-right and bottom-right equidistant: top-right wins
		{name: "right pair", lon: 0.2, lat: 0, latIdx: 78, lonIdx: 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				basin, err := g.Classify(tt.lon, tt.lat)
				require.NoError(t, err)
				assert.Equal(t, int64(tt.latIdx*1000+tt.lonIdx), basin)
			}
		})
	}
}

func TestClassify_OutOfBounds(t *testing.T) {
	g := indexedBasinGrid(t)

	// -78.375 is closer to the -78.5 row, which the grid does not have.
	_, err := g.Classify(0.125, -78.375)
	require.Error(t, err)

	var oob *IndexOutOfBoundsError
	require.True(t, errors.As(err, &oob))
	assert.Equal(t, 0.125, oob.Lon)
	assert.Equal(t, -78.375, oob.Lat)
	assert.Contains(t, err.Error(), "lat=-78.375")
}

func TestClassify_UnselectedCornerOutsideGridIsFine(t *testing.T) {
	g := indexedBasinGrid(t)

	// The -180.5 corner is outside the grid but -179.5 is closer.
	basin, err := g.Classify(-179.875, 10.2)
	require.NoError(t, err)
	assert.Equal(t, int64(88*1000+0), basin)
}

func TestNewBasinGrid_Invalid(t *testing.T) {
	_, err := NewBasinGrid(0, 0, 2, 2, []int64{1, 2, 3})
	require.Error(t, err)

	_, err = NewBasinGrid(0, 0, 0, 2, nil)
	require.Error(t, err)
}
