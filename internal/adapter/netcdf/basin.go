package netcdf

import (
	"fmt"
	"math"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

// LoadBasinGrid reads the 2-D [lat][lon] classification variable of path
// into memory. Non-finite cells are stored as 0.
func LoadBasinGrid(path, variable string, lonOrigin, latOrigin float64) (*domain.BasinGrid, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open basin file %s: %w", path, err)
	}
	defer nc.Close()

	if !slices.Contains(nc.ListVariables(), variable) {
		return nil, &domain.MissingVariableError{Name: variable}
	}
	v, err := nc.GetVariable(variable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", variable, err)
	}
	vals, shape, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("basin variable %s: %w", variable, err)
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("basin variable %s: want 2 dimensions, got %d", variable, len(shape))
	}

	cells := make([]int64, len(vals))
	for i, x := range vals {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		cells[i] = int64(math.Round(x))
	}
	return domain.NewBasinGrid(lonOrigin, latOrigin, shape[0], shape[1], cells)
}
