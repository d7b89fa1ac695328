package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

// flatten widens a scalar or nested slice of any numeric NetCDF type to
// float64 in row-major order and reports its shape.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil, fmt.Errorf("no values")
	}

	var shape []int
	for t := rv; t.Kind() == reflect.Slice; t = t.Index(0) {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
	}
	n := 1
	for _, s := range shape {
		n *= s
	}

	out := make([]float64, 0, n)
	if err := appendValues(&out, rv); err != nil {
		return nil, nil, err
	}
	if len(out) != n {
		return nil, nil, fmt.Errorf("ragged values: %d elements for shape %v", len(out), shape)
	}
	return out, shape, nil
}

func appendValues(out *[]float64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice:
		switch s := rv.Interface().(type) {
		case []float32:
			for _, x := range s {
				*out = append(*out, float64(x))
			}
			return nil
		case []float64:
			*out = append(*out, s...)
			return nil
		case []int16:
			for _, x := range s {
				*out = append(*out, float64(x))
			}
			return nil
		case []int32:
			for _, x := range s {
				*out = append(*out, float64(x))
			}
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := appendValues(out, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
	default:
		return fmt.Errorf("unsupported element type %s", rv.Type())
	}
	return nil
}

// coordinates reads a 1-D coordinate variable. float32 values are widened
// through their shortest decimal form so -78.375f and 0.1f come back as the
// decimals the file intended.
func coordinates(v any) ([]float64, error) {
	if f32, ok := v.([]float32); ok {
		out := make([]float64, len(f32))
		for i, x := range f32 {
			out[i] = widen32(x)
		}
		return out, nil
	}
	out, shape, err := flatten(v)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("coordinate has %d dimensions", len(shape))
	}
	return out, nil
}

func widen32(x float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(x), 'g', -1, 32), 64)
	if err != nil {
		return float64(x)
	}
	return f
}

func toAttributes(m api.AttributeMap) domain.Attributes {
	attrs := domain.Attributes{}
	if m == nil {
		return attrs
	}
	for _, k := range m.Keys() {
		if v, ok := m.Get(k); ok {
			attrs[k] = v
		}
	}
	return attrs
}

// numericAttr returns the first element of a numeric attribute.
func numericAttr(attrs domain.Attributes, name string) (float64, bool) {
	v, ok := attrs[name]
	if !ok {
		return 0, false
	}
	if _, isString := v.(string); isString {
		return 0, false
	}
	vals, _, err := flatten(v)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// unpacking converts stored values to physical ones: fill markers become
// NaN, then scale_factor and add_offset apply.
type unpacking struct {
	fills  []float64
	scale  float64
	offset float64
}

func newUnpacking(attrs domain.Attributes) unpacking {
	u := unpacking{scale: 1}
	for _, name := range []string{"_FillValue", "missing_value"} {
		if v, ok := numericAttr(attrs, name); ok {
			u.fills = append(u.fills, v)
		}
	}
	if v, ok := numericAttr(attrs, "scale_factor"); ok {
		u.scale = v
	}
	if v, ok := numericAttr(attrs, "add_offset"); ok {
		u.offset = v
	}
	return u
}

func (u unpacking) identity() bool {
	return len(u.fills) == 0 && u.scale == 1 && u.offset == 0
}

func (u unpacking) apply(data []float64) {
	if u.identity() {
		return
	}
	for i, v := range data {
		if u.isFill(v) {
			data[i] = math.NaN()
			continue
		}
		data[i] = v*u.scale + u.offset
	}
}

func (u unpacking) isFill(v float64) bool {
	for _, f := range u.fills {
		if v == f {
			return true
		}
	}
	return false
}
