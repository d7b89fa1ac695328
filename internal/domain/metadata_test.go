package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() {
		SetClock(nil)
	})
}

func ccmpVariables() []VariableInfo {
	return []VariableInfo{
		{Name: "uwnd", Attrs: Attributes{"units": "m s-1", "long_name": "u-wind vector component at 10 meters"}},
		{Name: "nobs", Attrs: Attributes{"long_name": "number of observations used to derive wind vector components"}, Defaults: map[string]string{"units": "null"}},
	}
}

func TestBuildMetadata(t *testing.T) {
	freezeClock(t, time.Date(2026, time.October, 19, 13, 5, 9, 500, time.UTC))

	times := sixHourly(4)
	meta, err := BuildMetadata(MetadataInput{
		ID:         "ccmp",
		DataType:   "ccmp-wind",
		Attributes: []string{"units", "long_name"},
		Variables:  ccmpVariables(),
		Times:      times,
		Source:     []SourceDoc{{Source: []string{"CCMP Wind Vector Analysis Product"}, URL: "https://data.remss.com/ccmp/"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "ccmp", meta.ID)
	assert.Equal(t, "ccmp-wind", meta.DataType)
	assert.Equal(t, []string{"uwnd", "nobs"}, meta.DataInfo.Variables)
	assert.Equal(t, []string{"units", "long_name"}, meta.DataInfo.Attributes)
	assert.Equal(t, []string{"null", "number of observations used to derive wind vector components"}, meta.DataInfo.Values[1])
	assert.Equal(t, "2026-10-19T13:05:09Z", FormatTimestamp(meta.DateUpdated))
	assert.Len(t, meta.Timeseries, 4)
}

func TestBuildMetadata_PresentAttributeBeatsDefault(t *testing.T) {
	vars := ccmpVariables()
	vars[1].Attrs["units"] = "count"

	meta, err := BuildMetadata(MetadataInput{Attributes: []string{"units"}, Variables: vars})
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, meta.DataInfo.Values[1])
}

func TestBuildMetadata_MissingAttribute(t *testing.T) {
	_, err := BuildMetadata(MetadataInput{
		Attributes: []string{"units"},
		Variables:  []VariableInfo{{Name: "ws", Attrs: Attributes{}}},
	})
	var missing *MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "ws.units", missing.Name)
}

func TestBuildMetadata_MalformedAttribute(t *testing.T) {
	_, err := BuildMetadata(MetadataInput{
		Attributes: []string{"units"},
		Variables:  []VariableInfo{{Name: "ws", Attrs: Attributes{"units": []float32{1}}, Defaults: map[string]string{"units": "null"}}},
	})
	var malformed *MalformedAttributeError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "ws", malformed.Variable)
	assert.Equal(t, "units", malformed.Attribute)
}

func TestAttributeString(t *testing.T) {
	attrs := Attributes{"units": "m s-1", "valid_max": 50.0}

	s, err := AttributeString(attrs, "ws", "units")
	require.NoError(t, err)
	assert.Equal(t, "m s-1", s)

	_, err = AttributeString(attrs, "ws", "valid_max")
	assert.ErrorContains(t, err, "ws.valid_max is not a string")

	_, err = AttributeString(attrs, "ws", "long_name")
	assert.ErrorContains(t, err, `"ws.long_name"`)
}
