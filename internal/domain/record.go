package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimestampLayout is ISO-8601 in UTC with the literal Z zone.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Geolocation is a GeoJSON point, coordinates ordered [longitude, latitude].
type Geolocation struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewPoint builds a GeoJSON point from a normalized longitude and a latitude.
func NewPoint(lon, lat float64) Geolocation {
	return Geolocation{Type: "Point", Coordinates: [2]float64{lon, lat}}
}

// Samples is one variable's series. Any non-finite value is a missing
// sample: NaN and ±Inf both encode as JSON null and decode back as NaN.
type Samples []float64

func (s Samples) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (s *Samples) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Samples, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*s = out
	return nil
}

// Timestamps is a list of instants serialized with TimestampLayout.
type Timestamps []time.Time

func (ts Timestamps) MarshalJSON() ([]byte, error) {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = FormatTimestamp(t)
	}
	return json.Marshal(out)
}

func (ts *Timestamps) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Timestamps, len(raw))
	for i, s := range raw {
		t, err := time.Parse(TimestampLayout, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		out[i] = t
	}
	*ts = out
	return nil
}

// LocationRecord is the document emitted for one retained grid point.
// Data holds one series per tracked variable, all the same length as
// Timeseries when Timeseries is present.
type LocationRecord struct {
	ID          string      `json:"id"`
	Metadata    []string    `json:"metadata"`
	Basin       int64       `json:"basin"`
	Geolocation Geolocation `json:"geolocation"`
	Data        []Samples   `json:"data"`
	Timeseries  Timestamps  `json:"timeseries,omitempty"`
}

// SourceDoc cites where a dataset came from.
type SourceDoc struct {
	Source []string `json:"source"`
	URL    string   `json:"url"`
}

// DataInfo is the variable x attribute matrix describing a dataset. It
// serializes as the 3-tuple [variables, attributes, values].
type DataInfo struct {
	Variables  []string
	Attributes []string
	Values     [][]string
}

func (d DataInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.Variables, d.Attributes, d.Values})
}

func (d *DataInfo) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("data_info: want 3 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &d.Variables); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &d.Attributes); err != nil {
		return err
	}
	return json.Unmarshal(tuple[2], &d.Values)
}

// DatasetMetadata describes one ingested dataset; records point at it
// through their Metadata keys.
type DatasetMetadata struct {
	ID          string      `json:"id"`
	DataType    string      `json:"data_type"`
	DataInfo    DataInfo    `json:"data_info"`
	DateUpdated time.Time   `json:"-"`
	Timeseries  Timestamps  `json:"timeseries"`
	Source      []SourceDoc `json:"source"`
}

type metadataJSON struct {
	ID          string      `json:"id"`
	DataType    string      `json:"data_type"`
	DataInfo    DataInfo    `json:"data_info"`
	DateUpdated string      `json:"date_updated"`
	Timeseries  Timestamps  `json:"timeseries"`
	Source      []SourceDoc `json:"source"`
}

func (m DatasetMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataJSON{
		ID:          m.ID,
		DataType:    m.DataType,
		DataInfo:    m.DataInfo,
		DateUpdated: FormatTimestamp(m.DateUpdated),
		Timeseries:  m.Timeseries,
		Source:      m.Source,
	})
}

func (m *DatasetMetadata) UnmarshalJSON(data []byte) error {
	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	updated, err := time.Parse(TimestampLayout, raw.DateUpdated)
	if err != nil {
		return fmt.Errorf("parse date_updated: %w", err)
	}
	*m = DatasetMetadata{
		ID:          raw.ID,
		DataType:    raw.DataType,
		DataInfo:    raw.DataInfo,
		DateUpdated: updated,
		Timeseries:  raw.Timeseries,
		Source:      raw.Source,
	}
	return nil
}
