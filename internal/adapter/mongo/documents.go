package mongo

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

type geoDoc struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type recordDoc struct {
	ID          string      `bson:"_id"`
	Metadata    []string    `bson:"metadata"`
	Basin       int64       `bson:"basin"`
	Geolocation geoDoc      `bson:"geolocation"`
	Data        [][]float64 `bson:"data"`
	Timeseries  []time.Time `bson:"timeseries,omitempty"`
}

type sourceDoc struct {
	Source []string `bson:"source"`
	URL    string   `bson:"url"`
}

type metadataDoc struct {
	ID          string      `bson:"_id"`
	DataType    string      `bson:"data_type"`
	DataInfo    bson.A      `bson:"data_info"`
	DateUpdated time.Time   `bson:"date_updated"`
	Timeseries  []time.Time `bson:"timeseries"`
	Source      []sourceDoc `bson:"source"`
}

// toRecordDoc stores missing samples as BSON double NaN; ±Inf is missing too.
func toRecordDoc(r domain.LocationRecord) recordDoc {
	data := make([][]float64, len(r.Data))
	for i, s := range r.Data {
		data[i] = make([]float64, len(s))
		for j, v := range s {
			if math.IsInf(v, 0) {
				v = math.NaN()
			}
			data[i][j] = v
		}
	}
	return recordDoc{
		ID:       r.ID,
		Metadata: r.Metadata,
		Basin:    r.Basin,
		Geolocation: geoDoc{
			Type:        r.Geolocation.Type,
			Coordinates: r.Geolocation.Coordinates[:],
		},
		Data:       data,
		Timeseries: []time.Time(r.Timeseries),
	}
}

func toMetadataDoc(m domain.DatasetMetadata) metadataDoc {
	values := make(bson.A, len(m.DataInfo.Values))
	for i, row := range m.DataInfo.Values {
		values[i] = row
	}
	sources := make([]sourceDoc, len(m.Source))
	for i, s := range m.Source {
		sources[i] = sourceDoc{Source: s.Source, URL: s.URL}
	}
	return metadataDoc{
		ID:          m.ID,
		DataType:    m.DataType,
		DataInfo:    bson.A{m.DataInfo.Variables, m.DataInfo.Attributes, values},
		DateUpdated: m.DateUpdated,
		Timeseries:  []time.Time(m.Timeseries),
		Source:      sources,
	}
}
