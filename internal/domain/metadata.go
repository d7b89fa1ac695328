package domain

import (
	"errors"
	"time"
)

// VariableInfo carries what metadata assembly needs from one variable.
// Defaults fill attributes the file does not carry; present attributes are
// always read from the file.
type VariableInfo struct {
	Name     string
	Attrs    Attributes
	Defaults map[string]string
}

// MetadataInput is everything needed to describe one ingest.
type MetadataInput struct {
	ID         string
	DataType   string
	Attributes []string
	Variables  []VariableInfo
	Times      []time.Time
	Source     []SourceDoc
}

// BuildMetadata assembles the dataset document. Every requested attribute
// must be a string on every variable unless a default covers its absence.
func BuildMetadata(in MetadataInput) (DatasetMetadata, error) {
	info := DataInfo{
		Variables:  make([]string, 0, len(in.Variables)),
		Attributes: append([]string(nil), in.Attributes...),
		Values:     make([][]string, 0, len(in.Variables)),
	}

	for _, v := range in.Variables {
		row := make([]string, 0, len(in.Attributes))
		for _, name := range in.Attributes {
			s, err := AttributeString(v.Attrs, v.Name, name)
			if err != nil {
				var missing *MissingVariableError
				def, hasDefault := v.Defaults[name]
				if !errors.As(err, &missing) || !hasDefault {
					return DatasetMetadata{}, err
				}
				s = def
			}
			row = append(row, s)
		}
		info.Variables = append(info.Variables, v.Name)
		info.Values = append(info.Values, row)
	}

	return DatasetMetadata{
		ID:          in.ID,
		DataType:    in.DataType,
		DataInfo:    info,
		DateUpdated: clock.Now().UTC().Truncate(time.Second),
		Timeseries:  Timestamps(in.Times),
		Source:      in.Source,
	}, nil
}
