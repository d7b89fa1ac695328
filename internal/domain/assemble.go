package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// BoundsMode controls what happens when a retained point falls outside the
// basin grid.
type BoundsMode int

const (
	// BoundsStrict aborts the run with an *IndexOutOfBoundsError.
	BoundsStrict BoundsMode = iota
	// BoundsLenient skips the point and logs a warning.
	BoundsLenient
)

func (m BoundsMode) String() string {
	if m == BoundsLenient {
		return "lenient"
	}
	return "strict"
}

// ParseBoundsMode accepts "strict" or "lenient".
func ParseBoundsMode(s string) (BoundsMode, error) {
	switch s {
	case "strict":
		return BoundsStrict, nil
	case "lenient":
		return BoundsLenient, nil
	default:
		return BoundsStrict, fmt.Errorf("unknown basin bounds mode %q", s)
	}
}

// RowResult is the outcome of assembling one latitude row: emitted records
// in longitude order and per-reason counts of dropped locations.
type RowResult struct {
	Records []LocationRecord
	Dropped map[DropReason]int
}

// Assembler builds LocationRecords from bands. It holds only read-only state
// and may be shared by concurrent row workers.
type Assembler struct {
	basins       *BasinGrid
	policy       MissingValuePolicy
	metadataKeys []string
	times        []time.Time
	bounds       BoundsMode
	logger       *slog.Logger
}

// NewAssembler wires the classifier, missing-value policy and the dataset
// time axis together. metadataKeys is copied onto every record.
func NewAssembler(basins *BasinGrid, policy MissingValuePolicy, metadataKeys []string, times []time.Time, bounds BoundsMode, logger *slog.Logger) *Assembler {
	return &Assembler{
		basins:       basins,
		policy:       policy,
		metadataKeys: metadataKeys,
		times:        times,
		bounds:       bounds,
		logger:       logger,
	}
}

// AssembleRow produces the records for band row row, scanning longitudes in
// index order. Dropped locations are counted, never emitted.
func (a *Assembler) AssembleRow(b *Band, row int) (RowResult, error) {
	if a.policy.RecordTimes() && len(a.times) != b.NTime {
		return RowResult{}, fmt.Errorf("time axis has %d steps, band has %d", len(a.times), b.NTime)
	}
	res := RowResult{Dropped: make(map[DropReason]int)}
	lat := b.Lats[row]

	for j, rawLon := range b.Lons {
		series, reason := ExtractSeries(b, a.policy, row, j)
		if reason != DropNone {
			res.Dropped[reason]++
			continue
		}

		lon := NormalizeLongitude(rawLon)
		basin, err := a.basins.Classify(lon, lat)
		if err != nil {
			var oob *IndexOutOfBoundsError
			if a.bounds == BoundsLenient && errors.As(err, &oob) {
				a.logger.Warn("point outside basin grid, skipping",
					"lon", lon,
					"lat", lat,
					"lat_index", b.LatBegin+row,
					"lon_index", j,
				)
				res.Dropped[DropOutOfBounds]++
				continue
			}
			return RowResult{}, err
		}

		res.Records = append(res.Records, a.record(lon, lat, basin, series))
	}
	return res, nil
}

func (a *Assembler) record(lon, lat float64, basin int64, s Series) LocationRecord {
	data := make([]Samples, len(s.Values))
	for i, v := range s.Values {
		data[i] = Samples(v)
	}

	rec := LocationRecord{
		ID:          LocationID(lon, lat),
		Metadata:    a.metadataKeys,
		Basin:       basin,
		Geolocation: NewPoint(lon, lat),
		Data:        data,
	}
	if a.policy.RecordTimes() {
		ts := make(Timestamps, len(s.Steps))
		for i, t := range s.Steps {
			ts[i] = a.times[t]
		}
		rec.Timeseries = ts
	}
	return rec
}
