package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeUnits parses a CF time units string such as
// "hours since 1987-01-01 00:00:00" into a step and a UTC epoch.
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: want \"<unit> since <epoch>\"", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "s":
		step = time.Second
	case "minutes", "minute", "mins":
		step = time.Minute
	case "hours", "hour", "hrs", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}

	since = strings.TrimSpace(since)
	for _, layout := range epochLayouts {
		if epoch, err := time.ParseInLocation(layout, since, time.UTC); err == nil {
			return step, epoch, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unparseable epoch %q", units, since)
}

// DecodeTimes converts raw time-axis offsets into UTC instants.
func DecodeTimes(offsets []float64, units string) ([]time.Time, error) {
	step, epoch, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(offsets))
	for i, v := range offsets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("time offset %d is not finite", i)
		}
		out[i] = epoch.Add(time.Duration(math.Round(v * float64(step))))
	}
	return out, nil
}
