package domain

// Series holds one location's aligned samples: Values[i] belongs to the i-th
// tracked variable and Steps lists the source timestep of each position.
type Series struct {
	Values [][]float64
	Steps  []int
}

// ExtractSeries walks the time axis once for the grid point at band row row
// and longitude index lon, applying policy to every timestep. A non-empty
// DropReason means the location must not be emitted.
func ExtractSeries(b *Band, policy MissingValuePolicy, row, lon int) (Series, DropReason) {
	nVars := len(b.Vars)
	s := Series{
		Values: make([][]float64, nVars),
		Steps:  make([]int, 0, b.NTime),
	}
	for i := range s.Values {
		s.Values[i] = make([]float64, 0, b.NTime)
	}

	sample := make([]float64, nVars)
	for t := 0; t < b.NTime; t++ {
		if !policy.Sample(b, t, row, lon, sample) {
			continue
		}
		for i, v := range sample {
			s.Values[i] = append(s.Values[i], v)
		}
		s.Steps = append(s.Steps, t)
	}

	if reason := policy.Retain(s.Values); reason != DropNone {
		return Series{}, reason
	}
	return s, DropNone
}
