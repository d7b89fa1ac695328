// Command proofread cross-checks a weekly-means file against the daily raw
// files of the window it was built from. It samples random grid points,
// recomputes the window mean of one variable from days whose four samples are
// all present, and compares it with the stored mean and <var>_nobs.
//
// Usage:
//
//	go run ./cmd/proofread \
//	  -means data/fixture/ccmp_weekly.nc -time-index 0 -var vwnd \
//	  data/fixture/ccmp_raw_1993010{3,4,5,6,7,8,9}.nc
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/grid-basin-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/profile"
)

const (
	windowRadius = 3
	tolerance    = 1e-5
	dateLayout   = "20060102"
)

// phase tracks pass/fail for a proofreading phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// rowSource is the slice of a dataset proofread needs.
type rowSource interface {
	Latitudes() []float64
	Longitudes() []float64
	Times() []time.Time
	ReadBand(ctx context.Context, latBegin, latEnd int) (*domain.Band, error)
}

// rowCache keeps each latitude row read from a source so repeated samples on
// one row cost a single read.
type rowCache struct {
	src  rowSource
	rows map[int]*domain.Band
}

func newRowCache(src rowSource) *rowCache {
	return &rowCache{src: src, rows: make(map[int]*domain.Band)}
}

func (c *rowCache) row(ctx context.Context, lat int) (*domain.Band, error) {
	if b, ok := c.rows[lat]; ok {
		return b, nil
	}
	b, err := c.src.ReadBand(ctx, lat, lat+1)
	if err != nil {
		return nil, err
	}
	c.rows[lat] = b
	return b, nil
}

type options struct {
	means     string
	timeIndex int
	variable  string
	samples   int
	seed      uint64
	daily     []string
}

func main() {
	var o options
	flag.StringVar(&o.means, "means", "", "weekly-means NetCDF file")
	flag.IntVar(&o.timeIndex, "time-index", 0, "timestep of the means file to check")
	flag.StringVar(&o.variable, "var", "vwnd", "variable to recompute")
	flag.IntVar(&o.samples, "samples", 100, "grid points to sample")
	flag.Uint64Var(&o.seed, "seed", 1, "random seed")
	flag.Parse()
	o.daily = flag.Args()

	if o.means == "" || len(o.daily) == 0 || o.samples <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(context.Background(), o); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, o options) int {
	fmt.Println("=== Weekly Means Proofread ===")
	fmt.Println()

	weeklyProf, err := profile.Load("ccmp-weekly")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	rawProf, err := profile.Load("ccmp-raw")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	varIdx := slices.Index(weeklyProf.VariableNames(), o.variable)
	rawIdx := slices.Index(rawProf.VariableNames(), o.variable)
	if varIdx < 0 || rawIdx < 0 {
		fmt.Fprintf(os.Stderr, "FATAL: variable %s is not tracked by both ccmp profiles\n", o.variable)
		return 1
	}

	means, err := netcdf.Open(o.means, weeklyProf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	defer means.Close()
	if o.timeIndex < 0 || o.timeIndex >= len(means.Times()) {
		fmt.Fprintf(os.Stderr, "FATAL: time index %d outside %d timesteps\n", o.timeIndex, len(means.Times()))
		return 1
	}

	days := make([]rowSource, 0, len(o.daily))
	for _, path := range o.daily {
		ds, err := netcdf.Open(path, rawProf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		defer ds.Close()
		days = append(days, ds)
	}

	center := means.Times()[o.timeIndex]
	fmt.Printf("Checking %s at %s against %d daily files\n", o.variable, domain.FormatTimestamp(center), len(days))

	phases := []*phase{
		checkGrid(means, days, o.daily),
		checkWindow(center, days, o.daily),
	}
	if phases[0].passed() {
		samples, skipped := checkSamples(ctx, o, varIdx, rawIdx, weeklyProf.Quality.Sentinel, means, days)
		fmt.Printf("Sampled %d points, %d skipped as missing\n", o.samples, skipped)
		phases = append(phases, samples)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nProofread FAILED.")
	return 1
}

func checkGrid(means rowSource, days []rowSource, names []string) *phase {
	p := &phase{name: "Grid alignment"}
	for i, d := range days {
		if !slices.Equal(d.Latitudes(), means.Latitudes()) {
			p.errorf("%s: latitudes differ from the means file", names[i])
		}
		if !slices.Equal(d.Longitudes(), means.Longitudes()) {
			p.errorf("%s: longitudes differ from the means file", names[i])
		}
	}
	return p
}

// checkWindow requires one daily file per day within windowRadius days of
// center.
func checkWindow(center time.Time, days []rowSource, names []string) *phase {
	p := &phase{name: "Window coverage"}
	want := windowDates(center, windowRadius)
	seen := make(map[string]string, len(days))
	for i, d := range days {
		times := d.Times()
		if len(times) == 0 {
			p.errorf("%s: no timesteps", names[i])
			continue
		}
		date := times[0].UTC().Format(dateLayout)
		if !slices.Contains(want, date) {
			p.errorf("%s: day %s is outside the window %s..%s", names[i], date, want[0], want[len(want)-1])
			continue
		}
		if prev, ok := seen[date]; ok {
			p.errorf("%s: day %s already covered by %s", names[i], date, prev)
			continue
		}
		seen[date] = names[i]
	}
	for _, date := range want {
		if _, ok := seen[date]; !ok {
			p.errorf("no daily file for %s", date)
		}
	}
	return p
}

func windowDates(center time.Time, radius int) []string {
	dates := make([]string, 0, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		dates = append(dates, center.UTC().AddDate(0, 0, i).Format(dateLayout))
	}
	return dates
}

// checkSamples compares random grid points of the means file against the
// window recomputed from the daily files. It returns the phase and the number
// of points skipped because the stored mean is missing.
func checkSamples(ctx context.Context, o options, varIdx, rawIdx int, sentinel float64, means rowSource, days []rowSource) (*phase, int) {
	p := &phase{name: fmt.Sprintf("Sample means (%s)", o.variable)}
	rng := rand.New(rand.NewPCG(o.seed, o.seed))
	nLat, nLon := len(means.Latitudes()), len(means.Longitudes())

	meanRows := newRowCache(means)
	dayRows := make([]*rowCache, len(days))
	for i, d := range days {
		dayRows[i] = newRowCache(d)
	}

	skipped := 0
	for range o.samples {
		lat, lon := rng.IntN(nLat), rng.IntN(nLon)

		mb, err := meanRows.row(ctx, lat)
		if err != nil {
			p.errorf("read means row %d: %v", lat, err)
			return p, skipped
		}
		stored := mb.Vars[varIdx].At(o.timeIndex, 0, lon)
		storedN := mb.Counts[varIdx].At(o.timeIndex, 0, lon)
		if float32(stored) == float32(sentinel) {
			skipped++
			continue
		}

		samples := make([][]float64, len(days))
		for i, c := range dayRows {
			b, err := c.row(ctx, lat)
			if err != nil {
				p.errorf("read daily row %d: %v", lat, err)
				return p, skipped
			}
			f := b.Vars[rawIdx]
			samples[i] = make([]float64, f.NTime)
			for t := range samples[i] {
				samples[i][t] = f.At(t, 0, lon)
			}
		}

		mean, n := windowMean(samples)
		msg, skip := comparePoint(mean, n, stored, storedN)
		if skip {
			skipped++
		}
		if msg != "" {
			p.errorf("(%d, %d): %s", lat, lon, msg)
		}
	}
	return p, skipped
}

// comparePoint checks one recomputed window mean over n samples against the
// stored mean and count. A stored NaN (the sentinel masked as fill value) is
// a skip when no day was complete and a mismatch otherwise. It returns a
// mismatch description, empty when the point agrees.
func comparePoint(mean float64, n int, stored, storedN float64) (msg string, skip bool) {
	switch {
	case math.IsNaN(stored) && n == 0:
		return "", true
	case math.IsNaN(stored):
		return fmt.Sprintf("stored mean is missing, recomputed %g over %d samples", mean, n), false
	case n == 0:
		return fmt.Sprintf("no complete days but stored mean %g", stored), false
	case math.IsNaN(storedN):
		return fmt.Sprintf("stored count is missing, recomputed %d samples", n), false
	case math.Abs(mean-stored) > tolerance || math.Abs(float64(n)-storedN) > tolerance:
		return fmt.Sprintf("recomputed mean %g over %d samples, stored %g over %g", mean, n, stored, storedN), false
	}
	return "", false
}

// windowMean averages the samples of every day whose values are all finite.
func windowMean(days [][]float64) (mean float64, n int) {
	var total float64
	for _, day := range days {
		if slices.ContainsFunc(day, math.IsNaN) {
			continue
		}
		for _, v := range day {
			total += v
		}
		n += len(day)
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return total / float64(n), n
}
