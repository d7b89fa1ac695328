// Command genfixture writes small synthetic daily raw wind files, the weekly
// means derived from them and a global basin mask, for local runs of etl,
// proofread and dump.
//
// Usage:
//
//	go run ./cmd/genfixture -out data/fixture -nlat 8 -nlon 16 -weeks 1
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/grid-basin-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

const (
	timeUnits    = "hours since 1987-01-01 00:00:00"
	firstHour    = 52656 // 1993-01-03T00:00:00Z
	stepsPerDay  = 4
	stepsPerWeek = domain.CCMPWeeklyFullCount
	gridStep     = 0.25
)

var epoch = time.Date(1987, time.January, 1, 0, 0, 0, 0, time.UTC)

var windVars = []string{"uwnd", "vwnd", "ws"}

type params struct {
	nLat, nLon, weeks int
	lat0, lon0        float64
	seed              uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/fixture", "output directory")
	p := params{}
	flag.IntVar(&p.nLat, "nlat", 8, "latitude rows")
	flag.IntVar(&p.nLon, "nlon", 16, "longitude columns")
	flag.IntVar(&p.weeks, "weeks", 1, "weeks of six-hourly steps")
	flag.Float64Var(&p.lat0, "lat0", -10.125, "first latitude")
	flag.Float64Var(&p.lon0, "lon0", 0.125, "first longitude (0-360)")
	flag.Uint64Var(&p.seed, "seed", 1, "random seed")
	flag.Parse()

	if p.nLat <= 0 || p.nLon <= 0 || p.weeks <= 0 {
		flag.Usage()
		return fmt.Errorf("nlat, nlon and weeks must be positive")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	raw := rawFixture(p)
	for d := 0; d < len(raw.Times)/stepsPerDay; d++ {
		day := dayFixture(raw, d)
		date := epoch.Add(time.Duration(day.Times[0]) * time.Hour)
		path := filepath.Join(*out, "ccmp_raw_"+date.Format("20060102")+".nc")
		if err := netcdf.WriteDataset(path, day); err != nil {
			return fmt.Errorf("writing raw dataset: %w", err)
		}
		log.Printf("wrote raw dataset: %s (%d x %d x %d)", path, p.nLat, p.nLon, stepsPerDay)
	}

	weeklyPath := filepath.Join(*out, "ccmp_weekly.nc")
	if err := netcdf.WriteDataset(weeklyPath, weeklyFixture(raw, p)); err != nil {
		return fmt.Errorf("writing weekly dataset: %w", err)
	}
	log.Printf("wrote weekly dataset: %s", weeklyPath)

	basinPath := filepath.Join(*out, "basinmask_01.nc")
	if err := netcdf.WriteBasinMask(basinPath, "BASIN_TAG", domain.DefaultBasinLonOrigin, domain.DefaultBasinLatOrigin, basinCells()); err != nil {
		return fmt.Errorf("writing basin mask: %w", err)
	}
	log.Printf("wrote basin mask: %s", basinPath)
	return nil
}

// rawFixture draws six-hourly winds. The first column is land (NaN at every
// step) and roughly one step in twenty is missing at each ocean point.
func rawFixture(p params) netcdf.DatasetFixture {
	rng := rand.New(rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15))
	nTime := p.weeks * stepsPerWeek

	f := netcdf.DatasetFixture{
		Lats:      make([]float32, p.nLat),
		Lons:      make([]float32, p.nLon),
		Times:     make([]float64, nTime),
		TimeUnits: timeUnits,
	}
	for i := range f.Lats {
		f.Lats[i] = float32(p.lat0 + gridStep*float64(i))
	}
	for j := range f.Lons {
		f.Lons[j] = float32(p.lon0 + gridStep*float64(j))
	}
	for t := range f.Times {
		f.Times[t] = float64(firstHour + 6*t)
	}

	n := p.nLat * p.nLon * nTime
	u, v, ws, nobs := make([]float32, n), make([]float32, n), make([]float32, n), make([]float32, n)
	nan := float32(math.NaN())
	for r := 0; r < p.nLat; r++ {
		for l := 0; l < p.nLon; l++ {
			for t := 0; t < nTime; t++ {
				idx := (r*p.nLon+l)*nTime + t
				if l == 0 || rng.IntN(20) == 0 {
					u[idx], v[idx], ws[idx], nobs[idx] = nan, nan, nan, nan
					continue
				}
				u[idx] = float32(rng.NormFloat64() * 5)
				v[idx] = float32(rng.NormFloat64() * 5)
				ws[idx] = float32(math.Hypot(float64(u[idx]), float64(v[idx])))
				nobs[idx] = float32(rng.IntN(4))
			}
		}
	}

	f.Variables = []netcdf.FixtureVariable{
		windVariable("uwnd", "u-wind vector component at 10 meters", "m s-1", u),
		windVariable("vwnd", "v-wind vector component at 10 meters", "m s-1", v),
		windVariable("ws", "wind speed at 10 meters", "m s-1", ws),
		{
			Name:       "nobs",
			Layout:     domain.LayoutLatLonTime,
			Values:     nobs,
			Attributes: []netcdf.Attr{{Name: "long_name", Value: "number of observations used to derive wind vector components"}},
		},
	}
	return f
}

func windVariable(name, longName, units string, values []float32) netcdf.FixtureVariable {
	return netcdf.FixtureVariable{
		Name:   name,
		Layout: domain.LayoutLatLonTime,
		Values: values,
		Attributes: []netcdf.Attr{
			{Name: "units", Value: units},
			{Name: "long_name", Value: longName},
		},
	}
}

// dayFixture slices day d's four steps out of the full raw series.
func dayFixture(raw netcdf.DatasetFixture, d int) netcdf.DatasetFixture {
	nTime := len(raw.Times)
	out := raw
	out.Times = raw.Times[d*stepsPerDay : (d+1)*stepsPerDay]
	out.Variables = make([]netcdf.FixtureVariable, len(raw.Variables))
	for i, v := range raw.Variables {
		values := make([]float32, 0, len(raw.Lats)*len(raw.Lons)*stepsPerDay)
		for cell := 0; cell < len(raw.Lats)*len(raw.Lons); cell++ {
			values = append(values, v.Values[cell*nTime+d*stepsPerDay:cell*nTime+(d+1)*stepsPerDay]...)
		}
		v.Values = values
		out.Variables[i] = v
	}
	return out
}

// weeklyFixture averages each week of raw into one time,lat,lon step stamped
// at 00Z of the week's middle day. A day contributes only when all four of
// its samples are present; <var>_nobs counts the samples used and weeks with
// none hold the sentinel.
func weeklyFixture(raw netcdf.DatasetFixture, p params) netcdf.DatasetFixture {
	nLat, nLon, nTime := len(raw.Lats), len(raw.Lons), len(raw.Times)
	out := netcdf.DatasetFixture{
		Lats:      raw.Lats,
		Lons:      raw.Lons,
		Times:     make([]float64, p.weeks),
		TimeUnits: timeUnits,
	}
	for w := range out.Times {
		out.Times[w] = raw.Times[w*stepsPerWeek+3*stepsPerDay]
	}

	for vi, name := range windVars {
		src := raw.Variables[vi].Values
		means := make([]float32, p.weeks*nLat*nLon)
		counts := make([]float32, p.weeks*nLat*nLon)
		for w := 0; w < p.weeks; w++ {
			for r := 0; r < nLat; r++ {
				for l := 0; l < nLon; l++ {
					base := (r*nLon + l) * nTime
					var sum float64
					var n int
					for t := w * stepsPerWeek; t < (w+1)*stepsPerWeek; t += stepsPerDay {
						day := src[base+t : base+t+stepsPerDay]
						if hasNaN(day) {
							continue
						}
						for _, x := range day {
							sum += float64(x)
						}
						n += stepsPerDay
					}
					idx := (w*nLat+r)*nLon + l
					counts[idx] = float32(n)
					means[idx] = domain.CCMPMissingSentinel
					if n > 0 {
						means[idx] = float32(sum / float64(n))
					}
				}
			}
		}
		out.Variables = append(out.Variables,
			netcdf.FixtureVariable{
				Name:       name,
				Layout:     domain.LayoutTimeLatLon,
				Values:     means,
				Attributes: raw.Variables[vi].Attributes,
			},
			netcdf.FixtureVariable{
				Name:       name + "_nobs",
				Layout:     domain.LayoutTimeLatLon,
				Values:     counts,
				Attributes: []netcdf.Attr{{Name: "long_name", Value: "number of valid samples in the week"}},
			},
		)
	}
	return out
}

func hasNaN(xs []float32) bool {
	for _, x := range xs {
		if math.IsNaN(float64(x)) {
			return true
		}
	}
	return false
}

// basinCells splits the globe into four basins by longitude quadrant.
func basinCells() [][]int32 {
	const nLat, nLon = 168, 360
	cells := make([][]int32, nLat)
	for i := range cells {
		cells[i] = make([]int32, nLon)
		for j := range cells[i] {
			cells[i][j] = int32(1 + j/90)
		}
	}
	return cells
}
