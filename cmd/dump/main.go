// Command dump prints every tracked variable's series at one grid point of a
// source file.
//
// Usage:
//
//	go run ./cmd/dump -profile ccmp-raw -lat -78.375 -lon 0.125 data/fixture/ccmp_raw_19930103.nc
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/grid-basin-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/grid-basin-etl/internal/domain"
	"github.com/couchcryptid/grid-basin-etl/internal/profile"
)

func main() {
	prof := flag.String("profile", "ccmp-raw", "dataset profile name or YAML path")
	lat := flag.Float64("lat", -78.375, "latitude of the grid point")
	lon := flag.Float64("lon", 0.125, "longitude of the grid point, as stored in the file")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(context.Background(), os.Stdout, flag.Arg(0), *prof, *lat, *lon); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, w io.Writer, path, profileName string, lat, lon float64) error {
	p, err := profile.Load(profileName)
	if err != nil {
		return err
	}
	ds, err := netcdf.Open(path, p)
	if err != nil {
		return err
	}
	defer ds.Close()

	latIdx := slices.Index(ds.Latitudes(), lat)
	lonIdx := slices.Index(ds.Longitudes(), lon)
	if latIdx < 0 || lonIdx < 0 {
		return errors.New("no grid point at lat=" + domain.FormatCoord(lat) + " lon=" + domain.FormatCoord(lon))
	}

	b, err := ds.ReadBand(ctx, latIdx, latIdx+1)
	if err != nil {
		return err
	}
	for _, f := range append(b.Vars, b.Counts...) {
		fmt.Fprintf(w, "%s: %s\n", f.Name, formatSeries(f, lonIdx))
	}
	return nil
}

func formatSeries(f *domain.Field, lonIdx int) string {
	parts := make([]string, f.NTime)
	for t := range parts {
		parts[t] = strconv.FormatFloat(f.At(t, 0, lonIdx), 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
