// Command synth-generator writes a synthetic NCEP-style 6-hourly air
// temperature file for exercising ncgrain without reanalysis downloads.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/adapter/store/ncfile"
	"go.ngs.io/ncgrain/internal/domain"
)

// hoursPer6 is the spacing of the time axis in "hours since 1800-01-01".
const hoursPer6 = 6.0

// Grid defines the synthetic dataset extents.
type Grid struct {
	Times      int
	Levels     []float32 // hPa, surface first
	Resolution float64   // degrees
	StartHours float64   // first time value
}

// Shape returns the (time, level, lat, lon) extents of the grid.
func (g Grid) Shape() domain.Shape {
	return domain.Shape{
		Time:  g.Times,
		Level: len(g.Levels),
		Lat:   int(180/g.Resolution) + 1,
		Lon:   int(360 / g.Resolution),
	}
}

// ncepLevels are the 17 pressure levels of the NCEP/NCAR reanalysis.
var ncepLevels = []float32{1000, 925, 850, 700, 600, 500, 400, 300, 250, 200, 150, 100, 70, 50, 30, 20, 10}

func main() {
	flags := pflag.NewFlagSet("synth-generator", pflag.ExitOnError)
	outPath := flags.StringP("out", "o", "./data/air.synth.nc", "output NetCDF file")
	times := flags.Int("times", 8, "number of 6-hourly time steps")
	levels := flags.Int("levels", 3, "number of pressure levels (1-17)")
	resolution := flags.Float64("resolution", 2.5, "grid resolution in degrees")
	overwrite := flags.Bool("overwrite", false, "replace an existing output file")
	_ = flags.Parse(os.Args[1:])

	log := logrus.New()

	if *levels < 1 || *levels > len(ncepLevels) {
		log.Fatalf("levels must be between 1 and %d", len(ncepLevels))
	}
	if *times < 1 || *resolution <= 0 || math.Mod(180, *resolution) != 0 {
		log.Fatalf("times must be positive and resolution must divide 180")
	}
	grid := Grid{
		Times:      *times,
		Levels:     ncepLevels[:*levels],
		Resolution: *resolution,
		StartHours: 1945392, // 2022-01-01T00:00Z
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	w, err := ncfile.NewBackend().CreateWrite(*outPath, store.CreateOptions{Overwrite: *overwrite})
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *outPath, err)
	}
	if err := generate(w, grid); err != nil {
		_ = w.Close()
		log.Fatalf("Failed to generate %s: %v", *outPath, err)
	}
	if err := w.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", *outPath, err)
	}

	shape := grid.Shape()
	log.WithFields(logrus.Fields{
		"path":  *outPath,
		"time":  shape.Time,
		"level": shape.Level,
		"lat":   shape.Lat,
		"lon":   shape.Lon,
	}).Info("Generated synthetic air temperature")
}

// generate defines the NCEP layout on w and writes coordinates and an air
// temperature field that varies smoothly in space and with a diurnal cycle.
func generate(w store.Writer, g Grid) error {
	shape := g.Shape()

	lonDim, err := w.DefineDim("lon", shape.Lon)
	if err != nil {
		return err
	}
	latDim, err := w.DefineDim("lat", shape.Lat)
	if err != nil {
		return err
	}
	levelDim, err := w.DefineDim("level", shape.Level)
	if err != nil {
		return err
	}
	timeDim, err := w.DefineDim("time", shape.Time)
	if err != nil {
		return err
	}

	levelVar, err := w.DefineVar(store.VarDef{Name: "level", Type: domain.TypeFloat, DimIDs: []int{levelDim},
		Attrs: []domain.Attribute{{Name: "units", Value: "millibar"}, {Name: "axis", Value: "Z"}}})
	if err != nil {
		return err
	}
	latVar, err := w.DefineVar(store.VarDef{Name: "lat", Type: domain.TypeFloat, DimIDs: []int{latDim},
		Attrs: []domain.Attribute{{Name: "units", Value: "degrees_north"}, {Name: "axis", Value: "Y"}}})
	if err != nil {
		return err
	}
	lonVar, err := w.DefineVar(store.VarDef{Name: "lon", Type: domain.TypeFloat, DimIDs: []int{lonDim},
		Attrs: []domain.Attribute{{Name: "units", Value: "degrees_east"}, {Name: "axis", Value: "X"}}})
	if err != nil {
		return err
	}
	timeVar, err := w.DefineVar(store.VarDef{Name: "time", Type: domain.TypeDouble, DimIDs: []int{timeDim},
		Attrs: []domain.Attribute{{Name: "units", Value: "hours since 1800-01-01 00:00:0.0"}, {Name: "axis", Value: "T"}}})
	if err != nil {
		return err
	}
	airVar, err := w.DefineVar(store.VarDef{
		Name:   "air",
		Type:   domain.TypeFloat,
		DimIDs: []int{timeDim, levelDim, latDim, lonDim},
		Attrs: []domain.Attribute{
			{Name: "long_name", Value: "6-Hourly Air temperature on Pressure Levels"},
			{Name: "units", Value: "degK"},
		},
		Chunks:      []int{1, shape.Level, shape.Lat, shape.Lon},
		Compression: store.Compression{Shuffle: true, Level: 2},
	})
	if err != nil {
		return err
	}
	if err := w.PutGlobalAttributes([]domain.Attribute{
		{Name: "Conventions", Value: "COARDS"},
		{Name: "title", Value: "synthetic 6-hourly air temperature"},
	}); err != nil {
		return err
	}
	if err := w.EndDef(); err != nil {
		return err
	}

	lat := make([]float32, shape.Lat)
	for i := range lat {
		lat[i] = float32(90 - float64(i)*g.Resolution)
	}
	lon := make([]float32, shape.Lon)
	for i := range lon {
		lon[i] = float32(float64(i) * g.Resolution)
	}
	times := make([]float64, shape.Time)
	for i := range times {
		times[i] = g.StartHours + float64(i)*hoursPer6
	}
	if err := w.WriteFloat32s(levelVar, g.Levels); err != nil {
		return fmt.Errorf("failed to write level: %w", err)
	}
	if err := w.WriteFloat32s(latVar, lat); err != nil {
		return fmt.Errorf("failed to write lat: %w", err)
	}
	if err := w.WriteFloat32s(lonVar, lon); err != nil {
		return fmt.Errorf("failed to write lon: %w", err)
	}
	if err := w.WriteFloat64s(timeVar, times); err != nil {
		return fmt.Errorf("failed to write time: %w", err)
	}

	sink := store.NewCubeSink(w, airVar, shape)
	cube := make([]float32, shape.CubeLen())
	for t := 0; t < shape.Time; t++ {
		fillCube(cube, g, lat, lon, times[t])
		if err := sink.WriteCube(t, cube); err != nil {
			return err
		}
	}
	return nil
}

// fillCube computes the air temperature (K) of one time step: colder toward
// the poles and aloft, with a diurnal cycle that follows local solar time.
func fillCube(cube []float32, g Grid, lat, lon []float32, hours float64) {
	utc := math.Mod(hours, 24)
	i := 0
	for _, p := range g.Levels {
		aloft := 60 * (1 - float64(p)/1000)
		for _, la := range lat {
			base := 300 - 40*math.Abs(float64(la))/90 - aloft
			for _, lo := range lon {
				local := math.Mod(utc+float64(lo)/15, 24)
				diurnal := 5 * math.Cos(2*math.Pi*(local-15)/24)
				cube[i] = float32(base + diurnal)
				i++
			}
		}
	}
}
