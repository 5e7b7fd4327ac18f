// Package interp synthesizes intermediate time slices ("grains") of a 4-D
// payload by linear interpolation between consecutive original time slices.
package interp

import (
	"errors"
	"fmt"
	"strings"

	"go.ngs.io/ncgrain/internal/domain"
)

// Sink receives finished cubes. The engine rewrites every cell of the cube
// for the next grain, so implementations may modify it in place but must not
// retain it.
type Sink interface {
	WriteCube(timeIndex int, cube []float32) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(timeIndex int, cube []float32) error

// WriteCube calls f.
func (f SinkFunc) WriteCube(timeIndex int, cube []float32) error {
	return f(timeIndex, cube)
}

// BoundaryPolicy decides what happens to the final original time sample,
// which has no successor to interpolate towards.
type BoundaryPolicy int

const (
	// BoundaryOmit writes the last sample once, as grain 0, and leaves the
	// remaining slots of its interval unwritten.
	BoundaryOmit BoundaryPolicy = iota
	// BoundaryHold repeats the last sample for every grain of its interval.
	BoundaryHold
)

// String returns the configuration name of the policy.
func (p BoundaryPolicy) String() string {
	switch p {
	case BoundaryOmit:
		return "omit"
	case BoundaryHold:
		return "hold"
	default:
		return fmt.Sprintf("BoundaryPolicy(%d)", int(p))
	}
}

// ParseBoundaryPolicy parses "omit" or "hold". An empty string selects omit.
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "omit":
		return BoundaryOmit, nil
	case "hold":
		return BoundaryHold, nil
	default:
		return 0, domain.ConfigError("boundary policy", "unknown boundary policy %q (use omit or hold)", s)
	}
}

// Engine interpolates grains for every original time interval.
type Engine struct {
	shape    domain.Shape
	strides  domain.StrideTable
	schedule domain.Schedule
	boundary BoundaryPolicy

	// Progress, if set, is called after all grains of original time step t
	// have been written.
	Progress func(t, total int)
}

// NewEngine validates its inputs and returns an engine.
func NewEngine(shape domain.Shape, strides domain.StrideTable, schedule domain.Schedule, boundary BoundaryPolicy) (*Engine, error) {
	if schedule.GrainsPerInterval < 1 {
		return nil, domain.ConfigError("interpolation engine", "grains per interval must be at least 1, got %d", schedule.GrainsPerInterval)
	}
	if strides != domain.NewStrideTable(shape) {
		return nil, domain.SchemaError("interpolation engine", "stride table %+v does not match shape %+v", strides, shape)
	}
	if boundary != BoundaryOmit && boundary != BoundaryHold {
		return nil, domain.ConfigError("interpolation engine", "invalid boundary policy %v", boundary)
	}
	return &Engine{shape: shape, strides: strides, schedule: schedule, boundary: boundary}, nil
}

// CubeCount returns how many cubes Run writes for the configured shape.
func (e *Engine) CubeCount() int {
	if e.shape.Time == 0 {
		return 0
	}
	if e.boundary == BoundaryHold {
		return e.shape.Time * e.schedule.GrainsPerInterval
	}
	return (e.shape.Time-1)*e.schedule.GrainsPerInterval + 1
}

// Run interpolates every (t, g) pair and hands each cube to sink with
// destination index t*G+g. Only Time-1 intervals are interpolated; the last
// original sample is handled by the boundary policy. Run stops at the first
// sink failure. It returns the number of cubes written.
func (e *Engine) Run(payload []float32, sink Sink) (int, error) {
	if len(payload) != e.shape.Len() {
		return 0, domain.SchemaError("interpolate", "payload has %d elements, shape %+v needs %d",
			len(payload), e.shape, e.shape.Len())
	}

	grains := e.schedule.GrainsPerInterval
	cube := make([]float32, e.shape.CubeLen())
	last := e.shape.Time - 1
	written := 0

	for t := 0; t <= last; t++ {
		n := grains
		if t == last && e.boundary == BoundaryOmit {
			n = 1
		}
		for g := 0; g < n; g++ {
			if g == 0 || t == last {
				e.copySample(cube, payload, t)
			} else {
				e.fill(cube, payload, t, g)
			}

			dst := t*grains + g
			if err := sink.WriteCube(dst, cube); err != nil {
				return written, sinkError(err, dst)
			}
			written++
		}
		if e.Progress != nil {
			e.Progress(t, e.shape.Time)
		}
	}
	return written, nil
}

// Fill computes the cube for original time index t and grain g into cube.
// Asking for a grain past the last original sample is a boundary error
// unless the engine holds the last sample.
func (e *Engine) Fill(cube, payload []float32, t, g int) error {
	if len(cube) != e.shape.CubeLen() {
		return fmt.Errorf("cube has %d elements, want %d", len(cube), e.shape.CubeLen())
	}
	if len(payload) != e.shape.Len() {
		return fmt.Errorf("payload has %d elements, want %d", len(payload), e.shape.Len())
	}
	if g < 0 || g >= e.schedule.GrainsPerInterval {
		return domain.BoundaryError("fill", t, "grain %d outside [0, %d)", g, e.schedule.GrainsPerInterval)
	}
	if t < 0 || t >= e.shape.Time {
		return domain.BoundaryError("fill", t, "time index outside [0, %d)", e.shape.Time)
	}
	switch {
	case g == 0:
		e.copySample(cube, payload, t)
	case t+1 < e.shape.Time:
		e.fill(cube, payload, t, g)
	case e.boundary == BoundaryHold:
		e.copySample(cube, payload, t)
	default:
		return domain.BoundaryError("fill", t, "grain %d needs time index %d, last is %d", g, t+1, e.shape.Time-1)
	}
	return nil
}

// fill writes payload[x] + (payload[y]-payload[x]) * g/G for every cell.
// Callers guarantee t+1 < Time.
func (e *Engine) fill(cube, payload []float32, t, g int) {
	s := e.strides
	frac := e.schedule.Fraction(g)
	for lvl := 0; lvl < e.shape.Level; lvl++ {
		for lat := 0; lat < e.shape.Lat; lat++ {
			for lon := 0; lon < e.shape.Lon; lon++ {
				x := s.Offset(t, lvl, lat, lon)
				y := s.Offset(t+1, lvl, lat, lon)
				slope := payload[y] - payload[x]
				// The conversion forces float32 rounding of the product so
				// results do not depend on fused multiply-add.
				cube[s.Offset(0, lvl, lat, lon)] = payload[x] + float32(slope*frac)
			}
		}
	}
}

// copySample writes original time slice t into cube unchanged.
func (e *Engine) copySample(cube, payload []float32, t int) {
	base := e.strides.Offset(t, 0, 0, 0)
	copy(cube, payload[base:base+len(cube)])
}

func sinkError(err error, timeIndex int) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		if derr.TimeIndex == domain.NoIndex {
			derr.TimeIndex = timeIndex
		}
		return derr
	}
	return domain.StoreIOError("write cube", err).WithTime(timeIndex)
}
