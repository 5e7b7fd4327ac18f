package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ncgrain/internal/adapter/interp"
	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

// DefaultDeflateLevel is the payload compression level used when none is configured.
const DefaultDeflateLevel = 2

// Layout controls the storage layout of created datasets.
type Layout struct {
	// DeflateLevel compresses the payload (1-9); 0 stores it uncompressed.
	DeflateLevel int
	Shuffle      bool

	// PayloadChunks overrides the payload chunk shape (time, level, lat,
	// lon). Zero entries mean one time step and the full extent otherwise.
	PayloadChunks [4]int

	// TimeChunk is the chunk length of the time variable; 0 means the full axis.
	TimeChunk int
}

// DefaultLayout returns shuffle plus deflate level 2 with one cube per chunk.
func DefaultLayout() Layout {
	return Layout{DeflateLevel: DefaultDeflateLevel, Shuffle: true}
}

// ResampleRequest describes one resampling run.
type ResampleRequest struct {
	Source             string
	Destination        string
	GranularityMinutes int

	// Boundary is "omit" (default) or "hold".
	Boundary string

	// Payload names the payload variable when the source has several candidates.
	Payload string

	// SampleSpan is the time-coordinate distance between original samples.
	// Zero infers it from the first two time values.
	SampleSpan float64

	Overwrite bool
}

// Validate checks the request before any I/O.
func (r *ResampleRequest) Validate() error {
	if r.Source == "" {
		return domain.ConfigError("resample", "source path is required")
	}
	if r.Destination == "" {
		return domain.ConfigError("resample", "destination path is required")
	}
	if r.Source == r.Destination {
		return domain.ConfigError("resample", "destination must differ from source %s", r.Source)
	}
	if r.SampleSpan < 0 {
		return domain.ConfigError("resample", "sample span must not be negative, got %g", r.SampleSpan)
	}
	return nil
}

// ResampleResult summarizes a finished run.
type ResampleResult struct {
	Source             string       `json:"source"`
	Destination        string       `json:"destination"`
	Payload            string       `json:"payload"`
	GranularityMinutes int          `json:"granularity_minutes"`
	GrainsPerInterval  int          `json:"grains_per_interval"`
	Boundary           string       `json:"boundary"`
	OriginalShape      domain.Shape `json:"original_shape"`
	ExpandedTime       int          `json:"expanded_time"`
	CubesWritten       int          `json:"cubes_written"`
	SampleSpan         float64      `json:"sample_span"`
	DroppedVariables   []string     `json:"dropped_variables,omitempty"`
	Warnings           []string     `json:"warnings,omitempty"`
	ElapsedSeconds     float64      `json:"elapsed_seconds"`
}

// ResampleUseCase upsamples the time axis of a dataset.
type ResampleUseCase struct {
	store  store.Opener
	layout Layout
	log    logrus.FieldLogger

	// ProgressEvery logs progress after this many original time steps; 0 disables it.
	ProgressEvery int
}

// NewResampleUseCase creates a resample use case.
func NewResampleUseCase(opener store.Opener, layout Layout, log logrus.FieldLogger) *ResampleUseCase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResampleUseCase{store: opener, layout: layout, log: log, ProgressEvery: 10}
}

// Execute runs one resampling job. Configuration is validated before the
// source is opened. A failure after the destination was created leaves the
// partial file in place.
func (uc *ResampleUseCase) Execute(ctx context.Context, req ResampleRequest) (*ResampleResult, error) {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	sched, err := domain.NewSchedule(req.GranularityMinutes)
	if err != nil {
		return nil, err
	}
	boundary, err := interp.ParseBoundaryPolicy(req.Boundary)
	if err != nil {
		return nil, err
	}

	log := uc.log.WithFields(logrus.Fields{
		"source":          req.Source,
		"destination":     req.Destination,
		"granularity_min": sched.GranularityMinutes,
		"grains":          sched.GrainsPerInterval,
	})

	src, err := uc.store.OpenRead(req.Source)
	if err != nil {
		return nil, domain.StoreIOError("open source", err)
	}
	defer func() { _ = src.Close() }()

	cat, err := domain.Discover(src, req.Payload)
	if err != nil {
		return nil, err
	}
	strides, err := domain.BuildStrides(cat)
	if err != nil {
		return nil, err
	}
	shape := cat.Shape()
	engine, err := interp.NewEngine(shape, strides, sched, boundary)
	if err != nil {
		return nil, err
	}
	payloadVar := cat.Payload()
	log = log.WithField("payload", payloadVar.Name)
	log.WithFields(logrus.Fields{
		"roles": cat.Describe(),
		"shape": fmt.Sprintf("%dx%dx%dx%d", shape.Time, shape.Level, shape.Lat, shape.Lon),
	}).Info("Discovered schema")

	result := &ResampleResult{
		Source:             req.Source,
		Destination:        req.Destination,
		Payload:            payloadVar.Name,
		GranularityMinutes: sched.GranularityMinutes,
		GrainsPerInterval:  sched.GrainsPerInterval,
		Boundary:           boundary.String(),
		OriginalShape:      shape,
		ExpandedTime:       sched.ExpandedLength(shape.Time),
	}
	for _, id := range cat.Roles.AuxVars {
		result.DroppedVariables = append(result.DroppedVariables, cat.Var(id).Name)
	}
	if len(result.DroppedVariables) > 0 {
		log.WithField("variables", result.DroppedVariables).Warn("Dropping auxiliary variables")
	}

	payload, err := src.ReadFloat32s(payloadVar.ID)
	if err != nil {
		return nil, domain.StoreIOError("read payload", err).WithVar(payloadVar.Name, payloadVar.ID)
	}
	timeVar := cat.Var(cat.Roles.TimeVar)
	origTimes, err := src.ReadFloat64s(timeVar.ID)
	if err != nil {
		return nil, domain.StoreIOError("read time", err).WithVar(timeVar.Name, timeVar.ID)
	}

	span, warnings := resolveSpan(origTimes, req.SampleSpan)
	newTimes := domain.RebuildTimeAxis(origTimes, sched, span)
	if err := domain.CheckMonotonic(newTimes); err != nil {
		warnings = append(warnings, "rebuilt time axis is not monotonic: "+err.Error())
	}
	result.SampleSpan = span
	result.Warnings = warnings
	for _, w := range warnings {
		log.Warn(w)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resample cancelled: %w", err)
	}

	dst, err := uc.store.CreateWrite(req.Destination, store.CreateOptions{Overwrite: req.Overwrite})
	if err != nil {
		return nil, domain.StoreIOError("create destination", err)
	}
	out, err := uc.writeSkeleton(src, dst, cat, sched, newTimes)
	if err != nil {
		uc.abandon(log, dst, err)
		return nil, err
	}

	if uc.ProgressEvery > 0 {
		engine.Progress = func(t, total int) {
			if (t+1)%uc.ProgressEvery == 0 || t+1 == total {
				log.WithFields(logrus.Fields{
					"step":    t + 1,
					"total":   total,
					"percent": fmt.Sprintf("%.1f", float64(t+1)/float64(total)*100),
					"elapsed": time.Since(started).Round(time.Millisecond).String(),
				}).Info("Interpolation progress")
			}
		}
	}

	cubes := store.NewCubeSink(dst, out.payload, shape)
	if out.hasFill {
		cubes.SetFill(out.fill)
	}
	sink := interp.SinkFunc(func(timeIndex int, cube []float32) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("resample cancelled: %w", err)
		}
		return cubes.WriteCube(timeIndex, cube)
	})
	n, err := engine.Run(payload, sink)
	result.CubesWritten = n
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Var == "" {
			derr.WithVar(payloadVar.Name, out.payload)
		}
		uc.abandon(log, dst, err)
		return nil, err
	}

	if err := dst.Close(); err != nil {
		return nil, domain.StoreIOError("close destination", err)
	}
	result.ElapsedSeconds = time.Since(started).Seconds()
	log.WithFields(logrus.Fields{
		"cubes":   n,
		"elapsed": time.Since(started).Round(time.Millisecond).String(),
	}).Info("Resample complete")
	return result, nil
}

// abandon closes a destination after a failure and reports that partial
// output remains on disk.
func (uc *ResampleUseCase) abandon(log logrus.FieldLogger, dst store.Writer, cause error) {
	if err := dst.Close(); err != nil {
		log.WithError(err).Warn("Failed to close partial destination")
	}
	log.WithError(cause).Error("Resample failed; partial output left at destination")
}

// resolveSpan picks the time-coordinate span of one original interval.
func resolveSpan(orig []float64, configured float64) (float64, []string) {
	var warnings []string
	span := configured
	if span == 0 {
		inferred, ok := domain.InferSampleSpan(orig)
		if ok {
			span = inferred
		} else {
			span = domain.DefaultSampleSpan
			if len(orig) > 1 {
				warnings = append(warnings, fmt.Sprintf("cannot infer sample span from time values, using %g", span))
			}
		}
	}
	if err := domain.CheckUniformSpacing(orig, span); err != nil {
		warnings = append(warnings, "time samples are not uniformly spaced: "+err.Error())
	}
	return span, warnings
}
