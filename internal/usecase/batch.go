package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/ncgrain/internal/domain"
)

// DefaultSuffix is appended to the stem of every batch output file.
const DefaultSuffix = ".copy"

const ncExt = ".nc"

// BatchRequest resamples every NetCDF file of a directory.
type BatchRequest struct {
	InputDir string
	// OutputDir defaults to InputDir.
	OutputDir string
	Prefix    string
	Suffix    string

	// Template supplies granularity, boundary, payload, span and overwrite;
	// its Source and Destination are ignored.
	Template ResampleRequest

	// Concurrency bounds the number of files processed at once; 0 means 1.
	Concurrency int
}

// BatchFailure records one file that could not be resampled.
type BatchFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Results []*ResampleResult `json:"results"`
	Skipped []string          `json:"skipped,omitempty"`
	Failed  []BatchFailure    `json:"failed,omitempty"`
}

// BatchUseCase runs ResampleUseCase over a directory.
type BatchUseCase struct {
	resample *ResampleUseCase
	log      logrus.FieldLogger

	// ListDir returns the file names (not paths) in dir. Defaults to a
	// non-recursive os.ReadDir listing.
	ListDir func(dir string) ([]string, error)
}

// NewBatchUseCase creates a batch use case.
func NewBatchUseCase(resample *ResampleUseCase, log logrus.FieldLogger) *BatchUseCase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BatchUseCase{resample: resample, log: log, ListDir: listDir}
}

// OutputName maps an input file name to its batch output name:
// <prefix><stem><suffix>.nc.
func OutputName(name, prefix, suffix string) string {
	return prefix + strings.TrimSuffix(name, ncExt) + suffix + ncExt
}

// Execute resamples each input. A failing file does not stop the others;
// the returned error joins every failure. Cancelling ctx stops scheduling
// new files.
func (uc *BatchUseCase) Execute(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if _, err := domain.NewSchedule(req.Template.GranularityMinutes); err != nil {
		return nil, err
	}
	if req.InputDir == "" {
		return nil, domain.ConfigError("batch", "input directory is required")
	}
	outDir := req.OutputDir
	if outDir == "" {
		outDir = req.InputDir
	}
	suffix := req.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	limit := req.Concurrency
	if limit < 1 {
		limit = 1
	}

	names, err := uc.ListDir(req.InputDir)
	if err != nil {
		return nil, domain.StoreIOError("list input directory", err)
	}
	sort.Strings(names)

	result := &BatchResult{}
	var jobs []ResampleRequest
	for _, name := range names {
		if !strings.HasSuffix(name, ncExt) {
			continue
		}
		if isOutputName(name, req.Prefix, suffix) {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		job := req.Template
		job.Source = filepath.Join(req.InputDir, name)
		job.Destination = filepath.Join(outDir, OutputName(name, req.Prefix, suffix))
		jobs = append(jobs, job)
	}

	uc.log.WithFields(logrus.Fields{
		"input_dir":   req.InputDir,
		"output_dir":  outDir,
		"files":       len(jobs),
		"skipped":     len(result.Skipped),
		"concurrency": limit,
	}).Info("Starting batch")

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := uc.resample.Execute(gctx, job)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, BatchFailure{Source: job.Source, Error: err.Error()})
				errs = append(errs, fmt.Errorf("%s: %w", job.Source, err))
				return nil
			}
			result.Results = append(result.Results, res)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Results, func(i, j int) bool { return result.Results[i].Source < result.Results[j].Source })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Source < result.Failed[j].Source })

	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("batch cancelled: %w", err))
	}
	uc.log.WithFields(logrus.Fields{
		"succeeded": len(result.Results),
		"failed":    len(result.Failed),
	}).Info("Batch complete")
	return result, errors.Join(errs...)
}

// isOutputName reports whether name looks like a file a previous batch wrote.
func isOutputName(name, prefix, suffix string) bool {
	stem := strings.TrimSuffix(name, ncExt)
	return strings.HasPrefix(stem, prefix) && strings.HasSuffix(stem, suffix)
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
