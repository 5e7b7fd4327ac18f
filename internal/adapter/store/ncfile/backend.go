// Package ncfile implements the array store on NetCDF files.
//
// Schema enumeration (ordered variable and dimension names, CDL types and
// attributes) uses the pure-Go go-native-netcdf reader; data reads and all
// writes go through libnetcdf via fhs/go-netcdf.
package ncfile

import (
	"fmt"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ncgrain/internal/adapter/store"
)

// ncMu serializes libnetcdf calls; the C library is not thread-safe.
var ncMu sync.Mutex

// Backend opens and creates NetCDF datasets.
type Backend struct{}

// NewBackend returns a NetCDF backend.
func NewBackend() *Backend {
	return &Backend{}
}

// OpenRead opens a NetCDF file for reading.
func (b *Backend) OpenRead(path string) (store.Reader, error) {
	return Open(path)
}

// CreateWrite creates a NetCDF-4 classic model file in define mode.
func (b *Backend) CreateWrite(path string, opts store.CreateOptions) (store.Writer, error) {
	return Create(path, opts)
}

func locked[T any](fn func() (T, error)) (T, error) {
	ncMu.Lock()
	defer ncMu.Unlock()
	return fn()
}

func lockedErr(fn func() error) error {
	ncMu.Lock()
	defer ncMu.Unlock()
	return fn()
}

func createMode(opts store.CreateOptions) netcdf.FileMode {
	mode := netcdf.NETCDF4 | netcdf.CLASSIC_MODEL
	if opts.Overwrite {
		return mode | netcdf.CLOBBER
	}
	return mode | netcdf.NOCLOBBER
}

func toUint64s(in []int) ([]uint64, error) {
	out := make([]uint64, len(in))
	for i, v := range in {
		if v < 0 {
			return nil, fmt.Errorf("negative extent %d at position %d", v, i)
		}
		out[i] = uint64(v)
	}
	return out, nil
}
