package ncfile

// #cgo pkg-config: netcdf
// #include <stdlib.h>
// #include <netcdf.h>
import "C"

import (
	"unsafe"

	"github.com/fhs/go-netcdf/netcdf"
)

// fhs/go-netcdf exposes compression but not chunking, so the two chunking
// calls go to libnetcdf directly. Callers hold ncMu.

func inqVarID(ds netcdf.Dataset, name string) (C.int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var id C.int
	if rc := C.nc_inq_varid(C.int(ds), cname, &id); rc != C.NC_NOERR {
		return 0, netcdf.Error(int32(rc))
	}
	return id, nil
}

// isNetCDF4 reports whether ds is stored in an HDF5-based format, the only
// formats with chunked storage and compression.
func isNetCDF4(ds netcdf.Dataset) (bool, error) {
	var format C.int
	if rc := C.nc_inq_format(C.int(ds), &format); rc != C.NC_NOERR {
		return false, netcdf.Error(int32(rc))
	}
	return format == C.NC_FORMAT_NETCDF4 || format == C.NC_FORMAT_NETCDF4_CLASSIC, nil
}

// defineChunking sets chunked storage with the given chunk sizes on the named
// variable. The dataset must be in define mode.
func defineChunking(ds netcdf.Dataset, name string, chunks []uint64) error {
	id, err := inqVarID(ds, name)
	if err != nil {
		return err
	}
	sizes := make([]C.size_t, len(chunks))
	for i, c := range chunks {
		sizes[i] = C.size_t(c)
	}
	var p *C.size_t
	if len(sizes) > 0 {
		p = &sizes[0]
	}
	if rc := C.nc_def_var_chunking(C.int(ds), id, C.NC_CHUNKED, p); rc != C.NC_NOERR {
		return netcdf.Error(int32(rc))
	}
	return nil
}

// varChunking returns the chunk sizes of the named variable, or nil when it
// is stored contiguously.
func varChunking(ds netcdf.Dataset, name string) ([]uint64, error) {
	id, err := inqVarID(ds, name)
	if err != nil {
		return nil, err
	}
	var ndims C.int
	if rc := C.nc_inq_varndims(C.int(ds), id, &ndims); rc != C.NC_NOERR {
		return nil, netcdf.Error(int32(rc))
	}
	if ndims == 0 {
		return nil, nil
	}
	sizes := make([]C.size_t, int(ndims))
	var storage C.int
	if rc := C.nc_inq_var_chunking(C.int(ds), id, &storage, &sizes[0]); rc != C.NC_NOERR {
		return nil, netcdf.Error(int32(rc))
	}
	if storage != C.NC_CHUNKED {
		return nil, nil
	}
	out := make([]uint64, len(sizes))
	for i, s := range sizes {
		out[i] = uint64(s)
	}
	return out, nil
}
