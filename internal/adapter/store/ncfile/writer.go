package ncfile

import (
	"fmt"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

// Writer creates one NetCDF-4 classic model dataset.
type Writer struct {
	path string
	ds   netcdf.Dataset
	dims []netcdf.Dim
	vars []netcdf.Var
	open bool
}

// Create creates path in define mode. Unless opts.Overwrite is set, an
// existing file is left untouched and an error is returned.
func Create(path string, opts store.CreateOptions) (*Writer, error) {
	ds, err := locked(func() (netcdf.Dataset, error) {
		return netcdf.CreateFile(path, createMode(opts))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &Writer{path: path, ds: ds, open: true}, nil
}

// DefineDim adds a dimension and returns its id.
func (w *Writer) DefineDim(name string, length int) (int, error) {
	if length < 0 {
		return 0, fmt.Errorf("dimension %s: negative length %d", name, length)
	}
	d, err := locked(func() (netcdf.Dim, error) {
		return w.ds.AddDim(name, uint64(length))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to define dimension %s: %w", name, err)
	}
	w.dims = append(w.dims, d)
	return len(w.dims) - 1, nil
}

// DefineVar adds a variable with its attributes, chunking and compression.
func (w *Writer) DefineVar(def store.VarDef) (int, error) {
	var t netcdf.Type
	switch def.Type {
	case domain.TypeFloat:
		t = netcdf.FLOAT
	case domain.TypeDouble:
		t = netcdf.DOUBLE
	default:
		return 0, fmt.Errorf("variable %s: unsupported output type %v", def.Name, def.Type)
	}

	dims := make([]netcdf.Dim, len(def.DimIDs))
	for i, id := range def.DimIDs {
		if id < 0 || id >= len(w.dims) {
			return 0, fmt.Errorf("variable %s: dimension id %d not defined", def.Name, id)
		}
		dims[i] = w.dims[id]
	}

	var chunks []uint64
	if def.Chunks != nil {
		if len(def.Chunks) != len(dims) {
			return 0, fmt.Errorf("variable %s: %d chunk sizes for %d dimensions", def.Name, len(def.Chunks), len(dims))
		}
		var err error
		if chunks, err = toUint64s(def.Chunks); err != nil {
			return 0, fmt.Errorf("variable %s: %w", def.Name, err)
		}
	}

	ncMu.Lock()
	defer ncMu.Unlock()

	v, err := w.ds.AddVar(def.Name, t, dims)
	if err != nil {
		return 0, fmt.Errorf("failed to define variable %s: %w", def.Name, err)
	}
	if chunks != nil {
		if err := defineChunking(w.ds, def.Name, chunks); err != nil {
			return 0, fmt.Errorf("failed to set chunking of %s: %w", def.Name, err)
		}
	}
	if def.Compression.Level > 0 {
		if err := v.SetCompression(def.Compression.Shuffle, true, def.Compression.Level); err != nil {
			return 0, fmt.Errorf("failed to set compression of %s: %w", def.Name, err)
		}
	}
	for _, a := range def.Attrs {
		if err := writeAttr(v.Attr(a.Name), a); err != nil {
			return 0, fmt.Errorf("variable %s: %w", def.Name, err)
		}
	}

	w.vars = append(w.vars, v)
	return len(w.vars) - 1, nil
}

// PutGlobalAttributes writes dataset-level attributes.
func (w *Writer) PutGlobalAttributes(attrs []domain.Attribute) error {
	ncMu.Lock()
	defer ncMu.Unlock()
	for _, a := range attrs {
		if err := writeAttr(w.ds.Attr(a.Name), a); err != nil {
			return fmt.Errorf("global: %w", err)
		}
	}
	return nil
}

// EndDef leaves define mode.
func (w *Writer) EndDef() error {
	if err := lockedErr(w.ds.EndDef); err != nil {
		return fmt.Errorf("failed to end define mode of %s: %w", w.path, err)
	}
	return nil
}

// WriteFloat32s writes a whole FLOAT variable.
func (w *Writer) WriteFloat32s(varID int, data []float32) error {
	v, err := w.variable(varID)
	if err != nil {
		return err
	}
	return lockedErr(func() error { return v.WriteFloat32s(data) })
}

// WriteFloat64s writes a whole DOUBLE variable.
func (w *Writer) WriteFloat64s(varID int, data []float64) error {
	v, err := w.variable(varID)
	if err != nil {
		return err
	}
	return lockedErr(func() error { return v.WriteFloat64s(data) })
}

// WriteFloat32Slice writes data into the hyperslab start/count of a FLOAT variable.
func (w *Writer) WriteFloat32Slice(varID int, start, count []int, data []float32) error {
	v, err := w.variable(varID)
	if err != nil {
		return err
	}
	s, err := toUint64s(start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	c, err := toUint64s(count)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	return lockedErr(func() error { return v.WriteFloat32Slice(data, s, c) })
}

// Close flushes and closes the dataset. Closing twice is a no-op.
func (w *Writer) Close() error {
	if !w.open {
		return nil
	}
	w.open = false
	if err := lockedErr(w.ds.Close); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) variable(varID int) (netcdf.Var, error) {
	if varID < 0 || varID >= len(w.vars) {
		return netcdf.Var{}, fmt.Errorf("variable id %d not defined", varID)
	}
	return w.vars[varID], nil
}
