package ncfile

import (
	"fmt"

	native "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

// dimensionLister is implemented by the classic-format group of
// go-native-netcdf; it lists every dimension in file order, including those
// no variable uses.
type dimensionLister interface {
	ListDimensions() []string
}

// Reader reads one NetCDF dataset.
type Reader struct {
	path   string
	group  api.Group
	ds     netcdf.Dataset
	dims   []domain.Dimension
	vars   []domain.Variable
	attrs  [][]domain.Attribute
	global []domain.Attribute
	closed bool
}

// Open opens path and enumerates its dimensions, variables and attributes.
func Open(path string) (*Reader, error) {
	group, err := native.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	ds, err := locked(func() (netcdf.Dataset, error) {
		return netcdf.OpenFile(path, netcdf.NOWRITE)
	})
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r := &Reader{path: path, group: group, ds: ds}
	if err := r.enumerate(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) enumerate() error {
	names := r.group.ListVariables()
	getters := make([]api.VarGetter, len(names))
	for i, name := range names {
		vg, err := r.group.GetVarGetter(name)
		if err != nil {
			return fmt.Errorf("failed to get variable %s: %w", name, err)
		}
		getters[i] = vg
	}

	// Dimension order: file order when the format exposes it, otherwise
	// first use across variables.
	var dimNames []string
	if l, ok := r.group.(dimensionLister); ok {
		dimNames = l.ListDimensions()
	}
	seen := make(map[string]int, len(dimNames))
	for i, n := range dimNames {
		seen[n] = i
	}
	for _, vg := range getters {
		for _, n := range vg.Dimensions() {
			if _, ok := seen[n]; !ok {
				seen[n] = len(dimNames)
				dimNames = append(dimNames, n)
			}
		}
	}

	r.dims = make([]domain.Dimension, len(dimNames))
	for i, n := range dimNames {
		// Lengths come from libnetcdf, which reports the current record
		// count for unlimited dimensions.
		length, err := locked(func() (uint64, error) {
			d, err := r.ds.Dim(n)
			if err != nil {
				return 0, err
			}
			return d.Len()
		})
		if err != nil {
			return fmt.Errorf("failed to get length of dimension %s: %w", n, err)
		}
		r.dims[i] = domain.Dimension{Name: n, ID: i, Length: int(length)}
	}

	r.vars = make([]domain.Variable, len(names))
	r.attrs = make([][]domain.Attribute, len(names))
	for i, vg := range getters {
		dimIDs := make([]int, 0, len(vg.Dimensions()))
		for _, n := range vg.Dimensions() {
			dimIDs = append(dimIDs, seen[n])
		}
		attrs := convertAttrs(vg.Attributes())
		r.vars[i] = domain.Variable{
			Name:      names[i],
			ID:        i,
			Type:      domain.ParseElementType(vg.Type()),
			DimIDs:    dimIDs,
			AttrCount: len(attrs),
		}
		r.attrs[i] = attrs
	}
	r.global = convertAttrs(r.group.Attributes())
	return nil
}

// Dimensions returns the dataset dimensions in file order.
func (r *Reader) Dimensions() ([]domain.Dimension, error) {
	return r.dims, nil
}

// Variables returns the dataset variables in file order.
func (r *Reader) Variables() ([]domain.Variable, error) {
	return r.vars, nil
}

// Attributes returns the attributes of variable varID.
func (r *Reader) Attributes(varID int) ([]domain.Attribute, error) {
	if varID < 0 || varID >= len(r.attrs) {
		return nil, fmt.Errorf("variable id %d out of range", varID)
	}
	return r.attrs[varID], nil
}

// GlobalAttributes returns the dataset-level attributes.
func (r *Reader) GlobalAttributes() ([]domain.Attribute, error) {
	return r.global, nil
}

// ReadFloat32s reads variable varID as float32, unpacking CF-packed data and
// mapping missing values to NaN.
func (r *Reader) ReadFloat32s(varID int) ([]float32, error) {
	v, n, t, err := r.lookup(varID)
	if err != nil {
		return nil, err
	}
	u, err := store.NewUnpacker(r.attrs[varID])
	if err != nil {
		return nil, fmt.Errorf("failed to read packing of %s: %w", r.vars[varID].Name, err)
	}

	var out []float32
	if t == netcdf.FLOAT {
		out = make([]float32, n)
		if err := lockedErr(func() error { return v.ReadFloat32s(out) }); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", r.vars[varID].Name, err)
		}
		if !u.Identity() {
			for i, x := range out {
				out[i] = float32(u.Value(float64(x)))
			}
		}
		return out, nil
	}

	wide, err := readFloat64Var(v, t, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.vars[varID].Name, err)
	}
	out = make([]float32, n)
	for i, x := range wide {
		out[i] = float32(u.Value(x))
	}
	return out, nil
}

// ReadFloat64s reads variable varID as float64, unpacking CF-packed data and
// mapping missing values to NaN.
func (r *Reader) ReadFloat64s(varID int) ([]float64, error) {
	v, n, t, err := r.lookup(varID)
	if err != nil {
		return nil, err
	}
	u, err := store.NewUnpacker(r.attrs[varID])
	if err != nil {
		return nil, fmt.Errorf("failed to read packing of %s: %w", r.vars[varID].Name, err)
	}
	out, err := readFloat64Var(v, t, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.vars[varID].Name, err)
	}
	if !u.Identity() {
		for i, x := range out {
			out[i] = u.Value(x)
		}
	}
	return out, nil
}

// Layout returns the chunk shape and compression of variable varID. Classic
// format files report contiguous, uncompressed storage.
func (r *Reader) Layout(varID int) ([]int, store.Compression, error) {
	v, _, _, err := r.lookup(varID)
	if err != nil {
		return nil, store.Compression{}, err
	}
	name := r.vars[varID].Name
	var (
		chunks  []uint64
		shuffle bool
		deflate bool
		level   int
	)
	err = lockedErr(func() error {
		nc4, err := isNetCDF4(r.ds)
		if err != nil || !nc4 {
			return err
		}
		if chunks, err = varChunking(r.ds, name); err != nil {
			return err
		}
		shuffle, deflate, level, err = v.Compression()
		return err
	})
	if err != nil {
		return nil, store.Compression{}, fmt.Errorf("failed to read layout of %s: %w", name, err)
	}
	comp := store.Compression{Shuffle: shuffle}
	if deflate {
		comp.Level = level
	}
	var out []int
	if chunks != nil {
		out = make([]int, len(chunks))
		for i, c := range chunks {
			out[i] = int(c)
		}
	}
	return out, comp, nil
}

// Close releases both handles on the file. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.group.Close()
	err := lockedErr(r.ds.Close)
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", r.path, err)
	}
	return nil
}

func (r *Reader) lookup(varID int) (netcdf.Var, uint64, netcdf.Type, error) {
	if varID < 0 || varID >= len(r.vars) {
		return netcdf.Var{}, 0, 0, fmt.Errorf("variable id %d out of range", varID)
	}
	name := r.vars[varID].Name
	var (
		v netcdf.Var
		n uint64
		t netcdf.Type
	)
	err := lockedErr(func() error {
		var err error
		if v, err = r.ds.Var(name); err != nil {
			return err
		}
		if n, err = v.Len(); err != nil {
			return err
		}
		t, err = v.Type()
		return err
	})
	if err != nil {
		return netcdf.Var{}, 0, 0, fmt.Errorf("failed to look up variable %s: %w", name, err)
	}
	return v, n, t, nil
}

// readFloat64Var reads a whole numeric variable and widens it to float64.
func readFloat64Var(v netcdf.Var, t netcdf.Type, length uint64) ([]float64, error) {
	ncMu.Lock()
	defer ncMu.Unlock()

	out := make([]float64, length)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, length)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, length)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}
