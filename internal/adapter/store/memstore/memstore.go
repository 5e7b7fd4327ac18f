// Package memstore is an in-memory array store. It backs tests and dry runs
// and behaves like the NetCDF backend where the resampler can observe it:
// define mode before data mode, no-clobber creation and row-major hyperslabs.
package memstore

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

// ErrNotFound is returned when opening a path that holds no dataset.
var ErrNotFound = errors.New("dataset not found")

// ErrExists is returned when creating over an existing dataset without overwrite.
var ErrExists = errors.New("dataset already exists")

// Dataset is an in-memory dataset. Data holds every variable's values as
// float64 in row-major order; unwritten elements of created datasets hold the
// variable's _FillValue, or NaN without one.
type Dataset struct {
	Dims        []domain.Dimension
	Vars        []domain.Variable
	Attrs       map[int][]domain.Attribute
	Global      []domain.Attribute
	Data        map[int][]float64
	Chunks      map[int][]int
	Compression map[int]store.Compression
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Attrs:       map[int][]domain.Attribute{},
		Data:        map[int][]float64{},
		Chunks:      map[int][]int{},
		Compression: map[int]store.Compression{},
	}
}

// AddDim appends a dimension and returns its id.
func (d *Dataset) AddDim(name string, length int) int {
	id := len(d.Dims)
	d.Dims = append(d.Dims, domain.Dimension{Name: name, ID: id, Length: length})
	return id
}

// AddVar appends a variable over the named dimensions and returns its id.
// values may be nil for a variable that is never read.
func (d *Dataset) AddVar(name string, t domain.ElementType, dimNames []string, values []float64, attrs ...domain.Attribute) int {
	ids := make([]int, len(dimNames))
	for i, n := range dimNames {
		ids[i] = domain.NoIndex
		for _, dim := range d.Dims {
			if dim.Name == n {
				ids[i] = dim.ID
			}
		}
	}
	id := len(d.Vars)
	d.Vars = append(d.Vars, domain.Variable{Name: name, ID: id, Type: t, DimIDs: ids, AttrCount: len(attrs)})
	d.Attrs[id] = attrs
	if values != nil {
		d.Data[id] = values
	}
	return id
}

// VarByName returns the id of the named variable or NoIndex.
func (d *Dataset) VarByName(name string) int {
	for _, v := range d.Vars {
		if v.Name == name {
			return v.ID
		}
	}
	return domain.NoIndex
}

func (d *Dataset) varLen(id int) int {
	n := 1
	for _, dim := range d.Vars[id].DimIDs {
		n *= d.Dims[dim].Length
	}
	return n
}

// Store holds datasets by path.
type Store struct {
	mu       sync.Mutex
	datasets map[string]*Dataset

	// FailSlice, when set, is consulted before every hyperslab write and
	// fails the write if it returns an error.
	FailSlice func(varName string, start []int) error

	opens   int
	creates int
}

// New returns an empty store.
func New() *Store {
	return &Store{datasets: map[string]*Dataset{}}
}

// Put stores ds under path, replacing any existing dataset.
func (s *Store) Put(path string, ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[path] = ds
}

// Get returns the dataset stored under path.
func (s *Store) Get(path string) (*Dataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[path]
	return ds, ok
}

// Calls returns how many times OpenRead and CreateWrite were called.
func (s *Store) Calls() (opens, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.creates
}

// OpenRead returns a reader over the dataset at path.
func (s *Store) OpenRead(path string) (store.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	ds, ok := s.datasets[path]
	if !ok {
		return nil, fmt.Errorf("failed to open %s: %w", path, ErrNotFound)
	}
	return &reader{ds: ds}, nil
}

// CreateWrite registers a new empty dataset at path and returns its writer.
func (s *Store) CreateWrite(path string, opts store.CreateOptions) (store.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if _, ok := s.datasets[path]; ok && !opts.Overwrite {
		return nil, fmt.Errorf("failed to create %s: %w", path, ErrExists)
	}
	ds := NewDataset()
	s.datasets[path] = ds
	return &writer{ds: ds, store: s, define: true}, nil
}

type reader struct {
	ds *Dataset
}

func (r *reader) Dimensions() ([]domain.Dimension, error) { return r.ds.Dims, nil }
func (r *reader) Variables() ([]domain.Variable, error)   { return r.ds.Vars, nil }
func (r *reader) Close() error                            { return nil }

func (r *reader) GlobalAttributes() ([]domain.Attribute, error) { return r.ds.Global, nil }

func (r *reader) Attributes(varID int) ([]domain.Attribute, error) {
	if varID < 0 || varID >= len(r.ds.Vars) {
		return nil, fmt.Errorf("variable id %d out of range", varID)
	}
	return r.ds.Attrs[varID], nil
}

func (r *reader) ReadFloat64s(varID int) ([]float64, error) {
	if varID < 0 || varID >= len(r.ds.Vars) {
		return nil, fmt.Errorf("variable id %d out of range", varID)
	}
	data, ok := r.ds.Data[varID]
	if !ok {
		return nil, fmt.Errorf("variable %s has no data", r.ds.Vars[varID].Name)
	}
	if want := r.ds.varLen(varID); len(data) != want {
		return nil, fmt.Errorf("variable %s has %d values, dimensions need %d", r.ds.Vars[varID].Name, len(data), want)
	}
	u, err := store.NewUnpacker(r.ds.Attrs[varID])
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = u.Value(v)
	}
	return out, nil
}

func (r *reader) Layout(varID int) ([]int, store.Compression, error) {
	if varID < 0 || varID >= len(r.ds.Vars) {
		return nil, store.Compression{}, fmt.Errorf("variable id %d out of range", varID)
	}
	return r.ds.Chunks[varID], r.ds.Compression[varID], nil
}

func (r *reader) ReadFloat32s(varID int) ([]float32, error) {
	wide, err := r.ReadFloat64s(varID)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(wide))
	for i, v := range wide {
		out[i] = float32(v)
	}
	return out, nil
}

type writer struct {
	ds     *Dataset
	store  *Store
	define bool
	closed bool
}

func (w *writer) DefineDim(name string, length int) (int, error) {
	if !w.define {
		return 0, errors.New("not in define mode")
	}
	for _, d := range w.ds.Dims {
		if d.Name == name {
			return 0, fmt.Errorf("dimension %s already defined", name)
		}
	}
	return w.ds.AddDim(name, length), nil
}

func (w *writer) DefineVar(def store.VarDef) (int, error) {
	if !w.define {
		return 0, errors.New("not in define mode")
	}
	if def.Type != domain.TypeFloat && def.Type != domain.TypeDouble {
		return 0, fmt.Errorf("variable %s: unsupported output type %v", def.Name, def.Type)
	}
	for _, id := range def.DimIDs {
		if id < 0 || id >= len(w.ds.Dims) {
			return 0, fmt.Errorf("variable %s: dimension id %d not defined", def.Name, id)
		}
	}
	if def.Chunks != nil && len(def.Chunks) != len(def.DimIDs) {
		return 0, fmt.Errorf("variable %s: %d chunk sizes for %d dimensions", def.Name, len(def.Chunks), len(def.DimIDs))
	}
	id := len(w.ds.Vars)
	w.ds.Vars = append(w.ds.Vars, domain.Variable{
		Name:      def.Name,
		ID:        id,
		Type:      def.Type,
		DimIDs:    append([]int(nil), def.DimIDs...),
		AttrCount: len(def.Attrs),
	})
	w.ds.Attrs[id] = append([]domain.Attribute(nil), def.Attrs...)
	if def.Chunks != nil {
		w.ds.Chunks[id] = append([]int(nil), def.Chunks...)
	}
	w.ds.Compression[id] = def.Compression
	return id, nil
}

func (w *writer) PutGlobalAttributes(attrs []domain.Attribute) error {
	if !w.define {
		return errors.New("not in define mode")
	}
	w.ds.Global = append(w.ds.Global, attrs...)
	return nil
}

func (w *writer) EndDef() error {
	if !w.define {
		return errors.New("not in define mode")
	}
	w.define = false
	for id := range w.ds.Vars {
		fill := math.NaN()
		if a, ok := store.FindAttr(w.ds.Attrs[id], store.FillValueAttr); ok {
			if f, err := store.AttrFloat64(a); err == nil {
				fill = f
			}
		}
		data := make([]float64, w.ds.varLen(id))
		for i := range data {
			data[i] = fill
		}
		w.ds.Data[id] = data
	}
	return nil
}

func (w *writer) target(varID int, n int) ([]float64, error) {
	if w.define {
		return nil, errors.New("in define mode")
	}
	if w.closed {
		return nil, errors.New("dataset closed")
	}
	if varID < 0 || varID >= len(w.ds.Vars) {
		return nil, fmt.Errorf("variable id %d not defined", varID)
	}
	data := w.ds.Data[varID]
	if n > len(data) {
		return nil, fmt.Errorf("variable %s: %d values exceed length %d", w.ds.Vars[varID].Name, n, len(data))
	}
	return data, nil
}

func (w *writer) WriteFloat32s(varID int, values []float32) error {
	data, err := w.target(varID, len(values))
	if err != nil {
		return err
	}
	for i, v := range values {
		data[i] = float64(v)
	}
	return nil
}

func (w *writer) WriteFloat64s(varID int, values []float64) error {
	data, err := w.target(varID, len(values))
	if err != nil {
		return err
	}
	copy(data, values)
	return nil
}

func (w *writer) WriteFloat32Slice(varID int, start, count []int, values []float32) error {
	data, err := w.target(varID, 0)
	if err != nil {
		return err
	}
	v := w.ds.Vars[varID]
	if len(start) != len(v.DimIDs) || len(count) != len(v.DimIDs) {
		return fmt.Errorf("variable %s: hyperslab rank %d/%d, want %d", v.Name, len(start), len(count), len(v.DimIDs))
	}
	n := 1
	for i, id := range v.DimIDs {
		if start[i] < 0 || count[i] < 0 || start[i]+count[i] > w.ds.Dims[id].Length {
			return fmt.Errorf("variable %s: hyperslab %v+%v out of bounds on %s", v.Name, start, count, w.ds.Dims[id].Name)
		}
		n *= count[i]
	}
	if n != len(values) {
		return fmt.Errorf("variable %s: hyperslab holds %d values, got %d", v.Name, n, len(values))
	}
	if w.store.FailSlice != nil {
		if err := w.store.FailSlice(v.Name, start); err != nil {
			return err
		}
	}

	strides := make([]int, len(v.DimIDs))
	acc := 1
	for i := len(v.DimIDs) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= w.ds.Dims[v.DimIDs[i]].Length
	}
	idx := make([]int, len(count))
	for k := range values {
		off := 0
		for i := range idx {
			off += (start[i] + idx[i]) * strides[i]
		}
		data[off] = float64(values[k])
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < count[i] {
				break
			}
			idx[i] = 0
		}
	}
	return nil
}

func (w *writer) Close() error {
	w.closed = true
	return nil
}
