// Package store defines the array store contract used by the resampler and
// the streaming sink that writes interpolated cubes through it.
package store

import (
	"fmt"
	"math"

	"go.ngs.io/ncgrain/internal/domain"
)

// Opener opens source datasets and creates destination datasets.
type Opener interface {
	// OpenRead opens an existing dataset read-only.
	OpenRead(path string) (Reader, error)

	// CreateWrite creates a new dataset in define mode.
	CreateWrite(path string, opts CreateOptions) (Writer, error)
}

// CreateOptions control container creation.
type CreateOptions struct {
	// Overwrite replaces an existing file; otherwise creation fails if the path exists.
	Overwrite bool
}

// Reader is the read side of an array store.
type Reader interface {
	domain.SchemaSource

	// Attributes returns the attributes of a variable in declaration order.
	Attributes(varID int) ([]domain.Attribute, error)

	// GlobalAttributes returns the dataset-level attributes.
	GlobalAttributes() ([]domain.Attribute, error)

	// ReadFloat32s reads a whole variable as float32, converting and
	// unpacking (scale_factor/add_offset) as needed. Values declared missing
	// by _FillValue or missing_value are returned as NaN.
	ReadFloat32s(varID int) ([]float32, error)

	// ReadFloat64s reads a whole variable as float64, with the same
	// unpacking and missing-value handling as ReadFloat32s.
	ReadFloat64s(varID int) ([]float64, error)

	// Close releases the dataset.
	Close() error
}

// LayoutReader is implemented by readers that can report the storage layout
// of a variable.
type LayoutReader interface {
	// Layout returns the chunk shape (nil for contiguous storage) and the
	// compression settings of a variable.
	Layout(varID int) ([]int, Compression, error)
}

// Compression describes deflate settings for one variable.
type Compression struct {
	Shuffle bool `json:"shuffle"`
	Level   int  `json:"level"` // 1-9; 0 disables deflate.
}

// VarDef declares a variable in a dataset being created.
type VarDef struct {
	Name   string
	Type   domain.ElementType // TypeFloat or TypeDouble.
	DimIDs []int
	Attrs  []domain.Attribute

	// Chunks is the chunk shape, one entry per dimension. Nil keeps the
	// backend default layout.
	Chunks      []int
	Compression Compression
}

// Writer is the write side of an array store. Definitions must precede EndDef;
// data writes must follow it.
type Writer interface {
	DefineDim(name string, length int) (int, error)
	DefineVar(def VarDef) (int, error)
	PutGlobalAttributes(attrs []domain.Attribute) error
	EndDef() error

	WriteFloat32s(varID int, data []float32) error
	WriteFloat64s(varID int, data []float64) error

	// WriteFloat32Slice writes data into the hyperslab described by start and count.
	WriteFloat32Slice(varID int, start, count []int, data []float32) error

	Close() error
}

// CubeSink writes one time slice of the payload per call, at the caller
// supplied time index, covering every other axis fully. It keeps no copy of
// the cube.
type CubeSink struct {
	w      Writer
	varID  int
	start  []int
	count  []int
	volume int

	fill    float32
	hasFill bool
}

// NewCubeSink returns a sink for a (time, level, lat, lon) variable.
func NewCubeSink(w Writer, varID int, shape domain.Shape) *CubeSink {
	return &CubeSink{
		w:      w,
		varID:  varID,
		start:  []int{0, 0, 0, 0},
		count:  []int{1, shape.Level, shape.Lat, shape.Lon},
		volume: shape.CubeLen(),
	}
}

// SetFill makes the sink store NaN cells as fill, the variable's
// _FillValue. NaN cells are replaced in the caller's cube.
func (s *CubeSink) SetFill(fill float32) {
	s.fill, s.hasFill = fill, true
}

// WriteCube writes cube at destination time index timeIndex.
func (s *CubeSink) WriteCube(timeIndex int, cube []float32) error {
	if len(cube) != s.volume {
		return fmt.Errorf("cube has %d elements, want %d", len(cube), s.volume)
	}
	if s.hasFill {
		for i, v := range cube {
			if math.IsNaN(float64(v)) {
				cube[i] = s.fill
			}
		}
	}
	s.start[0] = timeIndex
	if err := s.w.WriteFloat32Slice(s.varID, s.start, s.count, cube); err != nil {
		return fmt.Errorf("failed to write time slice %d: %w", timeIndex, err)
	}
	return nil
}
