package store

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"go.ngs.io/ncgrain/internal/domain"
)

// Attribute names of the CF packing convention.
const (
	ScaleFactorAttr = "scale_factor"
	AddOffsetAttr   = "add_offset"
	FillValueAttr   = "_FillValue"
	MissingAttr     = "missing_value"
)

// DefaultFillFloat is the NetCDF default fill value of FLOAT variables
// (NC_FILL_FLOAT).
const DefaultFillFloat float32 = 9.9692099683868690e+36

// valueAttrs hold values in the stored (possibly packed) representation and
// are meaningless once the variable is converted to another element type.
var valueAttrs = map[string]bool{
	ScaleFactorAttr: true,
	AddOffsetAttr:   true,
	FillValueAttr:   true,
	MissingAttr:     true,
	"valid_range":   true,
	"valid_min":     true,
	"valid_max":     true,
	"actual_range":  true,
}

// AttrFloat64 returns a numeric attribute value as float64. Slice values
// yield their first element.
func AttrFloat64(a domain.Attribute) (float64, error) {
	v := a.Value
	switch s := v.(type) {
	case []float32:
		if len(s) == 0 {
			return 0, fmt.Errorf("attribute %s is empty", a.Name)
		}
		v = s[0]
	case []float64:
		if len(s) == 0 {
			return 0, fmt.Errorf("attribute %s is empty", a.Name)
		}
		v = s[0]
	case []int16:
		if len(s) == 0 {
			return 0, fmt.Errorf("attribute %s is empty", a.Name)
		}
		v = s[0]
	case []int32:
		if len(s) == 0 {
			return 0, fmt.Errorf("attribute %s is empty", a.Name)
		}
		v = s[0]
	case []int8:
		if len(s) == 0 {
			return 0, fmt.Errorf("attribute %s is empty", a.Name)
		}
		v = s[0]
	case string:
		return 0, fmt.Errorf("attribute %s is text, not numeric", a.Name)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	return f, nil
}

// AttrFloat64s returns every element of a numeric attribute as float64.
func AttrFloat64s(a domain.Attribute) ([]float64, error) {
	switch s := a.Value.(type) {
	case []float32:
		return widen(s), nil
	case []float64:
		return widen(s), nil
	case []int8:
		return widen(s), nil
	case []int16:
		return widen(s), nil
	case []int32:
		return widen(s), nil
	case []uint8:
		return widen(s), nil
	case []uint16:
		return widen(s), nil
	case []uint32:
		return widen(s), nil
	}
	f, err := AttrFloat64(a)
	if err != nil {
		return nil, err
	}
	return []float64{f}, nil
}

func widen[T int8 | int16 | int32 | uint8 | uint16 | uint32 | float32 | float64](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

// FindAttr returns the attribute named name.
func FindAttr(attrs []domain.Attribute, name string) (domain.Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return domain.Attribute{}, false
}

// Packing returns the CF scale and offset of a variable. packed is false when
// neither attribute is present, in which case scale is 1 and offset 0.
func Packing(attrs []domain.Attribute) (scale, offset float64, packed bool, err error) {
	scale = 1
	if a, ok := FindAttr(attrs, ScaleFactorAttr); ok {
		if scale, err = AttrFloat64(a); err != nil {
			return 0, 0, false, err
		}
		packed = true
	}
	if a, ok := FindAttr(attrs, AddOffsetAttr); ok {
		if offset, err = AttrFloat64(a); err != nil {
			return 0, 0, false, err
		}
		packed = true
	}
	return scale, offset, packed, nil
}

// MissingValues returns the stored values declared missing by _FillValue and
// missing_value.
func MissingValues(attrs []domain.Attribute) ([]float64, error) {
	var out []float64
	for _, name := range []string{FillValueAttr, MissingAttr} {
		a, ok := FindAttr(attrs, name)
		if !ok {
			continue
		}
		vals, err := AttrFloat64s(a)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// Unpacker turns stored values into physical values. Values declared missing
// become NaN; the rest are scaled and offset when the variable is packed.
type Unpacker struct {
	Scale, Offset float64
	Packed        bool
	Missing       []float64
}

// NewUnpacker reads the packing and missing-value attributes of a variable.
func NewUnpacker(attrs []domain.Attribute) (Unpacker, error) {
	scale, offset, packed, err := Packing(attrs)
	if err != nil {
		return Unpacker{}, err
	}
	missing, err := MissingValues(attrs)
	if err != nil {
		return Unpacker{}, err
	}
	return Unpacker{Scale: scale, Offset: offset, Packed: packed, Missing: missing}, nil
}

// Identity reports whether Value returns every stored value unchanged.
func (u Unpacker) Identity() bool {
	return !u.Packed && len(u.Missing) == 0
}

// Value converts one stored value.
func (u Unpacker) Value(raw float64) float64 {
	for _, m := range u.Missing {
		if raw == m {
			return math.NaN()
		}
	}
	if u.Packed {
		return raw*u.Scale + u.Offset
	}
	return raw
}

// CopyableAttrs drops reserved attributes (leading underscore other than
// _FillValue) and, when converted is true, every attribute whose value is
// tied to the stored element type.
func CopyableAttrs(attrs []domain.Attribute, converted bool) []domain.Attribute {
	out := make([]domain.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if strings.HasPrefix(a.Name, "_") && a.Name != FillValueAttr {
			continue
		}
		if converted && valueAttrs[a.Name] {
			continue
		}
		out = append(out, a)
	}
	return out
}
