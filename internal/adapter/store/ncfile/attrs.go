package ncfile

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/fhs/go-netcdf/netcdf"
	"github.com/spf13/cast"

	"go.ngs.io/ncgrain/internal/domain"
)

func convertAttrs(m api.AttributeMap) []domain.Attribute {
	if m == nil {
		return nil
	}
	keys := m.Keys()
	out := make([]domain.Attribute, 0, len(keys))
	for _, k := range keys {
		v, ok := m.Get(k)
		if !ok {
			continue
		}
		out = append(out, domain.Attribute{Name: k, Value: v})
	}
	return out
}

// writeAttr stores a under the classic data model, which has no unsigned or
// 64-bit integer types: those are widened to INT or DOUBLE.
func writeAttr(at netcdf.Attr, a domain.Attribute) error {
	var err error
	switch v := a.Value.(type) {
	case string:
		err = at.WriteBytes([]byte(v))
	case float32:
		err = at.WriteFloat32s([]float32{v})
	case []float32:
		err = at.WriteFloat32s(v)
	case float64:
		err = at.WriteFloat64s([]float64{v})
	case []float64:
		err = at.WriteFloat64s(v)
	case int16:
		err = at.WriteInt16s([]int16{v})
	case []int16:
		err = at.WriteInt16s(v)
	case int32:
		err = at.WriteInt32s([]int32{v})
	case []int32:
		err = at.WriteInt32s(v)
	case int8:
		err = at.WriteInt16s([]int16{int16(v)})
	case []int8:
		err = at.WriteInt16s(widen[int8, int16](v))
	case int, uint8, uint16:
		err = at.WriteInt32s([]int32{cast.ToInt32(v)})
	case []uint8:
		err = at.WriteInt32s(widen[uint8, int32](v))
	case []uint16:
		err = at.WriteInt32s(widen[uint16, int32](v))
	case int64, uint32, uint64:
		err = at.WriteFloat64s([]float64{cast.ToFloat64(v)})
	case []int64:
		err = at.WriteFloat64s(widen[int64, float64](v))
	case []uint32:
		err = at.WriteFloat64s(widen[uint32, float64](v))
	case []uint64:
		err = at.WriteFloat64s(widen[uint64, float64](v))
	default:
		return fmt.Errorf("attribute %s: unsupported value type %T", a.Name, a.Value)
	}
	if err != nil {
		return fmt.Errorf("failed to write attribute %s: %w", a.Name, err)
	}
	return nil
}

func widen[From int8 | uint8 | uint16 | int64 | uint32 | uint64, To int16 | int32 | float64](in []From) []To {
	out := make([]To, len(in))
	for i, x := range in {
		out[i] = To(x)
	}
	return out
}
