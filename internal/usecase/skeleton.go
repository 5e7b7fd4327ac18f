package usecase

import (
	"fmt"
	"time"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

const historyAttr = "history"

// outputIDs are the destination ids of the variables the resampler writes.
type outputIDs struct {
	payload int
	time    int

	// fill replaces missing payload cells when hasFill is set.
	fill    float32
	hasFill bool
}

// writeSkeleton defines the destination dataset, leaves define mode and
// writes every coordinate variable. The time dimension is resized to the
// expanded length; auxiliary variables are not carried over.
func (uc *ResampleUseCase) writeSkeleton(src store.Reader, dst store.Writer, cat *domain.Catalog, sched domain.Schedule, newTimes []float64) (outputIDs, error) {
	out := outputIDs{payload: domain.NoIndex, time: domain.NoIndex}
	shape := cat.Shape()
	expanded := sched.ExpandedLength(shape.Time)

	dimMap := make(map[int]int, len(cat.Dims))
	for _, d := range cat.Dims {
		length := d.Length
		if d.ID == cat.Roles.TimeDim {
			length = expanded
		}
		id, err := dst.DefineDim(d.Name, length)
		if err != nil {
			return out, domain.StoreIOError("define dimension", fmt.Errorf("%s: %w", d.Name, err))
		}
		dimMap[d.ID] = id
	}

	type coord struct {
		src, dst int
		typ      domain.ElementType
	}
	var coords []coord

	for _, v := range cat.Vars {
		isPayload := v.ID == cat.Roles.PayloadVar
		if !isPayload && !cat.IsCoordinate(v.ID) {
			continue
		}

		attrs, err := src.Attributes(v.ID)
		if err != nil {
			return out, domain.StoreIOError("read attributes", err).WithVar(v.Name, v.ID)
		}
		_, _, packed, err := store.Packing(attrs)
		if err != nil {
			return out, domain.SchemaError("read packing attributes", "%v", err).WithVar(v.Name, v.ID)
		}

		def := store.VarDef{Name: v.Name, DimIDs: make([]int, len(v.DimIDs))}
		for i, id := range v.DimIDs {
			def.DimIDs[i] = dimMap[id]
		}
		switch {
		case isPayload:
			def.Type = domain.TypeFloat
			def.Chunks = uc.layout.payloadChunks(shape, expanded)
			def.Compression = store.Compression{Shuffle: uc.layout.Shuffle, Level: uc.layout.DeflateLevel}
		case v.ID == cat.Roles.TimeVar:
			def.Type = domain.TypeDouble
			def.Chunks = uc.layout.timeChunks(len(v.DimIDs), expanded)
		case v.Type == domain.TypeFloat || v.Type == domain.TypeDouble:
			def.Type = v.Type
		default:
			def.Type = domain.TypeDouble
		}
		converted := packed || def.Type != v.Type
		def.Attrs = store.CopyableAttrs(attrs, converted)
		if isPayload {
			missing, err := store.MissingValues(attrs)
			if err != nil {
				return out, domain.SchemaError("read missing-value attributes", "%v", err).WithVar(v.Name, v.ID)
			}
			switch {
			case len(missing) == 0:
			case converted:
				out.fill, out.hasFill = store.DefaultFillFloat, true
				def.Attrs = append(def.Attrs,
					domain.Attribute{Name: store.FillValueAttr, Value: []float32{store.DefaultFillFloat}},
					domain.Attribute{Name: store.MissingAttr, Value: []float32{store.DefaultFillFloat}},
				)
			default:
				out.fill, out.hasFill = float32(missing[0]), true
			}
		}

		id, err := dst.DefineVar(def)
		if err != nil {
			return out, domain.StoreIOError("define variable", err).WithVar(v.Name, v.ID)
		}
		switch {
		case isPayload:
			out.payload = id
		case v.ID == cat.Roles.TimeVar:
			out.time = id
		default:
			coords = append(coords, coord{src: v.ID, dst: id, typ: def.Type})
		}
	}

	global, err := src.GlobalAttributes()
	if err != nil {
		return out, domain.StoreIOError("read global attributes", err)
	}
	global = withHistory(store.CopyableAttrs(global, false), cat.Payload().Name, sched, time.Now().UTC())
	if err := dst.PutGlobalAttributes(global); err != nil {
		return out, domain.StoreIOError("write global attributes", err)
	}

	if err := dst.EndDef(); err != nil {
		return out, domain.StoreIOError("end define mode", err)
	}

	for _, c := range coords {
		name := cat.Var(c.src).Name
		values, err := src.ReadFloat64s(c.src)
		if err != nil {
			return out, domain.StoreIOError("read coordinate", err).WithVar(name, c.src)
		}
		if c.typ == domain.TypeFloat {
			narrow := make([]float32, len(values))
			for i, x := range values {
				narrow[i] = float32(x)
			}
			err = dst.WriteFloat32s(c.dst, narrow)
		} else {
			err = dst.WriteFloat64s(c.dst, values)
		}
		if err != nil {
			return out, domain.StoreIOError("write coordinate", err).WithVar(name, c.dst)
		}
	}
	if err := dst.WriteFloat64s(out.time, newTimes); err != nil {
		return out, domain.StoreIOError("write time axis", err).WithVar(domain.TimeName, out.time)
	}
	return out, nil
}

// withHistory prepends a line describing this run to the history attribute.
func withHistory(attrs []domain.Attribute, payload string, sched domain.Schedule, now time.Time) []domain.Attribute {
	line := fmt.Sprintf("%s: ncgrain upsampled %s to %d-minute grains (%d per interval)",
		now.Format(time.RFC3339), payload, sched.GranularityMinutes, sched.GrainsPerInterval)
	for i, a := range attrs {
		if a.Name != historyAttr {
			continue
		}
		if prev, ok := a.Value.(string); ok && prev != "" {
			line += "\n" + prev
		}
		out := append([]domain.Attribute(nil), attrs...)
		out[i] = domain.Attribute{Name: historyAttr, Value: line}
		return out
	}
	return append(attrs, domain.Attribute{Name: historyAttr, Value: line})
}

// payloadChunks returns the (time, level, lat, lon) chunk shape, clamped to
// the dimension lengths. Nil keeps the backend default when an axis is empty.
func (l Layout) payloadChunks(s domain.Shape, expandedTime int) []int {
	lengths := [4]int{expandedTime, s.Level, s.Lat, s.Lon}
	defaults := [4]int{1, s.Level, s.Lat, s.Lon}
	out := make([]int, 4)
	for i := range out {
		if lengths[i] == 0 {
			return nil
		}
		out[i] = defaults[i]
		if c := l.PayloadChunks[i]; c > 0 {
			out[i] = min(c, lengths[i])
		}
	}
	return out
}

func (l Layout) timeChunks(rank, expandedTime int) []int {
	if rank != 1 || expandedTime == 0 {
		return nil
	}
	if l.TimeChunk > 0 {
		return []int{min(l.TimeChunk, expandedTime)}
	}
	return []int{expandedTime}
}
