package domain

// Shape holds the original lengths of the four payload axes.
type Shape struct {
	Time  int `json:"time"`
	Level int `json:"level"`
	Lat   int `json:"lat"`
	Lon   int `json:"lon"`
}

// CubeLen returns the number of elements in one level × lat × lon cube.
func (s Shape) CubeLen() int {
	return s.Level * s.Lat * s.Lon
}

// Len returns the number of elements in the whole payload.
func (s Shape) Len() int {
	return s.Time * s.CubeLen()
}

// StrideTable holds row-major flat-offset multipliers for the payload axes
// (time, level, lat, lon). Lon is the fastest-varying axis.
type StrideTable struct {
	Time  int `json:"time"`
	Level int `json:"level"`
	Lat   int `json:"lat"`
	Lon   int `json:"lon"`
}

// NewStrideTable derives strides from original axis lengths.
func NewStrideTable(s Shape) StrideTable {
	return StrideTable{
		Time:  s.Level * s.Lat * s.Lon,
		Level: s.Lat * s.Lon,
		Lat:   s.Lon,
		Lon:   1,
	}
}

// BuildStrides validates that the payload is ordered (time, level, lat, lon)
// and returns its stride table.
func BuildStrides(c *Catalog) (StrideTable, error) {
	p := c.Payload()
	want := []int{c.Roles.TimeDim, c.Roles.LevelDim, c.Roles.LatDim, c.Roles.LonDim}
	if len(p.DimIDs) != len(want) {
		return StrideTable{}, SchemaError("build strides", "payload has %d dimensions, want 4 (time, level, lat, lon)", len(p.DimIDs)).
			WithVar(p.Name, p.ID)
	}
	for i, id := range p.DimIDs {
		if id != want[i] {
			return StrideTable{}, SchemaError("build strides", "payload dimension %d is %q, want %q",
				i, c.Dims[id].Name, c.Dims[want[i]].Name).WithVar(p.Name, p.ID)
		}
	}
	return NewStrideTable(c.Shape()), nil
}

// Offset returns the flat index of (t, lvl, lat, lon).
func (s StrideTable) Offset(t, lvl, lat, lon int) int {
	return s.Time*t + s.Level*lvl + s.Lat*lat + s.Lon*lon
}
