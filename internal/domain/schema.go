// Package domain contains the temporal resampling core: schema roles, the
// stride table, grain scheduling, time-axis reconstruction and error kinds.
package domain

import (
	"fmt"
	"sort"
)

// Axis role names. Dimensions and coordinate variables are matched by exact name.
const (
	TimeName  = "time"
	LevelName = "level"
	LatName   = "lat"
	LonName   = "lon"
)

// ElementType is the numeric type of a variable's elements as stored.
type ElementType int

// Element types, in CDL order.
const (
	TypeUnknown ElementType = iota
	TypeByte
	TypeChar
	TypeShort
	TypeInt
	TypeFloat
	TypeDouble
	TypeUByte
	TypeUShort
	TypeUInt
	TypeInt64
	TypeUInt64
	TypeString
)

var elementTypeNames = map[ElementType]string{
	TypeByte:   "byte",
	TypeChar:   "char",
	TypeShort:  "short",
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeDouble: "double",
	TypeUByte:  "ubyte",
	TypeUShort: "ushort",
	TypeUInt:   "uint",
	TypeInt64:  "int64",
	TypeUInt64: "uint64",
	TypeString: "string",
}

// String returns the CDL name of the type.
func (t ElementType) String() string {
	if name, ok := elementTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseElementType maps a CDL type name to an ElementType.
func ParseElementType(cdl string) ElementType {
	for t, name := range elementTypeNames {
		if name == cdl {
			return t
		}
	}
	return TypeUnknown
}

// Dimension describes one dataset dimension. ID is unique within a dataset.
type Dimension struct {
	Name   string `json:"name"`
	ID     int    `json:"id"`
	Length int    `json:"length"`
}

// Variable describes one dataset variable. Length is the product of the
// lengths of the referenced dimensions.
type Variable struct {
	Name      string      `json:"name"`
	ID        int         `json:"id"`
	Type      ElementType `json:"-"`
	DimIDs    []int       `json:"dim_ids"`
	AttrCount int         `json:"attr_count"`
	Length    int         `json:"length"`
}

// Attribute is a name/value pair attached to a variable. Value holds a
// string, a numeric scalar or a numeric slice.
type Attribute struct {
	Name  string
	Value any
}

// SchemaSource enumerates the dimensions and variables of a dataset in index order.
type SchemaSource interface {
	Dimensions() ([]Dimension, error)
	Variables() ([]Variable, error)
}

// RoleTable maps axis roles to dimension and variable ids. Unresolved
// entries never escape Discover.
type RoleTable struct {
	TimeDim, LevelDim, LatDim, LonDim int
	TimeVar, LevelVar, LatVar, LonVar int
	PayloadVar                        int
	// AuxVars are non-coordinate variables that were not selected as payload.
	AuxVars []int
}

// Catalog is the discovered schema of a dataset plus its role table.
type Catalog struct {
	Dims  []Dimension
	Vars  []Variable
	Roles RoleTable
}

// Dim returns the dimension with the given id.
func (c *Catalog) Dim(id int) Dimension {
	return c.Dims[id]
}

// Var returns the variable with the given id.
func (c *Catalog) Var(id int) Variable {
	return c.Vars[id]
}

// Payload returns the payload variable.
func (c *Catalog) Payload() Variable {
	return c.Vars[c.Roles.PayloadVar]
}

// Shape returns the original (time, level, lat, lon) lengths.
func (c *Catalog) Shape() Shape {
	return Shape{
		Time:  c.Dims[c.Roles.TimeDim].Length,
		Level: c.Dims[c.Roles.LevelDim].Length,
		Lat:   c.Dims[c.Roles.LatDim].Length,
		Lon:   c.Dims[c.Roles.LonDim].Length,
	}
}

// IsCoordinate reports whether varID is the time variable or one of the
// level/lat/lon coordinate variables.
func (c *Catalog) IsCoordinate(varID int) bool {
	r := c.Roles
	return varID == r.TimeVar || varID == r.LevelVar || varID == r.LatVar || varID == r.LonVar
}

// Discover reads the schema from src and classifies every dimension and
// variable by role. payloadHint, when non-empty, names the payload variable
// explicitly.
func Discover(src SchemaSource, payloadHint string) (*Catalog, error) {
	dims, err := src.Dimensions()
	if err != nil {
		return nil, StoreIOError("enumerate dimensions", err)
	}
	vars, err := src.Variables()
	if err != nil {
		return nil, StoreIOError("enumerate variables", err)
	}
	return NewCatalog(dims, vars, payloadHint)
}

// NewCatalog classifies already enumerated dimensions and variables.
//
//nolint:gocyclo // One branch per role keeps the rules readable.
func NewCatalog(dims []Dimension, vars []Variable, payloadHint string) (*Catalog, error) {
	for i, d := range dims {
		if d.ID != i {
			return nil, SchemaError("discover", "dimension %q has id %d at index %d", d.Name, d.ID, i)
		}
		if d.Length < 0 {
			return nil, SchemaError("discover", "dimension %q has negative length %d", d.Name, d.Length)
		}
	}

	roles := RoleTable{
		TimeDim: NoIndex, LevelDim: NoIndex, LatDim: NoIndex, LonDim: NoIndex,
		TimeVar: NoIndex, LevelVar: NoIndex, LatVar: NoIndex, LonVar: NoIndex,
		PayloadVar: NoIndex,
	}

	dimSlots := map[string]*int{
		TimeName: &roles.TimeDim, LevelName: &roles.LevelDim, LatName: &roles.LatDim, LonName: &roles.LonDim,
	}
	for _, d := range dims {
		slot, ok := dimSlots[d.Name]
		if !ok {
			continue
		}
		if *slot != NoIndex {
			return nil, SchemaError("discover", "dimension %q declared twice", d.Name)
		}
		*slot = d.ID
	}
	for _, name := range []string{TimeName, LevelName, LatName, LonName} {
		if *dimSlots[name] == NoIndex {
			return nil, SchemaError("discover", "missing %q dimension", name)
		}
	}

	varSlots := map[string]*int{
		TimeName: &roles.TimeVar, LevelName: &roles.LevelVar, LatName: &roles.LatVar, LonName: &roles.LonVar,
	}
	// Lengths are filled in on a copy; the caller's slice stays untouched.
	vars = append([]Variable(nil), vars...)
	var candidates []int
	for i := range vars {
		v := &vars[i]
		if v.ID != i {
			return nil, SchemaError("discover", "variable %q has id %d at index %d", v.Name, v.ID, i)
		}
		length := 1
		for _, id := range v.DimIDs {
			if id < 0 || id >= len(dims) {
				return nil, SchemaError("discover", "variable %q references unknown dimension id %d", v.Name, id).WithVar(v.Name, v.ID)
			}
			length *= dims[id].Length
		}
		v.Length = length

		if slot, ok := varSlots[v.Name]; ok {
			*slot = v.ID
			continue
		}
		candidates = append(candidates, v.ID)
	}
	if roles.TimeVar == NoIndex {
		return nil, SchemaError("discover", "missing %q variable", TimeName)
	}
	if tv := vars[roles.TimeVar]; len(tv.DimIDs) != 1 || tv.DimIDs[0] != roles.TimeDim {
		return nil, SchemaError("discover", "%q variable must be one-dimensional over the %q dimension", TimeName, TimeName).WithVar(tv.Name, tv.ID)
	}

	payload, aux, err := selectPayload(vars, candidates, roles, payloadHint)
	if err != nil {
		return nil, err
	}
	roles.PayloadVar = payload
	roles.AuxVars = aux

	return &Catalog{Dims: dims, Vars: vars, Roles: roles}, nil
}

// selectPayload picks the single payload variable among the non-coordinate
// candidates.
func selectPayload(vars []Variable, candidates []int, roles RoleTable, hint string) (int, []int, error) {
	others := func(keep int) []int {
		var aux []int
		for _, id := range candidates {
			if id != keep {
				aux = append(aux, id)
			}
		}
		return aux
	}

	if hint != "" {
		for _, id := range candidates {
			if vars[id].Name == hint {
				return id, others(id), nil
			}
		}
		return NoIndex, nil, SchemaError("discover", "payload variable %q not found among non-coordinate variables", hint)
	}

	switch len(candidates) {
	case 0:
		return NoIndex, nil, SchemaError("discover", "no payload variable")
	case 1:
		return candidates[0], nil, nil
	}

	var gridded []int
	for _, id := range candidates {
		if len(vars[id].DimIDs) == 4 && containsAll(vars[id].DimIDs, roles.TimeDim, roles.LevelDim, roles.LatDim, roles.LonDim) {
			gridded = append(gridded, id)
		}
	}
	if len(gridded) == 1 {
		return gridded[0], others(gridded[0]), nil
	}

	names := make([]string, 0, len(candidates))
	for _, id := range candidates {
		names = append(names, vars[id].Name)
	}
	sort.Strings(names)
	return NoIndex, nil, SchemaError("discover", "ambiguous payload variable: candidates %v", names)
}

func containsAll(ids []int, want ...int) bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

// Describe returns a short human readable summary of the role table.
func (c *Catalog) Describe() string {
	return fmt.Sprintf("time=%s level=%s lat=%s lon=%s payload=%s",
		c.Vars[c.Roles.TimeVar].Name,
		c.varName(c.Roles.LevelVar),
		c.varName(c.Roles.LatVar),
		c.varName(c.Roles.LonVar),
		c.Vars[c.Roles.PayloadVar].Name)
}

func (c *Catalog) varName(id int) string {
	if id == NoIndex {
		return "-"
	}
	return c.Vars[id].Name
}
