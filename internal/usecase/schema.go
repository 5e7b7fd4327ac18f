package usecase

import (
	"fmt"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

// AttributeInfo describes one attribute without its value.
type AttributeInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// VariableInfo describes one variable of an inspected dataset.
type VariableInfo struct {
	Name       string          `json:"name"`
	ID         int             `json:"id"`
	Type       string          `json:"type"`
	Dimensions []string        `json:"dimensions"`
	Length     int             `json:"length"`
	Role       string          `json:"role,omitempty"`
	Attributes []AttributeInfo `json:"attributes"`

	// Storage layout, reported by backends that expose it.
	Chunks      []int              `json:"chunks,omitempty"`
	Compression *store.Compression `json:"compression,omitempty"`
}

// SchemaReport is the discovered layout of a dataset.
type SchemaReport struct {
	Path       string              `json:"path"`
	Dimensions []domain.Dimension  `json:"dimensions"`
	Variables  []VariableInfo      `json:"variables"`
	Shape      *domain.Shape       `json:"shape,omitempty"`
	Strides    *domain.StrideTable `json:"strides,omitempty"`

	// RoleError explains why roles could not be assigned; the dimension
	// and variable listing is still complete.
	RoleError string `json:"role_error,omitempty"`
}

// SchemaUseCase inspects datasets.
type SchemaUseCase struct {
	store store.Opener
}

// NewSchemaUseCase creates a schema use case.
func NewSchemaUseCase(opener store.Opener) *SchemaUseCase {
	return &SchemaUseCase{store: opener}
}

// Inspect opens path and reports its dimensions, variables and axis roles.
func (uc *SchemaUseCase) Inspect(path, payloadHint string) (*SchemaReport, error) {
	src, err := uc.store.OpenRead(path)
	if err != nil {
		return nil, domain.StoreIOError("open source", err)
	}
	defer func() { _ = src.Close() }()

	dims, err := src.Dimensions()
	if err != nil {
		return nil, domain.StoreIOError("enumerate dimensions", err)
	}
	vars, err := src.Variables()
	if err != nil {
		return nil, domain.StoreIOError("enumerate variables", err)
	}

	layouts, _ := src.(store.LayoutReader)

	report := &SchemaReport{Path: path, Dimensions: dims}
	roles := map[int]string{}
	if cat, err := domain.NewCatalog(dims, vars, payloadHint); err != nil {
		report.RoleError = err.Error()
	} else {
		r := cat.Roles
		for id, role := range map[int]string{
			r.TimeVar: "time", r.LevelVar: "level", r.LatVar: "lat", r.LonVar: "lon", r.PayloadVar: "payload",
		} {
			if id != domain.NoIndex {
				roles[id] = role
			}
		}
		for _, id := range r.AuxVars {
			roles[id] = "auxiliary"
		}
		shape := cat.Shape()
		report.Shape = &shape
		if strides, err := domain.BuildStrides(cat); err != nil {
			report.RoleError = err.Error()
		} else {
			report.Strides = &strides
		}
		vars = cat.Vars
	}

	for _, v := range vars {
		attrs, err := src.Attributes(v.ID)
		if err != nil {
			return nil, domain.StoreIOError("read attributes", err).WithVar(v.Name, v.ID)
		}
		info := VariableInfo{
			Name:       v.Name,
			ID:         v.ID,
			Type:       v.Type.String(),
			Length:     v.Length,
			Role:       roles[v.ID],
			Dimensions: make([]string, 0, len(v.DimIDs)),
			Attributes: make([]AttributeInfo, 0, len(attrs)),
		}
		for _, id := range v.DimIDs {
			name := fmt.Sprintf("#%d", id)
			if id >= 0 && id < len(dims) {
				name = dims[id].Name
			}
			info.Dimensions = append(info.Dimensions, name)
		}
		if layouts != nil {
			chunks, comp, err := layouts.Layout(v.ID)
			if err != nil {
				return nil, domain.StoreIOError("read storage layout", err).WithVar(v.Name, v.ID)
			}
			info.Chunks = chunks
			if comp != (store.Compression{}) {
				info.Compression = &comp
			}
		}
		for _, a := range attrs {
			info.Attributes = append(info.Attributes, AttributeInfo{Name: a.Name, Type: fmt.Sprintf("%T", a.Value)})
		}
		report.Variables = append(report.Variables, info)
	}
	return report, nil
}
