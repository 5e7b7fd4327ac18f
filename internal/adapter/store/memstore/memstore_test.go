package memstore

import (
	"errors"
	"math"
	"testing"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

func TestWriteFloat32Slice_RowMajor(t *testing.T) {
	s := New()
	w, err := s.CreateWrite("out", store.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWrite: %v", err)
	}
	tdim, _ := w.DefineDim("time", 3)
	xdim, _ := w.DefineDim("x", 2)
	ydim, _ := w.DefineDim("y", 2)
	v, err := w.DefineVar(store.VarDef{Name: "v", Type: domain.TypeFloat, DimIDs: []int{tdim, xdim, ydim}})
	if err != nil {
		t.Fatalf("DefineVar: %v", err)
	}
	if err := w.WriteFloat32s(v, []float32{1}); err == nil {
		t.Error("expected error writing in define mode")
	}
	if err := w.EndDef(); err != nil {
		t.Fatalf("EndDef: %v", err)
	}

	if err := w.WriteFloat32Slice(v, []int{1, 0, 0}, []int{1, 2, 2}, []float32{5, 6, 7, 8}); err != nil {
		t.Fatalf("WriteFloat32Slice: %v", err)
	}
	if err := w.WriteFloat32Slice(v, []int{2, 1, 0}, []int{1, 1, 2}, []float32{9, 10}); err != nil {
		t.Fatalf("WriteFloat32Slice: %v", err)
	}
	if err := w.WriteFloat32Slice(v, []int{3, 0, 0}, []int{1, 2, 2}, []float32{0, 0, 0, 0}); err == nil {
		t.Error("expected out-of-bounds error")
	}

	ds, _ := s.Get("out")
	got := ds.Data[v]
	for i := 0; i < 4; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("slot %d = %v, want NaN", i, got[i])
		}
	}
	want := map[int]float64{4: 5, 5: 6, 6: 7, 7: 8, 10: 9, 11: 10}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("data[%d] = %v, want %v", i, got[i], w)
		}
	}
}

func TestCreateWrite_NoClobber(t *testing.T) {
	s := New()
	s.Put("a", NewDataset())
	if _, err := s.CreateWrite("a", store.CreateOptions{}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if _, err := s.CreateWrite("a", store.CreateOptions{Overwrite: true}); err != nil {
		t.Errorf("overwrite: %v", err)
	}
	if _, err := s.OpenRead("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if opens, creates := s.Calls(); opens != 1 || creates != 2 {
		t.Errorf("calls = %d opens, %d creates", opens, creates)
	}
}

func TestReadFloat32s_Unpacks(t *testing.T) {
	ds := NewDataset()
	ds.AddDim("x", 3)
	id := ds.AddVar("p", domain.TypeShort, []string{"x"}, []float64{0, 1, 2},
		domain.Attribute{Name: store.ScaleFactorAttr, Value: float32(0.5)},
		domain.Attribute{Name: store.AddOffsetAttr, Value: float32(100)},
	)
	s := New()
	s.Put("in", ds)
	r, err := s.OpenRead("in")
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	got, err := r.ReadFloat32s(id)
	if err != nil {
		t.Fatalf("ReadFloat32s: %v", err)
	}
	want := []float32{100, 100.5, 101}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadFloat64s_LengthMismatch(t *testing.T) {
	ds := NewDataset()
	ds.AddDim("x", 3)
	id := ds.AddVar("p", domain.TypeFloat, []string{"x"}, []float64{1, 2})
	s := New()
	s.Put("in", ds)
	r, _ := s.OpenRead("in")
	if _, err := r.ReadFloat64s(id); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestReadFloat64s_MissingValuesAreNaN(t *testing.T) {
	ds := NewDataset()
	ds.AddDim("x", 3)
	id := ds.AddVar("p", domain.TypeShort, []string{"x"}, []float64{0, 32766, 2},
		domain.Attribute{Name: store.ScaleFactorAttr, Value: float32(0.5)},
		domain.Attribute{Name: store.AddOffsetAttr, Value: float32(100)},
		domain.Attribute{Name: store.MissingAttr, Value: int16(32766)},
	)
	s := New()
	s.Put("in", ds)
	r, _ := s.OpenRead("in")
	got, err := r.ReadFloat64s(id)
	if err != nil {
		t.Fatalf("ReadFloat64s: %v", err)
	}
	if got[0] != 100 || !math.IsNaN(got[1]) || got[2] != 101 {
		t.Errorf("values = %v", got)
	}
}

func TestCubeSink_WritesFillForNaN(t *testing.T) {
	s := New()
	w, _ := s.CreateWrite("out", store.CreateOptions{})
	dims := make([]int, 4)
	for i, name := range []string{"time", "level", "lat", "lon"} {
		dims[i], _ = w.DefineDim(name, 1+i%2)
	}
	v, err := w.DefineVar(store.VarDef{
		Name: "air", Type: domain.TypeFloat, DimIDs: dims,
		Chunks:      []int{1, 2, 1, 2},
		Compression: store.Compression{Shuffle: true, Level: 4},
		Attrs:       []domain.Attribute{{Name: store.FillValueAttr, Value: []float32{-1}}},
	})
	if err != nil {
		t.Fatalf("DefineVar: %v", err)
	}
	if err := w.EndDef(); err != nil {
		t.Fatalf("EndDef: %v", err)
	}

	ds, _ := s.Get("out")
	if got := ds.Data[v]; got[0] != -1 || got[len(got)-1] != -1 {
		t.Errorf("unwritten data = %v, want _FillValue", got)
	}

	sink := store.NewCubeSink(w, v, domain.Shape{Time: 1, Level: 2, Lat: 1, Lon: 2})
	sink.SetFill(-1)
	nan := float32(math.NaN())
	if err := sink.WriteCube(0, []float32{1, nan, 3, 4}); err != nil {
		t.Fatalf("WriteCube: %v", err)
	}
	want := []float64{1, -1, 3, 4}
	for i, x := range want {
		if ds.Data[v][i] != x {
			t.Errorf("data[%d] = %v, want %v", i, ds.Data[v][i], x)
		}
	}

	r, _ := s.OpenRead("out")
	chunks, comp, err := r.(store.LayoutReader).Layout(v)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if len(chunks) != 4 || chunks[1] != 2 || !comp.Shuffle || comp.Level != 4 {
		t.Errorf("layout = %v, %+v", chunks, comp)
	}
}
