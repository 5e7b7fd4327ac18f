package ncfile

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/domain"
)

// createReanalysisNC writes a small classic-format file shaped like NCEP
// reanalysis output: lon(3) lat(2) level(2) time(3) plus a 4-D payload.
// When packed is true the payload is stored as SHORT with scale/offset and
// its last element holds the declared missing_value.
func createReanalysisNC(t *testing.T, path string, packed bool) []float32 {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	lonDim, _ := f.AddDim("lon", 3)
	latDim, _ := f.AddDim("lat", 2)
	levelDim, _ := f.AddDim("level", 2)
	timeDim, _ := f.AddDim("time", 3)

	vlevel, _ := f.AddVar("level", netcdf.FLOAT, []netcdf.Dim{levelDim})
	vlat, _ := f.AddVar("lat", netcdf.FLOAT, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("lon", netcdf.FLOAT, []netcdf.Dim{lonDim})
	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	payloadType := netcdf.FLOAT
	if packed {
		payloadType = netcdf.SHORT
	}
	vair, _ := f.AddVar("air", payloadType, []netcdf.Dim{timeDim, levelDim, latDim, lonDim})

	if err := vtime.Attr("units").WriteBytes([]byte("hours since 1800-01-01 00:00:0.0")); err != nil {
		t.Fatalf("time units: %v", err)
	}
	if err := vair.Attr("units").WriteBytes([]byte("degK")); err != nil {
		t.Fatalf("air units: %v", err)
	}
	if packed {
		if err := vair.Attr("scale_factor").WriteFloat32s([]float32{0.5}); err != nil {
			t.Fatalf("scale_factor: %v", err)
		}
		if err := vair.Attr("add_offset").WriteFloat32s([]float32{200}); err != nil {
			t.Fatalf("add_offset: %v", err)
		}
		if err := vair.Attr("missing_value").WriteInt16s([]int16{32766}); err != nil {
			t.Fatalf("missing_value: %v", err)
		}
	}
	if err := f.Attr("title").WriteBytes([]byte("test reanalysis")); err != nil {
		t.Fatalf("title: %v", err)
	}

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	if err := vlevel.WriteFloat32s([]float32{1000, 850}); err != nil {
		t.Fatalf("write level: %v", err)
	}
	if err := vlat.WriteFloat32s([]float32{90, 87.5}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat32s([]float32{0, 2.5, 5}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	if err := vtime.WriteFloat64s([]float64{1000, 1006, 1012}); err != nil {
		t.Fatalf("write time: %v", err)
	}

	n := 3 * 2 * 2 * 3
	want := make([]float32, n)
	raw := make([]int16, n)
	for i := range want {
		raw[i] = int16(i * 2)
		want[i] = float32(i)
		if packed {
			want[i] = float32(i*2)*0.5 + 200
		}
	}
	if packed {
		raw[n-1] = 32766
		want[n-1] = float32(math.NaN())
		if err := vair.WriteInt16s(raw); err != nil {
			t.Fatalf("write air: %v", err)
		}
	} else {
		if err := vair.WriteFloat32s(want); err != nil {
			t.Fatalf("write air: %v", err)
		}
	}
	return want
}

func TestOpen_EnumeratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "air.nc")
	createReanalysisNC(t, path, false)

	r, err := NewBackend().OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()

	dims, err := r.Dimensions()
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	wantDims := []domain.Dimension{
		{Name: "lon", ID: 0, Length: 3},
		{Name: "lat", ID: 1, Length: 2},
		{Name: "level", ID: 2, Length: 2},
		{Name: "time", ID: 3, Length: 3},
	}
	if len(dims) != len(wantDims) {
		t.Fatalf("got %d dims, want %d", len(dims), len(wantDims))
	}
	for i, d := range dims {
		if d != wantDims[i] {
			t.Errorf("dim %d = %+v, want %+v", i, d, wantDims[i])
		}
	}

	cat, err := domain.Discover(r, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	payload := cat.Payload()
	if payload.Name != "air" || payload.Type != domain.TypeFloat {
		t.Errorf("payload = %+v", payload)
	}
	if got := cat.Shape(); got != (domain.Shape{Time: 3, Level: 2, Lat: 2, Lon: 3}) {
		t.Errorf("shape = %+v", got)
	}
	if tv := cat.Var(cat.Roles.TimeVar); tv.Type != domain.TypeDouble {
		t.Errorf("time type = %v", tv.Type)
	}

	attrs, err := r.Attributes(payload.ID)
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	if a, ok := store.FindAttr(attrs, "units"); !ok || a.Value != "degK" {
		t.Errorf("units attribute = %+v, %v", a, ok)
	}
	global, _ := r.GlobalAttributes()
	if a, ok := store.FindAttr(global, "title"); !ok || a.Value != "test reanalysis" {
		t.Errorf("title attribute = %+v, %v", a, ok)
	}
}

func TestReadFloat32s(t *testing.T) {
	for _, packed := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "air.nc")
		want := createReanalysisNC(t, path, packed)

		r, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		cat, err := domain.Discover(r, "")
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		got, err := r.ReadFloat32s(cat.Roles.PayloadVar)
		if err != nil {
			t.Fatalf("packed=%v ReadFloat32s: %v", packed, err)
		}
		if len(got) != len(want) {
			t.Fatalf("packed=%v: got %d values, want %d", packed, len(got), len(want))
		}
		for i := range want {
			if math.IsNaN(float64(want[i])) {
				if !math.IsNaN(float64(got[i])) {
					t.Fatalf("packed=%v value %d = %v, want NaN for missing", packed, i, got[i])
				}
				continue
			}
			if got[i] != want[i] {
				t.Fatalf("packed=%v value %d = %v, want %v", packed, i, got[i], want[i])
			}
		}

		times, err := r.ReadFloat64s(cat.Roles.TimeVar)
		if err != nil {
			t.Fatalf("ReadFloat64s: %v", err)
		}
		if len(times) != 3 || times[1] != 1006 {
			t.Errorf("time = %v", times)
		}
		if err := r.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		if err := r.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.nc")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCreate_WritesSlicesAndAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	w, err := NewBackend().CreateWrite(path, store.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWrite: %v", err)
	}

	shape := domain.Shape{Time: 4, Level: 1, Lat: 2, Lon: 2}
	timeID, _ := w.DefineDim("time", shape.Time)
	levelID, _ := w.DefineDim("level", shape.Level)
	latID, _ := w.DefineDim("lat", shape.Lat)
	lonID, err := w.DefineDim("lon", shape.Lon)
	if err != nil {
		t.Fatalf("DefineDim: %v", err)
	}
	tv, err := w.DefineVar(store.VarDef{
		Name:   "time",
		Type:   domain.TypeDouble,
		DimIDs: []int{timeID},
		Attrs:  []domain.Attribute{{Name: "units", Value: "hours since 1800-01-01"}},
		Chunks: []int{shape.Time},
	})
	if err != nil {
		t.Fatalf("DefineVar time: %v", err)
	}
	pv, err := w.DefineVar(store.VarDef{
		Name:   "air",
		Type:   domain.TypeFloat,
		DimIDs: []int{timeID, levelID, latID, lonID},
		Attrs: []domain.Attribute{
			{Name: "units", Value: "degK"},
			{Name: "valid_range", Value: []float32{150, 400}},
			{Name: "level_desc", Value: int8(3)},
		},
		Chunks:      []int{1, shape.Level, shape.Lat, shape.Lon},
		Compression: store.Compression{Shuffle: true, Level: 2},
	})
	if err != nil {
		t.Fatalf("DefineVar air: %v", err)
	}
	if err := w.PutGlobalAttributes([]domain.Attribute{{Name: "history", Value: "test"}}); err != nil {
		t.Fatalf("PutGlobalAttributes: %v", err)
	}
	if err := w.EndDef(); err != nil {
		t.Fatalf("EndDef: %v", err)
	}

	if err := w.WriteFloat64s(tv, []float64{0, 1.5, 3, 4.5}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	sink := store.NewCubeSink(w, pv, shape)
	for i := 0; i < shape.Time; i++ {
		cube := []float32{float32(i), float32(i) + 0.25, float32(i) + 0.5, float32(i) + 0.75}
		if err := sink.WriteCube(i, cube); err != nil {
			t.Fatalf("WriteCube %d: %v", i, err)
		}
	}
	if err := sink.WriteCube(0, []float32{1}); err == nil {
		t.Error("expected error for short cube")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ds.Close()

	air, err := ds.Var("air")
	if err != nil {
		t.Fatalf("Var air: %v", err)
	}
	got := make([]float32, shape.Len())
	if err := air.ReadFloat32s(got); err != nil {
		t.Fatalf("read air: %v", err)
	}
	for i := 0; i < shape.Time; i++ {
		for c := 0; c < shape.CubeLen(); c++ {
			want := float32(i) + float32(c)*0.25
			if v := got[i*shape.CubeLen()+c]; v != want {
				t.Errorf("air[%d][%d] = %v, want %v", i, c, v, want)
			}
		}
	}

	units := make([]byte, len("degK"))
	if err := air.Attr("units").ReadBytes(units); err != nil || string(units) != "degK" {
		t.Errorf("units = %q, %v", units, err)
	}
	vr := make([]float32, 2)
	if err := air.Attr("valid_range").ReadFloat32s(vr); err != nil || vr[1] != 400 {
		t.Errorf("valid_range = %v, %v", vr, err)
	}

	timeVar, _ := ds.Var("time")
	times := make([]float64, shape.Time)
	if err := timeVar.ReadFloat64s(times); err != nil {
		t.Fatalf("read time: %v", err)
	}
	if math.Abs(times[3]-4.5) > 1e-12 {
		t.Errorf("time = %v", times)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	vars, _ := r.Variables()
	layouts := map[string][]int{}
	for _, v := range vars {
		chunks, comp, err := r.Layout(v.ID)
		if err != nil {
			t.Fatalf("Layout %s: %v", v.Name, err)
		}
		layouts[v.Name] = chunks
		if v.Name == "air" && (!comp.Shuffle || comp.Level != 2) {
			t.Errorf("air compression = %+v", comp)
		}
	}
	if got := layouts["air"]; len(got) != 4 || got[0] != 1 || got[2] != shape.Lat || got[3] != shape.Lon {
		t.Errorf("air chunks = %v", got)
	}
	if got := layouts["time"]; len(got) != 1 || got[0] != shape.Time {
		t.Errorf("time chunks = %v", got)
	}
}

func TestLayout_ClassicFormatIsContiguous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "air.nc")
	createReanalysisNC(t, path, false)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	cat, err := domain.Discover(r, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	chunks, comp, err := r.Layout(cat.Roles.PayloadVar)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if chunks != nil || comp != (store.Compression{}) {
		t.Errorf("layout = %v, %+v", chunks, comp)
	}
}

func TestCreate_NoClobber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	createReanalysisNC(t, path, false)

	if _, err := Create(path, store.CreateOptions{}); err == nil {
		t.Fatal("expected error creating over existing file")
	}
	w, err := Create(path, store.CreateOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("Create with overwrite: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDefineVar_Validation(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "out.nc"), store.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	d, _ := w.DefineDim("x", 2)
	if _, err := w.DefineVar(store.VarDef{Name: "s", Type: domain.TypeShort, DimIDs: []int{d}}); err == nil {
		t.Error("expected error for SHORT output")
	}
	if _, err := w.DefineVar(store.VarDef{Name: "u", Type: domain.TypeFloat, DimIDs: []int{d + 1}}); err == nil {
		t.Error("expected error for undefined dimension")
	}
	if _, err := w.DefineVar(store.VarDef{Name: "c", Type: domain.TypeFloat, DimIDs: []int{d}, Chunks: []int{1, 1}}); err == nil {
		t.Error("expected error for chunk rank mismatch")
	}
}
