package main

import (
	"math"
	"testing"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/adapter/store/memstore"
	"go.ngs.io/ncgrain/internal/domain"
)

func TestGrid_Shape(t *testing.T) {
	g := Grid{Times: 4, Levels: ncepLevels, Resolution: 2.5}
	want := domain.Shape{Time: 4, Level: 17, Lat: 73, Lon: 144}
	if got := g.Shape(); got != want {
		t.Errorf("Shape = %+v, want %+v", got, want)
	}
}

func TestGenerate(t *testing.T) {
	s := memstore.New()
	w, err := s.CreateWrite("synth.nc", store.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateWrite: %v", err)
	}
	g := Grid{Times: 3, Levels: ncepLevels[:2], Resolution: 30, StartHours: 1945392}
	if err := generate(w, g); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ds, _ := s.Get("synth.nc")
	times := ds.Data[ds.VarByName("time")]
	if len(times) != 3 || times[2]-times[0] != 12 {
		t.Errorf("time = %v", times)
	}
	if lat := ds.Data[ds.VarByName("lat")]; len(lat) != 7 || lat[0] != 90 || lat[6] != -90 {
		t.Errorf("lat = %v", lat)
	}

	air := ds.Data[ds.VarByName("air")]
	if len(air) != 3*2*7*12 {
		t.Fatalf("air has %d values", len(air))
	}
	for i, v := range air {
		if math.IsNaN(v) || v < 180 || v > 320 {
			t.Fatalf("air[%d] = %v out of range", i, v)
		}
	}

	// Discovery finds NCEP roles in the generated layout.
	r, err := s.OpenRead("synth.nc")
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()
	cat, err := domain.Discover(r, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if cat.Payload().Name != "air" {
		t.Errorf("payload = %s", cat.Payload().Name)
	}
}
