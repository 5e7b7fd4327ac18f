package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"go.ngs.io/ncgrain/internal/domain"
)

func newFlagSets() (FlagSets, *pflag.FlagSet, *pflag.FlagSet, *pflag.FlagSet) {
	global := pflag.NewFlagSet("global", pflag.ContinueOnError)
	batch := pflag.NewFlagSet("batch", pflag.ContinueOnError)
	server := pflag.NewFlagSet("server", pflag.ContinueOnError)
	return FlagSets{
		ScopeGlobal: {global},
		ScopeRun:    {batch},
		ScopeBatch:  {batch},
		ScopeServer: {server},
	}, global, batch, server
}

func TestLoad_Defaults(t *testing.T) {
	// Empty variables count as unset.
	for _, env := range []string{"PORT", "DATA_DIR", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(env, "")
	}
	v := New()
	sets, _, _, _ := newFlagSets()
	Register(v, sets)

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Boundary != "omit" || c.Suffix != ".copy" || c.Deflate != 2 || !c.Shuffle || c.Concurrency != 1 {
		t.Errorf("defaults = %+v", c)
	}
	if c.Port != "8080" || c.DataDir != "./data" || len(c.CORSAllowedOrigins) != 0 {
		t.Errorf("server defaults = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if _, err := c.Schedule(); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("unset granularity: expected config error, got %v", err)
	}
}

func TestLoad_Flags(t *testing.T) {
	v := New()
	sets, _, batch, server := newFlagSets()
	Register(v, sets)

	err := batch.Parse([]string{"-t", "15", "--boundary", "hold", "--payload-chunks", "2,1,73,144", "-i", "in", "-s", ".15min", "--concurrency", "4"})
	if err != nil {
		t.Fatalf("parse batch: %v", err)
	}
	if err := server.Parse([]string{"--span", "24", "--cors-allowed-origins", "http://a.example,http://b.example"}); err != nil {
		t.Fatalf("parse server: %v", err)
	}

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GranularityMinutes != 15 || c.Boundary != "hold" || c.InputDir != "in" || c.Suffix != ".15min" || c.Concurrency != 4 {
		t.Errorf("config = %+v", c)
	}
	if c.SampleSpan != 24 {
		t.Errorf("span = %v (shared flag not bound)", c.SampleSpan)
	}
	if len(c.CORSAllowedOrigins) != 2 || c.CORSAllowedOrigins[1] != "http://b.example" {
		t.Errorf("origins = %v", c.CORSAllowedOrigins)
	}
	sched, err := c.Schedule()
	if err != nil || sched.GrainsPerInterval != 24 {
		t.Errorf("Schedule = %+v, %v", sched, err)
	}
	l := c.Layout()
	if l.PayloadChunks != [4]int{2, 1, 73, 144} || l.DeflateLevel != 2 {
		t.Errorf("layout = %+v", l)
	}
	tmpl := c.ResampleTemplate()
	if tmpl.GranularityMinutes != 15 || tmpl.Boundary != "hold" || tmpl.SampleSpan != 24 {
		t.Errorf("template = %+v", tmpl)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("NCGRAIN_GRANULARITY", "60")
	t.Setenv("NCGRAIN_SHUFFLE", "false")
	t.Setenv("NCGRAIN_PAYLOAD_CHUNKS", "1,17,73,144")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	v := New()
	sets, _, _, _ := newFlagSets()
	Register(v, sets)

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GranularityMinutes != 60 || c.Shuffle || c.Port != "9090" {
		t.Errorf("config = %+v", c)
	}
	if len(c.PayloadChunks) != 4 || c.PayloadChunks[1] != 17 {
		t.Errorf("payload chunks = %v", c.PayloadChunks)
	}
	if len(c.CORSAllowedOrigins) != 2 || c.CORSAllowedOrigins[1] != "http://b.example" {
		t.Errorf("origins = %v", c.CORSAllowedOrigins)
	}
}

func TestLoad_BadEnvironmentValue(t *testing.T) {
	t.Setenv("NCGRAIN_DEFLATE", "high")
	v := New()
	if _, err := Load(v); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ncgrain.toml")
	content := "granularity = 30\nboundary = \"hold\"\ninput-dir = \"/data/ncep\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := New()
	sets, global, _, _ := newFlagSets()
	Register(v, sets)
	if err := global.Parse([]string{"--config", path}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ReadFile(v); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GranularityMinutes != 30 || c.Boundary != "hold" || c.InputDir != "/data/ncep" {
		t.Errorf("config = %+v", c)
	}

	v = New()
	v.Set("config", filepath.Join(t.TempDir(), "missing.toml"))
	if err := ReadFile(v); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("missing file: expected config error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Boundary: "omit", Concurrency: 1, Deflate: 2}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"deflate", func(c *Config) { c.Deflate = 10 }},
		{"chunk rank", func(c *Config) { c.PayloadChunks = []int{1, 2} }},
		{"negative chunk", func(c *Config) { c.PayloadChunks = []int{1, -1, 1, 1} }},
		{"time chunk", func(c *Config) { c.TimeChunk = -1 }},
		{"span", func(c *Config) { c.SampleSpan = -6 }},
		{"concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"boundary", func(c *Config) { c.Boundary = "mirror" }},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, domain.ErrConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}
