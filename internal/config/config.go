// Package config declares the ncgrain configuration options and loads them
// from flags, NCGRAIN_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.ngs.io/ncgrain/internal/adapter/interp"
	"go.ngs.io/ncgrain/internal/domain"
	"go.ngs.io/ncgrain/internal/usecase"
)

// EnvPrefix prefixes the environment variable of every option, e.g.
// NCGRAIN_GRANULARITY or NCGRAIN_PAYLOAD_CHUNKS.
const EnvPrefix = "NCGRAIN"

// Scope selects which command exposes an option.
type Scope int

// Scopes, one per command family.
const (
	ScopeGlobal Scope = 1 << iota
	ScopeRun          // resample and batch.
	ScopeBatch
	ScopeServer
	ScopeInspect // schema.
)

// Option is one configuration option.
type Option struct {
	Name, Usage, Shorthand string
	Default                any
	Scope                  Scope

	// Env lists extra unprefixed environment variables read for this option.
	Env []string
}

// Options are the configuration options available to ncgrain.
var Options = []Option{
	{
		Name:    "config",
		Usage:   "configuration file (TOML, YAML or JSON)",
		Default: "",
		Scope:   ScopeGlobal,
	},
	{
		Name:    "log-level",
		Usage:   "log level: debug, info, warn or error",
		Default: "info",
		Scope:   ScopeGlobal,
	},
	{
		Name:    "log-format",
		Usage:   "log format: text or json",
		Default: "text",
		Scope:   ScopeGlobal,
	},
	{
		Name:      "granularity",
		Usage:     "temporal granularity in minutes; must divide 360",
		Shorthand: "t",
		Default:   0,
		Scope:     ScopeRun,
	},
	{
		Name:    "span",
		Usage:   "time-coordinate distance between original samples; 0 infers it from the data",
		Default: 0.0,
		Scope:   ScopeRun | ScopeServer,
	},
	{
		Name:    "boundary",
		Usage:   "handling of the last original sample: omit or hold",
		Default: "omit",
		Scope:   ScopeRun,
	},
	{
		Name:    "payload",
		Usage:   "name of the payload variable when a file has several candidates",
		Default: "",
		Scope:   ScopeRun | ScopeInspect,
	},
	{
		Name:    "overwrite",
		Usage:   "replace existing output files",
		Default: false,
		Scope:   ScopeRun,
	},
	{
		Name:    "deflate",
		Usage:   "payload deflate level 0-9; 0 disables compression",
		Default: usecase.DefaultDeflateLevel,
		Scope:   ScopeRun | ScopeServer,
	},
	{
		Name:    "shuffle",
		Usage:   "enable the shuffle filter on the payload",
		Default: true,
		Scope:   ScopeRun | ScopeServer,
	},
	{
		Name:    "payload-chunks",
		Usage:   "payload chunk shape time,level,lat,lon; 0 entries use one time step and full extents",
		Default: []int{},
		Scope:   ScopeRun | ScopeServer,
	},
	{
		Name:    "time-chunk",
		Usage:   "chunk length of the time variable; 0 uses the full axis",
		Default: 0,
		Scope:   ScopeRun | ScopeServer,
	},
	{
		Name:      "input-dir",
		Usage:     "directory of input NetCDF files",
		Shorthand: "i",
		Default:   "",
		Scope:     ScopeBatch,
	},
	{
		Name:      "output-dir",
		Usage:     "directory for output files; defaults to the input directory",
		Shorthand: "o",
		Default:   "",
		Scope:     ScopeBatch,
	},
	{
		Name:      "prefix",
		Usage:     "output file name prefix",
		Shorthand: "p",
		Default:   "",
		Scope:     ScopeBatch,
	},
	{
		Name:      "suffix",
		Usage:     "output file name suffix, inserted before .nc",
		Shorthand: "s",
		Default:   usecase.DefaultSuffix,
		Scope:     ScopeBatch,
	},
	{
		Name:    "concurrency",
		Usage:   "number of files resampled at once",
		Default: 1,
		Scope:   ScopeBatch,
	},
	{
		Name:    "port",
		Usage:   "HTTP listen port",
		Default: "8080",
		Scope:   ScopeServer,
		Env:     []string{"PORT"},
	},
	{
		Name:    "data-dir",
		Usage:   "directory that request paths are resolved against",
		Default: "./data",
		Scope:   ScopeServer,
		Env:     []string{"DATA_DIR"},
	},
	{
		Name:    "cors-allowed-origins",
		Usage:   "comma separated allowed CORS origins; empty allows all",
		Default: []string{},
		Scope:   ScopeServer,
		Env:     []string{"CORS_ALLOWED_ORIGINS"},
	},
}

// New returns a viper instance that reads NCGRAIN_* environment variables
// and the extra variables declared by each option.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, o := range Options {
		v.SetDefault(o.Name, o.Default)
		if len(o.Env) > 0 {
			envs := append([]string{EnvPrefix + "_" + envName(o.Name)}, o.Env...)
			_ = v.BindEnv(append([]string{o.Name}, envs...)...)
		}
	}
	return v
}

func envName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// FlagSets maps each scope to the flag sets that carry its options.
type FlagSets map[Scope][]*pflag.FlagSet

// Register adds every option to the flag sets of its scopes and binds the
// flags to v. An option shared by several sets is one flag added to each.
func Register(v *viper.Viper, sets FlagSets) {
	for _, o := range Options {
		var targets []*pflag.FlagSet
		for _, scope := range []Scope{ScopeGlobal, ScopeRun, ScopeBatch, ScopeServer, ScopeInspect} {
			if o.Scope&scope != 0 {
				targets = append(targets, sets[scope]...)
			}
		}
		if len(targets) == 0 {
			continue
		}

		first := targets[0]
		addFlag(first, o)
		flag := first.Lookup(o.Name)
		for _, set := range targets[1:] {
			if set.Lookup(o.Name) == nil {
				set.AddFlag(flag)
			}
		}
		_ = v.BindPFlag(o.Name, flag)
	}
}

func addFlag(set *pflag.FlagSet, o Option) {
	switch d := o.Default.(type) {
	case string:
		set.StringP(o.Name, o.Shorthand, d, o.Usage)
	case []string:
		set.StringSliceP(o.Name, o.Shorthand, d, o.Usage)
	case bool:
		set.BoolP(o.Name, o.Shorthand, d, o.Usage)
	case int:
		set.IntP(o.Name, o.Shorthand, d, o.Usage)
	case []int:
		set.IntSliceP(o.Name, o.Shorthand, d, o.Usage)
	case float64:
		set.Float64P(o.Name, o.Shorthand, d, o.Usage)
	default:
		panic(fmt.Sprintf("config: option %s has unsupported default type %T", o.Name, o.Default))
	}
}

// ReadFile reads the file named by the config option, if any.
func ReadFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return domain.ConfigError("read config file", "%s: %v", path, err)
	}
	return nil
}

// Config is the resolved configuration.
type Config struct {
	GranularityMinutes int
	SampleSpan         float64
	Boundary           string
	Payload            string
	Overwrite          bool

	Deflate       int
	Shuffle       bool
	PayloadChunks []int
	TimeChunk     int

	InputDir    string
	OutputDir   string
	Prefix      string
	Suffix      string
	Concurrency int

	Port               string
	DataDir            string
	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string
}

// Load resolves every option from v, coercing environment and file values.
func Load(v *viper.Viper) (Config, error) {
	var (
		c    Config
		errs []error
	)
	intOpt := func(name string) int {
		n, err := cast.ToIntE(v.Get(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return n
	}
	boolOpt := func(name string) bool {
		b, err := cast.ToBoolE(v.Get(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return b
	}

	c.GranularityMinutes = intOpt("granularity")
	span, err := cast.ToFloat64E(v.Get("span"))
	if err != nil {
		errs = append(errs, fmt.Errorf("span: %w", err))
	}
	c.SampleSpan = span
	c.Boundary = cast.ToString(v.Get("boundary"))
	c.Payload = cast.ToString(v.Get("payload"))
	c.Overwrite = boolOpt("overwrite")

	c.Deflate = intOpt("deflate")
	c.Shuffle = boolOpt("shuffle")
	if c.PayloadChunks, err = toIntList(v.Get("payload-chunks")); err != nil {
		errs = append(errs, fmt.Errorf("payload-chunks: %w", err))
	}
	c.TimeChunk = intOpt("time-chunk")

	c.InputDir = cast.ToString(v.Get("input-dir"))
	c.OutputDir = cast.ToString(v.Get("output-dir"))
	c.Prefix = cast.ToString(v.Get("prefix"))
	c.Suffix = cast.ToString(v.Get("suffix"))
	c.Concurrency = intOpt("concurrency")

	c.Port = cast.ToString(v.Get("port"))
	c.DataDir = cast.ToString(v.Get("data-dir"))
	c.CORSAllowedOrigins = toStringList(v.Get("cors-allowed-origins"))

	c.LogLevel = cast.ToString(v.Get("log-level"))
	c.LogFormat = cast.ToString(v.Get("log-format"))

	if len(errs) > 0 {
		return c, domain.ConfigError("load configuration", "%v", errors.Join(errs...))
	}
	return c, nil
}

// Validate checks value ranges shared by every command. The granularity is
// checked by Schedule, since the server takes it per request.
func (c Config) Validate() error {
	if c.Deflate < 0 || c.Deflate > 9 {
		return domain.ConfigError("validate configuration", "deflate level %d outside 0-9", c.Deflate)
	}
	if n := len(c.PayloadChunks); n != 0 && n != 4 {
		return domain.ConfigError("validate configuration", "payload-chunks needs 4 values, got %d", n)
	}
	for _, x := range c.PayloadChunks {
		if x < 0 {
			return domain.ConfigError("validate configuration", "payload-chunks entries must not be negative, got %v", c.PayloadChunks)
		}
	}
	if c.TimeChunk < 0 {
		return domain.ConfigError("validate configuration", "time-chunk must not be negative, got %d", c.TimeChunk)
	}
	if c.SampleSpan < 0 {
		return domain.ConfigError("validate configuration", "span must not be negative, got %g", c.SampleSpan)
	}
	if c.Concurrency < 1 {
		return domain.ConfigError("validate configuration", "concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := interp.ParseBoundaryPolicy(c.Boundary); err != nil {
		return err
	}
	return nil
}

// Schedule validates the configured granularity.
func (c Config) Schedule() (domain.Schedule, error) {
	return domain.NewSchedule(c.GranularityMinutes)
}

// Layout returns the storage layout for created datasets.
func (c Config) Layout() usecase.Layout {
	l := usecase.Layout{DeflateLevel: c.Deflate, Shuffle: c.Shuffle, TimeChunk: c.TimeChunk}
	copy(l.PayloadChunks[:], c.PayloadChunks)
	return l
}

// ResampleTemplate returns a request carrying every run option; callers
// fill in Source and Destination.
func (c Config) ResampleTemplate() usecase.ResampleRequest {
	return usecase.ResampleRequest{
		GranularityMinutes: c.GranularityMinutes,
		Boundary:           c.Boundary,
		Payload:            c.Payload,
		SampleSpan:         c.SampleSpan,
		Overwrite:          c.Overwrite,
	}
}

// toIntList accepts a slice or a comma separated string.
func toIntList(v any) ([]int, error) {
	if s, ok := v.(string); ok {
		s = strings.Trim(strings.TrimSpace(s), "[]")
		if s == "" {
			return nil, nil
		}
		parts := strings.Split(s, ",")
		out := make([]int, len(parts))
		for i, p := range parts {
			n, err := cast.ToIntE(strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return cast.ToIntSliceE(v)
}

// toStringList accepts a slice or a comma separated string.
func toStringList(v any) []string {
	var raw []string
	if s, ok := v.(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = cast.ToStringSlice(v)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
