package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.ngs.io/ncgrain/internal/adapter/store"
	"go.ngs.io/ncgrain/internal/config"
	"go.ngs.io/ncgrain/internal/domain"
	"go.ngs.io/ncgrain/internal/logging"
	"go.ngs.io/ncgrain/internal/usecase"
)

// app holds the state shared by the subcommands of one invocation.
type app struct {
	opener store.Opener
	out    io.Writer
	v      *viper.Viper
	cfg    config.Config
	log    *logrus.Logger
}

// newRoot builds the command tree. Files are opened and created through
// opener; results are written to out.
func newRoot(opener store.Opener, out io.Writer) *cobra.Command {
	a := &app{opener: opener, out: out, v: config.New()}

	root := &cobra.Command{
		Use:   "ncgrain",
		Short: "Temporally upsample 6-hourly NetCDF reanalysis data.",
		Long: `ncgrain rewrites a (time, level, lat, lon) NetCDF dataset sampled every
6 hours so that every interval between samples is split into equal grains,
linearly interpolating the payload variable in between.

Configuration can be set with command-line flags, with a configuration file
(given by --config) or with environment variables named NCGRAIN_<OPTION>,
e.g. NCGRAIN_GRANULARITY=15 or NCGRAIN_PAYLOAD_CHUNKS=1,17,73,144.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(out)

	resampleCmd := &cobra.Command{
		Use:   "resample <source.nc> <destination.nc>",
		Short: "Upsample one file.",
		Long: `resample reads the payload variable of source, interpolates it to the
configured granularity and writes the expanded dataset to destination.
The destination must not exist unless --overwrite is given.`,
		Args:              cobra.ExactArgs(2),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := a.cfg.ResampleTemplate()
			req.Source, req.Destination = args[0], args[1]
			uc := usecase.NewResampleUseCase(a.opener, a.cfg.Layout(), a.log)
			result, err := uc.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printJSON(result)
		},
	}

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Upsample every .nc file of a directory.",
		Long: `batch resamples each NetCDF file in --input-dir and writes
<prefix><name><suffix>.nc to --output-dir. Files that already carry the
output prefix and suffix are skipped. A failing file does not stop the
others; the command fails if any file failed.`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc := usecase.NewBatchUseCase(usecase.NewResampleUseCase(a.opener, a.cfg.Layout(), a.log), a.log)
			result, err := uc.Execute(cmd.Context(), usecase.BatchRequest{
				InputDir:    a.cfg.InputDir,
				OutputDir:   a.cfg.OutputDir,
				Prefix:      a.cfg.Prefix,
				Suffix:      a.cfg.Suffix,
				Template:    a.cfg.ResampleTemplate(),
				Concurrency: a.cfg.Concurrency,
			})
			if result != nil {
				if perr := a.printJSON(result); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema <file.nc>",
		Short: "Describe the dimensions, variables and axis roles of a file.",
		Long: `schema prints a JSON report of a NetCDF file: every dimension and
variable, the role each variable plays in resampling and the stride table
of the payload. When roles cannot be assigned the report carries the reason.`,
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := usecase.NewSchemaUseCase(a.opener).Inspect(args[0], a.cfg.Payload)
			if err != nil {
				return err
			}
			return a.printJSON(report)
		},
	}

	granularitiesCmd := &cobra.Command{
		Use:               "granularities",
		Short:             "List the accepted granularities.",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "MINUTES\tGRAINS\t")
			for _, s := range domain.ValidGranularities() {
				fmt.Fprintf(w, "%d\t%d\t\n", s.GranularityMinutes, s.GrainsPerInterval)
			}
			return w.Flush()
		},
	}

	versionCmd := &cobra.Command{
		Use:               "version",
		Short:             "Print the version number",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "ncgrain v%s\n", version)
		},
	}

	root.AddCommand(resampleCmd, batchCmd, schemaCmd, granularitiesCmd, versionCmd)

	config.Register(a.v, config.FlagSets{
		config.ScopeGlobal:  {root.PersistentFlags()},
		config.ScopeRun:     {resampleCmd.Flags(), batchCmd.Flags()},
		config.ScopeBatch:   {batchCmd.Flags()},
		config.ScopeInspect: {schemaCmd.Flags()},
	})
	return root
}

// setup resolves configuration and the logger before any subcommand runs.
func (a *app) setup() error {
	if err := config.ReadFile(a.v); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
