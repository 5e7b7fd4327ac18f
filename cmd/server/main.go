// Package main provides the ncgrain HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"go.ngs.io/ncgrain/internal/adapter/store/ncfile"
	"go.ngs.io/ncgrain/internal/config"
	httpHandler "go.ngs.io/ncgrain/internal/http"
	"go.ngs.io/ncgrain/internal/logging"
	"go.ngs.io/ncgrain/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	flags := pflag.NewFlagSet("ncgrain-server", pflag.ExitOnError)
	showHelp := flags.Bool("help", false, "Show usage information")
	showVersion := flags.Bool("version", false, "Show version information")

	v := config.New()
	config.Register(v, config.FlagSets{
		config.ScopeGlobal: {flags},
		config.ScopeServer: {flags},
	})
	_ = flags.Parse(os.Args[1:])

	if *showHelp {
		printUsage(flags)
		return
	}

	if *showVersion {
		fmt.Printf("ncgrain-server version %s\n", version)
		return
	}

	// Load configuration from flags, environment and config file.
	if err := config.ReadFile(v); err != nil {
		fmt.Fprintf(os.Stderr, "ncgrain-server: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(v)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ncgrain-server: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ncgrain-server: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(logrus.Fields{
		"version":  version,
		"port":     cfg.Port,
		"data_dir": cfg.DataDir,
		"deflate":  cfg.Deflate,
		"shuffle":  cfg.Shuffle,
	}).Info("Starting ncgrain server")
	if len(cfg.CORSAllowedOrigins) > 0 {
		log.WithField("origins", cfg.CORSAllowedOrigins).Info("CORS restricted")
	}

	// Initialize use cases on the NetCDF backend.
	backend := ncfile.NewBackend()
	resampleUC := usecase.NewResampleUseCase(backend, cfg.Layout(), log)
	schemaUC := usecase.NewSchemaUseCase(backend)

	// Setup router.
	handler := httpHandler.NewHandler(resampleUC, schemaUC, cfg.DataDir, log)
	router := httpHandler.SetupRouter(handler, cfg.CORSAllowedOrigins, log)

	// Start server.
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Infof("Server listening on %s", addr)
	log.Infof("Health check: http://localhost:%s/health", cfg.Port)
	log.Info("API endpoints: GET /v1/granularities, GET /v1/schema, POST /v1/resample")

	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// printUsage prints usage information.
func printUsage(flags *pflag.FlagSet) {
	fmt.Printf("ncgrain server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  ncgrain-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Print(flags.FlagUsages())
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  Every flag can be set as NCGRAIN_<FLAG>, e.g. NCGRAIN_DEFLATE=4.")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  DATA_DIR                Directory request paths are resolved against (default: ./data)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start server with default settings")
	fmt.Println("  ncgrain-server")
	fmt.Println()
	fmt.Println("  # Start server on custom port")
	fmt.Println("  PORT=3000 ncgrain-server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health               Health check")
	fmt.Println("  GET  /v1/granularities     List accepted granularities")
	fmt.Println("  GET  /v1/schema            Describe a NetCDF file (?path=&payload=)")
	fmt.Println("  POST /v1/resample          Upsample a NetCDF file")
	fmt.Println()
}
