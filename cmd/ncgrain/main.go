// Command ncgrain upsamples 6-hourly (time, level, lat, lon) NetCDF datasets
// to a finer temporal granularity by linear interpolation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.ngs.io/ncgrain/internal/adapter/store/ncfile"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRoot(ncfile.NewBackend(), os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ncgrain: %v\n", err)
		os.Exit(1)
	}
}
