// Package logging builds the logrus logger shared by the ncgrain commands.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ncgrain/internal/domain"
)

// New returns a logger writing to stderr at the given level ("debug",
// "info", "warn", "error") in the given format ("text" or "json").
func New(level, format string) (*logrus.Logger, error) {
	return NewWithOutput(os.Stderr, level, format)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(w io.Writer, level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, domain.ConfigError("configure logging", "%v", err)
	}
	log.SetLevel(lvl)

	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, domain.ConfigError("configure logging", "unknown log format %q (use text or json)", format)
	}
	return log, nil
}
