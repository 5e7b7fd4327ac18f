package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ncgrain/internal/domain"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v", log.GetLevel())
	}
	log.WithField("granularity", 15).Debug("Resampling")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["msg"] != "Resampling" || entry["granularity"] != float64(15) {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewWithOutput_TextDefaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "", "")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	log.Debug("hidden")
	log.Info("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q", out)
	}
}

func TestNewWithOutput_Invalid(t *testing.T) {
	for _, tt := range []struct{ level, format string }{
		{"loud", "text"},
		{"info", "xml"},
	} {
		if _, err := NewWithOutput(&bytes.Buffer{}, tt.level, tt.format); !errors.Is(err, domain.ErrConfig) {
			t.Errorf("%s/%s: expected config error, got %v", tt.level, tt.format, err)
		}
	}
}
