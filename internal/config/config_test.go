package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := load("test", t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != ":8080" || c.TelemetryChannel != "iot/assettracker" {
		t.Errorf("config = %+v", c)
	}
	if c.CircleSegments != 64 || c.HistoryMaxRange != 720*time.Hour || c.EstimatorTimeout != 5*time.Second {
		t.Errorf("numeric defaults = %d %v %v", c.CircleSegments, c.HistoryMaxRange, c.EstimatorTimeout)
	}
	if c.EstimatorRatePerSec != 10 {
		t.Errorf("EstimatorRatePerSec = %d", c.EstimatorRatePerSec)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	body := "PORT=:9090\nCIRCLE_SEGMENTS=32\nHISTORY_MAX_RANGE=24h\n"
	if err := os.WriteFile(filepath.Join(dir, ".env.test"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CIRCLE_SEGMENTS", "16")

	c, err := load("test", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != ":9090" {
		t.Errorf("Port = %q", c.Port)
	}
	if c.CircleSegments != 16 {
		t.Errorf("env did not override file: CircleSegments = %d", c.CircleSegments)
	}
	if c.HistoryMaxRange != 24*time.Hour {
		t.Errorf("HistoryMaxRange = %v", c.HistoryMaxRange)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		key, value, field string
	}{
		{"CIRCLE_SEGMENTS", "2", "CircleSegments"},
		{"STREAM_RATE_PER_SEC", "0", "StreamRatePerSec"},
		{"POSITION_ESTIMATOR_URL", "not a url", "PositionEstimatorURL"},
		{"ESTIMATOR_RATE_PER_SEC", "0", "EstimatorRatePerSec"},
		{"LOG_LEVEL", "loud", "LogLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := load("test", t.TempDir())
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("err = %v, want mention of %s", err, tt.field)
			}
		})
	}
}
