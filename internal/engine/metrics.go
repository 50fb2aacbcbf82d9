package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/HendryAvila/devpulse/internal/config"
)

// TestMetricsFile is the coverage cache inside the cache directory.
const TestMetricsFile = "test_metrics.json"

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// TestMetrics is the last coverage figure parsed from the test command.
type TestMetrics struct {
	Coverage   float64 `json:"coverage"`
	Format     string  `json:"format"`
	RecordedAt string  `json:"recorded_at"`
}

// CacheDir returns the resolved cache directory.
func (e *Engine) CacheDir() string {
	return config.Resolve(e.root, e.cfg.CacheDir)
}

// TestMetricsPath returns the coverage cache path.
func (e *Engine) TestMetricsPath() string {
	return filepath.Join(e.CacheDir(), TestMetricsFile)
}

// SaveCoverage records a coverage figure in the cache.
func (e *Engine) SaveCoverage(pct float64, format string) error {
	m := TestMetrics{
		Coverage:   pct,
		Format:     format,
		RecordedAt: timeNow().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling test metrics: %w", err)
	}
	if err := os.MkdirAll(e.CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := atomic.WriteFile(e.TestMetricsPath(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing test metrics: %w", err)
	}
	return nil
}

// LoadTestMetrics reads the coverage cache. A missing cache returns
// (nil, nil); an unreadable one wraps ErrSignalUnavailable.
func (e *Engine) LoadTestMetrics() (*TestMetrics, error) {
	data, err := os.ReadFile(e.TestMetricsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	var m TestMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: test metrics: %v", ErrSignalUnavailable, err)
	}
	return &m, nil
}
