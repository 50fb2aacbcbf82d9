// Package config loads and persists the progress monitor settings.
//
// Settings live in <project>/.devflow/settings.json under the
// "progressMonitor" key, so the file can be shared with other tooling
// that keeps its own keys next to ours. A missing file or a missing key
// yields Default(); fields present in the file override the defaults
// one by one.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/natefinch/atomic"
)

const (
	// DevflowDir is the project-local directory holding settings, cache and logs.
	DevflowDir = ".devflow"
	// SettingsFile is the settings filename inside DevflowDir.
	SettingsFile = "settings.json"
	// SectionKey is the top-level key our settings live under.
	SectionKey = "progressMonitor"
)

// Config is the progress monitor configuration.
// Relative paths are resolved against the project root.
type Config struct {
	Enabled         bool     `json:"enabled"`
	RequirementsDir string   `json:"requirementsDir"`
	PlanFile        string   `json:"planFile"`
	CacheDir        string   `json:"cacheDir"`
	LogDir          string   `json:"logDir"`
	LogLevel        string   `json:"logLevel"`
	WatchPaths      []string `json:"watchPaths"`
	ExcludePatterns []string `json:"excludePatterns"`

	// SourceExtensions is the allow-list for filesystem events.
	SourceExtensions   []string `json:"sourceExtensions"`
	RequirementPattern string   `json:"requirementPattern"`
	TaskPattern        string   `json:"taskPattern"`

	GitPollIntervalSeconds  int      `json:"gitPollIntervalSeconds"`
	TestPollIntervalSeconds int      `json:"testPollIntervalSeconds"`
	TestCommand             []string `json:"testCommand"`

	// AutoUpdateProgressThreshold is a fraction (0.05 = 5 percentage points).
	// It is the only write threshold; every trigger path shares it.
	AutoUpdateProgressThreshold float64 `json:"autoUpdateProgressThreshold"`
	MinConfidenceToApply        float64 `json:"minConfidenceToApply"`

	StaleAfterMinutes         int `json:"staleAfterMinutes"`
	SupervisorIntervalSeconds int `json:"supervisorIntervalSeconds"`
	DebounceMillis            int `json:"debounceMillis"`
	Workers                   int `json:"workers"`
	ShutdownTimeoutSeconds    int `json:"shutdownTimeoutSeconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Enabled:         true,
		RequirementsDir: filepath.Join("devflow", "requirements"),
		PlanFile:        "IMPLEMENTATION_PLAN.md",
		CacheDir:        filepath.Join(DevflowDir, "cache"),
		LogDir:          filepath.Join(DevflowDir, "logs"),
		LogLevel:        "info",
		WatchPaths:      []string{"src/", "components/", "lib/", "utils/", "internal/", "cmd/"},
		ExcludePatterns: []string{"*.test.*", "*.spec.*", "*_test.go", "node_modules/", ".git/"},
		SourceExtensions: []string{
			".js", ".ts", ".tsx", ".jsx", ".py", ".java", ".go", ".rs",
		},
		RequirementPattern:          `REQ-\d+`,
		TaskPattern:                 `TASK_\d+`,
		GitPollIntervalSeconds:      30,
		TestPollIntervalSeconds:     300,
		TestCommand:                 []string{"npm", "test", "--", "--passWithNoTests", "--silent"},
		AutoUpdateProgressThreshold: 0.05,
		MinConfidenceToApply:        0.7,
		StaleAfterMinutes:           120,
		SupervisorIntervalSeconds:   60,
		DebounceMillis:              500,
		Workers:                     2,
		ShutdownTimeoutSeconds:      5,
	}
}

// --- Path helpers ---

// SettingsPath returns the absolute path to the settings file.
func SettingsPath(projectRoot string) string {
	return filepath.Join(projectRoot, DevflowDir, SettingsFile)
}

// Resolve joins p onto the project root unless it is already absolute.
func Resolve(projectRoot, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectRoot, p)
}

// FindProjectRoot walks up from dir looking for a directory that holds
// DevflowDir or the default requirements directory. If none is found, dir
// itself is returned; the caller decides what to do.
func FindProjectRoot(dir string) string {
	markers := []string{DevflowDir, Default().RequirementsDir}
	current := dir
	for {
		for _, m := range markers {
			if info, err := os.Stat(filepath.Join(current, m)); err == nil && info.IsDir() {
				return current
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// --- Load / Save ---

// Load reads the settings for projectRoot. A missing settings file is not
// an error. Unknown top-level keys are ignored.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	section, ok := doc[SectionKey]
	if !ok {
		return cfg, nil
	}
	// Unmarshal onto the defaults so absent fields keep their default value.
	if err := json.Unmarshal(section, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s settings: %w", SectionKey, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg under SectionKey, preserving any other top-level keys
// already present in the settings file.
func Save(projectRoot string, cfg *Config) error {
	path := SettingsPath(projectRoot)
	doc := map[string]json.RawMessage{}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing existing settings: %w", err)
		}
	}

	section, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	doc[SectionKey] = section

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.AutoUpdateProgressThreshold < 0 || c.AutoUpdateProgressThreshold > 1 {
		return fmt.Errorf("autoUpdateProgressThreshold must be within [0, 1], got %v", c.AutoUpdateProgressThreshold)
	}
	if c.MinConfidenceToApply < 0 || c.MinConfidenceToApply > 1 {
		return fmt.Errorf("minConfidenceToApply must be within [0, 1], got %v", c.MinConfidenceToApply)
	}
	if c.GitPollIntervalSeconds <= 0 {
		return fmt.Errorf("gitPollIntervalSeconds must be positive, got %d", c.GitPollIntervalSeconds)
	}
	if c.TestPollIntervalSeconds <= 0 {
		return fmt.Errorf("testPollIntervalSeconds must be positive, got %d", c.TestPollIntervalSeconds)
	}
	if c.SupervisorIntervalSeconds <= 0 {
		return fmt.Errorf("supervisorIntervalSeconds must be positive, got %d", c.SupervisorIntervalSeconds)
	}
	if c.StaleAfterMinutes <= 0 {
		return fmt.Errorf("staleAfterMinutes must be positive, got %d", c.StaleAfterMinutes)
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("shutdownTimeoutSeconds must be positive, got %d", c.ShutdownTimeoutSeconds)
	}
	// Zero disables coalescing.
	if c.DebounceMillis < 0 {
		return fmt.Errorf("debounceMillis must not be negative, got %d", c.DebounceMillis)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.PlanFile == "" {
		return fmt.Errorf("planFile must not be empty")
	}
	if _, err := regexp.Compile(c.RequirementPattern); err != nil {
		return fmt.Errorf("invalid requirementPattern: %w", err)
	}
	if _, err := regexp.Compile(c.TaskPattern); err != nil {
		return fmt.Errorf("invalid taskPattern: %w", err)
	}
	return nil
}

// --- Derived values ---

// ThresholdPoints converts the fractional threshold to percentage points.
func (c *Config) ThresholdPoints() float64 {
	return c.AutoUpdateProgressThreshold * 100
}

// GitPollInterval returns the git polling period.
func (c *Config) GitPollInterval() time.Duration {
	return time.Duration(c.GitPollIntervalSeconds) * time.Second
}

// TestPollInterval returns the test polling period.
func (c *Config) TestPollInterval() time.Duration {
	return time.Duration(c.TestPollIntervalSeconds) * time.Second
}

// SupervisorInterval returns the supervisory tick period.
func (c *Config) SupervisorInterval() time.Duration {
	return time.Duration(c.SupervisorIntervalSeconds) * time.Second
}

// StaleAfter returns the age beyond which an in-progress task is nudged.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// Debounce returns the per-task event coalescing window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// ShutdownTimeout returns the bounded join window used by Stop.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// RequirementRegexp compiles RequirementPattern. Call Validate first.
func (c *Config) RequirementRegexp() *regexp.Regexp {
	return regexp.MustCompile(c.RequirementPattern)
}

// TaskRegexp compiles TaskPattern. Call Validate first.
func (c *Config) TaskRegexp() *regexp.Regexp {
	return regexp.MustCompile(c.TaskPattern)
}
