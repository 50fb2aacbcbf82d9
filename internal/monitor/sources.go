package monitor

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/trigger"
)

// DefaultSources builds the file, git and test sources from the engine
// configuration. The test source is omitted when no test command is set.
func DefaultSources(eng *engine.Engine, logger *log.Logger) ([]trigger.Source, error) {
	cfg := eng.Config()
	root := eng.ProjectRoot()

	sources := []trigger.Source{
		trigger.NewFileSource(root, eng, trigger.FileOptions{
			Paths:      cfg.WatchPaths,
			Extensions: cfg.SourceExtensions,
			Excludes:   cfg.ExcludePatterns,
			Logger:     logger,
		}),
	}

	git, err := trigger.NewGitSource(root, eng, trigger.GitOptions{
		Interval:           cfg.GitPollInterval(),
		RequirementPattern: cfg.RequirementPattern,
		TaskPattern:        cfg.TaskPattern,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("git source: %w", err)
	}
	sources = append(sources, git)

	if len(cfg.TestCommand) > 0 {
		tests, err := trigger.NewTestSource(root, eng, eng, trigger.TestOptions{
			Command:  cfg.TestCommand,
			Interval: cfg.TestPollInterval(),
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("test source: %w", err)
		}
		sources = append(sources, tests)
	}
	return sources, nil
}
