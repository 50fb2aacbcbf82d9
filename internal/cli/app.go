package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/HendryAvila/devpulse/internal/config"
	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/journal"
	"github.com/HendryAvila/devpulse/internal/logging"
	"github.com/HendryAvila/devpulse/internal/state"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	project  string
	logLevel string
}

// app is everything a command needs for one project.
type app struct {
	root    string
	cfg     *config.Config
	logger  *log.Logger
	logFile *logging.Logger
	journal *journal.Store
	eng     *engine.Engine
}

// openApp loads the project settings and builds the engine. Long-running
// commands pass persistentLog so their output is also appended to the log
// file; an unwritable log directory is then a startup error. A journal
// that cannot be opened only disables history.
func openApp(opts *globalOptions, persistentLog bool) (*app, error) {
	root, err := projectRoot(opts.project)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	a := &app{root: root, cfg: cfg, logger: logging.Discard()}
	if persistentLog {
		l, err := logging.New(config.Resolve(root, cfg.LogDir), cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		a.logFile = l
		a.logger = l.Logger
	}

	j, err := journal.New(journal.DefaultConfig(config.Resolve(root, cfg.CacheDir)))
	if err != nil {
		a.logger.Warn("journal disabled", "err", err)
	} else {
		a.journal = j
	}

	store := state.NewFileStore(config.Resolve(root, cfg.RequirementsDir), a.logger)
	eopts := engine.Options{Logger: a.logger}
	if a.journal != nil {
		eopts.Journal = a.journal
	}
	a.eng = engine.New(root, cfg, store, eopts)
	return a, nil
}

// Close releases the journal and the log file.
func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("closing journal", "err", err)
		}
	}
	_ = a.logFile.Close()
}

// projectRoot returns flag when set, otherwise the nearest ancestor of the
// working directory that looks like a project.
func projectRoot(flag string) (string, error) {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		if err != nil {
			return "", fmt.Errorf("resolving project directory: %w", err)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return config.FindProjectRoot(cwd), nil
}
