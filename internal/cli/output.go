package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/progress"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func statusColor(s progress.Status) *color.Color {
	switch s {
	case progress.StatusCompleted:
		return color.New(color.FgHiGreen)
	case progress.StatusInProgress:
		return color.New(color.FgYellow)
	case progress.StatusReview:
		return color.New(color.FgCyan)
	case progress.StatusCancelled:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

// printOutcome writes the one-line notification of an applied update.
func printOutcome(w io.Writer, o engine.Outcome) {
	if !o.Applied {
		return
	}
	fmt.Fprintf(w, "📊 %s\n", statusColor(o.Status).Sprint(o.Notification()))
}

// notifier returns a Notify callback safe for concurrent workers.
func notifier(w io.Writer) func(engine.Outcome) {
	var mu sync.Mutex
	return func(o engine.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		printOutcome(w, o)
	}
}

// writeStructured renders v as JSON or YAML, or calls text for the
// human-readable format.
func writeStructured(w io.Writer, format string, v any, text func() error) error {
	switch format {
	case outputText, "":
		return text()
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("marshaling yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (use text, json or yaml)", format)
	}
}
