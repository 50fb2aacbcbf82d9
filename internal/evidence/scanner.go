package evidence

import (
	"os"
	"path/filepath"
)

// FileEvidence is the per-file scan outcome.
type FileEvidence struct {
	Path        string   `json:"path"`
	Exists      bool     `json:"exists"`
	Planned     []string `json:"planned,omitempty"`
	Implemented []string `json:"implemented,omitempty"`
}

// Report aggregates a scan over a task's planned files.
type Report struct {
	Files                []FileEvidence `json:"files"`
	FilesPlanned         int            `json:"files_planned"`
	FilesImplemented     int            `json:"files_implemented"`
	FunctionsPlanned     int            `json:"functions_planned"`
	FunctionsImplemented int            `json:"functions_implemented"`
}

// Target is one planned file and the symbols expected in it.
type Target struct {
	Path    string
	Symbols []string
}

// Scanner checks planned files against the working tree.
type Scanner struct {
	registry *Registry
	readFile func(string) ([]byte, error)
}

// NewScanner creates a Scanner. A nil registry means DefaultRegistry().
func NewScanner(registry *Registry) *Scanner {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Scanner{registry: registry, readFile: os.ReadFile}
}

// Scan resolves each target against root. A file that cannot be read,
// for whatever reason, counts as not present and all of its symbols as
// not implemented. Pool symbols count as implemented when any existing
// target declares them.
func (s *Scanner) Scan(root string, targets []Target, pool []string) Report {
	var r Report
	contents := make(map[string]string, len(targets))

	for _, t := range targets {
		fe := FileEvidence{Path: t.Path, Planned: t.Symbols}
		r.FilesPlanned++
		r.FunctionsPlanned += len(t.Symbols)

		content, ok := s.read(root, t.Path)
		if ok {
			fe.Exists = true
			r.FilesImplemented++
			contents[t.Path] = content
			d := s.registry.For(t.Path)
			for _, sym := range t.Symbols {
				if d.Implemented(content, sym) {
					fe.Implemented = append(fe.Implemented, sym)
				}
			}
			r.FunctionsImplemented += len(fe.Implemented)
		}
		r.Files = append(r.Files, fe)
	}

	for _, sym := range pool {
		r.FunctionsPlanned++
		for _, t := range targets {
			content, ok := contents[t.Path]
			if ok && s.registry.For(t.Path).Implemented(content, sym) {
				r.FunctionsImplemented++
				break
			}
		}
	}
	return r
}

func (s *Scanner) read(root, path string) (string, bool) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, filepath.FromSlash(path))
	}
	data, err := s.readFile(full)
	if err != nil {
		return "", false
	}
	return string(data), true
}
