package plan

import "strings"

// Section is the slice of a plan owned by one task.
type Section struct {
	TaskID string

	files   []string
	symbols map[string][]string
	pool    []string
}

// newSection scans the section body line by line. A symbol is attributed
// to the file mentioned on the same line; failing that, to the closest
// file mentioned on an earlier line of the section; failing that, to the
// task-wide pool.
func newSection(taskID string, body []string) *Section {
	s := &Section{TaskID: taskID, symbols: map[string][]string{}}
	seenFile := map[string]bool{}
	seenSym := map[string]map[string]bool{}
	seenPool := map[string]bool{}
	lastFile := ""

	for _, line := range body {
		var lineFiles, lineSyms []string
		for _, m := range codeSpan.FindAllStringSubmatch(line, -1) {
			span := strings.TrimSpace(m[1])
			if IsSourcePath(span) && !strings.ContainsAny(span, " \t(") {
				lineFiles = append(lineFiles, span)
				continue
			}
			if sm := symbolSpan.FindStringSubmatch(span); sm != nil {
				lineSyms = append(lineSyms, sm[1])
			}
		}

		for _, f := range lineFiles {
			if !seenFile[f] {
				seenFile[f] = true
				s.files = append(s.files, f)
			}
		}

		targets := lineFiles
		if len(targets) == 0 && lastFile != "" {
			targets = []string{lastFile}
		}
		if len(lineFiles) > 0 {
			lastFile = lineFiles[len(lineFiles)-1]
		}

		for _, sym := range lineSyms {
			if len(targets) == 0 {
				if !seenPool[sym] {
					seenPool[sym] = true
					s.pool = append(s.pool, sym)
				}
				continue
			}
			for _, f := range targets {
				if seenSym[f] == nil {
					seenSym[f] = map[string]bool{}
				}
				if seenSym[f][sym] {
					continue
				}
				seenSym[f][sym] = true
				s.symbols[f] = append(s.symbols[f], sym)
			}
		}
	}
	return s
}

// Files returns the distinct planned file paths in order of first mention.
func (s *Section) Files() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.files...)
}

// Symbols returns the symbols attributed to file.
func (s *Section) Symbols(file string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.symbols[file]...)
}

// PoolSymbols returns symbols mentioned before any file in the section.
func (s *Section) PoolSymbols() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.pool...)
}
