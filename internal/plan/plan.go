// Package plan extracts task-scoped file and symbol references from an
// implementation-plan document.
//
// The plan is plain markdown. A section belongs to a task when its heading
// contains the task ID, and it runs until the next heading of the same or
// a higher level. Inside a section, inline-code spans that end in a source
// extension are file paths; spans shaped like `name(` are symbols.
package plan

import (
	"path"
	"regexp"
	"strings"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	codeSpan       = regexp.MustCompile("`([^`\n]+)`")
	symbolSpan     = regexp.MustCompile(`^([A-Za-z_$][\w$]*)\(`)
)

// sourceExtensions are the file suffixes recognized as planned source files.
var sourceExtensions = []string{
	".js", ".ts", ".tsx", ".jsx", ".mjs", ".cjs",
	".py", ".java", ".go", ".rs",
	".cpp", ".cc", ".c", ".h", ".hpp",
	".kt", ".swift", ".rb", ".php", ".cs",
}

// IsSourcePath reports whether p ends in a recognized source extension.
func IsSourcePath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range sourceExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Plan is a parsed implementation plan.
type Plan struct {
	lines    []string
	headings []heading
	taskRe   *regexp.Regexp
}

type heading struct {
	line  int
	level int
	text  string
}

// Parse splits text into lines and indexes its headings. taskPattern is
// used by TaskIDs and TaskForFile to recognize task headings; a nil
// pattern disables both.
func Parse(text string, taskPattern *regexp.Regexp) *Plan {
	p := &Plan{
		lines:  strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"),
		taskRe: taskPattern,
	}
	inFence := false
	for i, line := range p.lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			p.headings = append(p.headings, heading{line: i, level: len(m[1]), text: m[2]})
		}
	}
	return p
}

// TaskIDs returns the task IDs found in headings, in document order,
// without duplicates.
func (p *Plan) TaskIDs() []string {
	if p.taskRe == nil {
		return nil
	}
	seen := map[string]bool{}
	var ids []string
	for _, h := range p.headings {
		id := p.taskRe.FindString(h.text)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Section returns the section owned by taskID, or nil if no heading
// mentions it. The first matching heading wins.
func (p *Plan) Section(taskID string) *Section {
	if taskID == "" {
		return nil
	}
	for i, h := range p.headings {
		if !containsToken(h.text, taskID) {
			continue
		}
		end := len(p.lines)
		for _, next := range p.headings[i+1:] {
			if next.level <= h.level {
				end = next.line
				break
			}
		}
		return newSection(taskID, p.lines[h.line+1:end])
	}
	return nil
}

// TaskForFile returns the task whose heading most closely precedes the
// first line mentioning the base name of filePath. It returns "" when the
// file is never mentioned or is mentioned before any task heading.
func (p *Plan) TaskForFile(filePath string) string {
	if p.taskRe == nil {
		return ""
	}
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return ""
	}

	current := ""
	hi := 0
	for i, line := range p.lines {
		if hi < len(p.headings) && p.headings[hi].line == i {
			if id := p.taskRe.FindString(p.headings[hi].text); id != "" {
				current = id
			}
			hi++
			continue
		}
		if current != "" && strings.Contains(line, base) {
			return current
		}
	}
	return ""
}

// containsToken matches id inside heading text without accepting a longer
// ID that merely shares the prefix (TASK_1 must not match TASK_10).
func containsToken(text, id string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], id)
		if idx < 0 {
			return false
		}
		end := start + idx + len(id)
		if end >= len(text) || !isIDChar(text[end]) {
			return true
		}
		start = start + idx + 1
	}
}

func isIDChar(b byte) bool {
	return b == '_' || b == '-' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
