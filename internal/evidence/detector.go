// Package evidence decides whether planned symbols are present in source
// files.
//
// Detection is lexical: a detector looks for a declaration-shaped token
// sequence containing the symbol name. It never checks that the body is
// meaningful. Each source family gets its own Detector so new languages
// can be registered without touching the scanning loop.
package evidence

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Detector reports whether content declares symbol.
type Detector interface {
	Implemented(content, symbol string) bool
}

// patternDetector matches any of a list of templates in which %s stands
// for the quoted symbol name.
type patternDetector struct {
	templates []string
}

func (d patternDetector) Implemented(content, symbol string) bool {
	if symbol == "" {
		return false
	}
	name := regexp.QuoteMeta(symbol)
	for _, tmpl := range d.templates {
		re, err := regexp.Compile(strings.ReplaceAll(tmpl, "%s", name))
		if err != nil {
			continue
		}
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// ScriptDetector covers JavaScript and TypeScript.
var ScriptDetector Detector = patternDetector{templates: []string{
	`function\s*\*?\s+%s\s*[<(]`,
	`(?:const|let|var)\s+%s\s*(?::[^=]+)?=`,
	`\b%s\s*:\s*(?:async\s+)?function`,
	`\b%s\s*=\s*(?:async\s*)?(?:\([^)]*\)|[\w$]+)\s*=>`,
	`(?m)^\s*(?:(?:public|private|protected|static|async|get|set)\s+)*%s\s*\([^)]*\)\s*(?::[^{;]+)?\{`,
	`export\s+(?:default\s+)?(?:async\s+)?function\s+%s\b`,
}}

// PythonDetector covers Python.
var PythonDetector Detector = patternDetector{templates: []string{
	`def\s+%s\s*\(`,
	`(?m)^\s*%s\s*=\s*lambda\b`,
	`class\s+%s\s*[(:]`,
}}

// GoDetector covers Go functions and methods.
var GoDetector Detector = patternDetector{templates: []string{
	`func\s+(?:\([^)]*\)\s*)?%s\s*[\[(]`,
	`\b%s\s*:?=\s*func\s*\(`,
}}

// RustDetector covers Rust.
var RustDetector Detector = patternDetector{templates: []string{
	`fn\s+%s\s*[<(]`,
}}

// CFamilyDetector covers Java, Kotlin, C#, C and C++ definitions.
var CFamilyDetector Detector = patternDetector{templates: []string{
	`\b%s\s*\([^;{)]*\)\s*(?:const\s*)?(?:throws\s+[\w.,\s]+)?\{`,
	`fun\s+%s\s*[<(]`,
}}

// GenericDetector is the fallback for unregistered extensions. It accepts
// the declaration shapes of the most common scripting languages.
var GenericDetector Detector = patternDetector{templates: []string{
	`function\s+%s\s*\(`,
	`const\s+%s\s*=`,
	`def\s+%s\s*\(`,
	`\b%s\s*:\s*function`,
	`\b%s\s*=>\s*`,
}}

// Registry maps lowercase file extensions to detectors.
type Registry struct {
	byExt    map[string]Detector
	fallback Detector
}

// NewRegistry returns an empty registry using fallback for unknown
// extensions.
func NewRegistry(fallback Detector) *Registry {
	return &Registry{byExt: map[string]Detector{}, fallback: fallback}
}

// DefaultRegistry returns the registry with every built-in family.
func DefaultRegistry() *Registry {
	r := NewRegistry(GenericDetector)
	r.Register(ScriptDetector, ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs")
	r.Register(PythonDetector, ".py")
	r.Register(GoDetector, ".go")
	r.Register(RustDetector, ".rs")
	r.Register(CFamilyDetector, ".java", ".kt", ".cs", ".c", ".cc", ".cpp", ".h", ".hpp")
	return r
}

// Register binds d to each extension, replacing any previous binding.
func (r *Registry) Register(d Detector, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = d
	}
}

// For returns the detector for path's extension.
func (r *Registry) For(path string) Detector {
	if d, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return d
	}
	return r.fallback
}
