// Package cicheck implements the static CI check of §4.H.1: a scanner
// that walks designated script directories, flags files whose source
// writes a protected table (teams, matches) without an accompanying
// write-authorization call. Grounded on the normalizer's regex-pattern
// idiom (internal/normalizer/normalizer.go), generalized from string
// extraction to source-scanning.
package cicheck

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var protectedTables = []string{"teams", "matches"}

var writePatternRe = regexp.MustCompile(`(?i)\b(INSERT\s+INTO|UPDATE|DELETE\s+FROM)\s+` + tableAlternation())

func tableAlternation() string {
	return `(` + strings.Join(protectedTables, "|") + `)\b`
}

var authorizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`authorize_pipeline_write`),
	regexp.MustCompile(`WithPipelineAuth`),
	regexp.MustCompile(`WithPipelineTransaction`),
}

// Violation is one file that writes a protected table without proof of
// authorization.
type Violation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Match  string `json:"match"`
	Reason string `json:"reason"`
}

// Options configures a scan.
type Options struct {
	Dirs      []string // designated script directories to walk
	Allowlist []string // file paths (relative to repo root) exempt from the check
	Extension string   // default ".go"
}

// Scan walks opts.Dirs and returns every Violation found.
func Scan(opts Options) ([]Violation, error) {
	ext := opts.Extension
	if ext == "" {
		ext = ".go"
	}
	allowed := make(map[string]bool, len(opts.Allowlist))
	for _, a := range opts.Allowlist {
		allowed[filepath.Clean(a)] = true
	}

	var violations []Violation
	for _, dir := range opts.Dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(path) != ext {
				return nil
			}
			if allowed[filepath.Clean(path)] {
				return nil
			}

			fileViolations, err := scanFile(path)
			if err != nil {
				return err
			}
			violations = append(violations, fileViolations...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return violations, nil
}

func scanFile(path string) ([]Violation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if !hasAuthorizationCall(data) {
		return writeViolationsIn(path, data), nil
	}
	return nil, nil
}

func hasAuthorizationCall(data []byte) bool {
	for _, re := range authorizationPatterns {
		if re.Match(data) {
			return true
		}
	}
	return false
}

func writeViolationsIn(path string, data []byte) []Violation {
	var violations []Violation
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if m := writePatternRe.FindString(line); m != "" {
			violations = append(violations, Violation{
				File:   path,
				Line:   i + 1,
				Match:  strings.TrimSpace(m),
				Reason: "writes a protected table with no authorization call anywhere in the file",
			})
		}
	}
	return violations
}
