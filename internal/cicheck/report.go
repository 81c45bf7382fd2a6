package cicheck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders violations the way a human reads a CI log.
func FormatText(violations []Violation) string {
	if len(violations) == 0 {
		return "no write-authorization violations found"
	}
	var b strings.Builder
	for _, v := range violations {
		fmt.Fprintf(&b, "%s:%d: %s (%s)\n", v.File, v.Line, v.Reason, v.Match)
	}
	return b.String()
}

// FormatJSON renders violations for CI log aggregation (§4.H.1's
// --format=json extension).
func FormatJSON(violations []Violation) (string, error) {
	if violations == nil {
		violations = []Violation{}
	}
	data, err := json.MarshalIndent(violations, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal violations: %w", err)
	}
	return string(data), nil
}
