// Package textutil normalizes free text submitted by users.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Clean strips every HTML element from s and trims surrounding whitespace.
// Entities are decoded again so plain text such as "R&D" survives unchanged.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
