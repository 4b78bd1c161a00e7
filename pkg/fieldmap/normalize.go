// Package fieldmap resolves raw lead-form field labels ("E-Mail Address",
// "Telefonnummer") to canonical field names ("email", "phone").
package fieldmap

import (
	"regexp"
	"strings"
)

var separatorRuns = regexp.MustCompile(`[\s_\-]+`)

var quoteReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"`", "'",
	"´", "'",
	"“", `"`,
	"”", `"`,
)

// Normalize is the cache key for a raw field name: lower-cased, with
// whitespace, underscore and hyphen runs removed and quote variants unified.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = separatorRuns.ReplaceAllString(s, "")
	return quoteReplacer.Replace(s)
}
