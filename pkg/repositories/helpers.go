package repositories

import "github.com/ekaya-inc/ekaya-adsync/pkg/models"

// nullString returns nil if the string is empty, otherwise returns the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString returns "" for a nil pointer.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListFilter narrows hierarchy reads. Empty fields match everything.
type ListFilter struct {
	AdAccountID string
	// Search matches names case-insensitively as a substring.
	Search string
	// CreatedIn is only honoured by campaign lists.
	CreatedIn *models.DateRange
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
