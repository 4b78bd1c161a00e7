// Package country detects country and region codes embedded in campaign,
// ad set and ad names such as "Summer-TR-Sale" or "US_DE_Bundle".
package country

import (
	"regexp"
	"sort"
	"strings"
)

// Codes is the fixed vocabulary recognised in names. It mixes ISO codes with
// the shorthands media buyers use (EN, UK, SP, AUST).
var Codes = []string{
	"TR", "EN", "IT", "DE", "FR", "RU", "BG", "NZ", "AU", "CA", "AUST",
	"ES", "SP", "NL", "BE", "AT", "CH", "PL", "UK", "US", "GB", "IE", "PT",
	"GR", "CZ", "HU", "RO", "SE", "NO", "DK", "FI", "SK", "HR", "SI",
	"LT", "LV", "EE", "CY", "MT", "LU", "IS", "AE", "SA", "QA", "KW",
	"BH", "OM", "JO", "LB", "IL", "EG", "MA", "TN", "DZ", "LY", "KE",
	"NG", "ZA", "GH", "IN", "PK", "BD", "LK", "NP", "ID", "MY", "SG",
	"TH", "VN", "PH", "JP", "KR", "CN", "HK", "TW", "MX", "BR", "AR",
	"CO", "CL", "PE", "VE", "EC", "UY", "PY", "BO", "CR", "PA", "DO",
	"GT", "HN", "SV", "NI", "CU", "PR", "JM", "TT", "BB", "BS",
}

type codePattern struct {
	code string
	re   *regexp.Regexp
}

// A code must touch a delimiter on at least one side; the other side may be
// the start or end of the name. A bare "TR" is not a tag.
var patterns = func() []codePattern {
	const delim = `[-_/\s]`
	out := make([]codePattern, 0, len(Codes))
	for _, code := range Codes {
		out = append(out, codePattern{
			code: code,
			re: regexp.MustCompile(
				`(?:^` + code + delim + `)|(?:` + delim + code + delim + `)|(?:` + delim + code + `$)`,
			),
		})
	}
	return out
}()

// Parse returns the codes found in name, in the order they appear. Each code
// is reported at most once. The result is never nil.
func Parse(name string) []string {
	upper := strings.ToUpper(name)

	type hit struct {
		code string
		pos  int
	}
	var hits []hit
	for _, p := range patterns {
		loc := p.re.FindStringIndex(upper)
		if loc == nil {
			continue
		}
		pos := loc[0]
		if !strings.HasPrefix(upper[pos:], p.code) {
			pos++ // skip the leading delimiter
		}
		hits = append(hits, hit{code: p.code, pos: pos})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	found := make([]string, 0, len(hits))
	for _, h := range hits {
		found = append(found, h.code)
	}
	return found
}

// Format renders codes for display: "-" when empty, otherwise "TR, DE".
func Format(codes []string) string {
	if len(codes) == 0 {
		return "-"
	}
	return strings.Join(codes, ", ")
}

// Contains reports whether codes includes code, ignoring case.
func Contains(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// Union merges code lists preserving first-seen order.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
