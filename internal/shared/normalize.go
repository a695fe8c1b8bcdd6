package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var upper = cases.Upper(language.Und)

// NormalizeCode folds account, product and warehouse codes into their canonical form.
func NormalizeCode(code string) string {
	code = norm.NFKC.String(strings.TrimSpace(code))
	return upper.String(strings.Join(strings.Fields(code), ""))
}

// NormalizeName trims and collapses whitespace in display names.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}
