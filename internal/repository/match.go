package repository

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// Normalize folds case and full/half width so that "ＡＢＣ", "abc" and "ABC"
// compare equal. Japanese company names are often typed in either width.
func Normalize(s string) string {
	// Casers carry state and are not shared between goroutines.
	return cases.Fold().String(width.Fold.String(strings.TrimSpace(s)))
}

// MatchesFilter reports whether c satisfies the filter fields of spec.
// Region and industry are exact after normalisation, the name query is a substring match.
func MatchesFilter(c model.Company, spec model.TargetSpec) bool {
	if spec.Region != "" && Normalize(c.Region) != Normalize(spec.Region) {
		return false
	}
	if spec.Industry != "" && Normalize(c.Industry) != Normalize(spec.Industry) {
		return false
	}
	if spec.NameQuery != "" && !strings.Contains(Normalize(c.Name), Normalize(spec.NameQuery)) {
		return false
	}
	return true
}
