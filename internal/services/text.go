package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeTag folds case and Unicode width so that "Boho", "BOHO" and
// full-width variants compare equal.
func normalizeTag(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(norm.NFKC.String(s))
}

func equalFold(a, b string) bool {
	return normalizeTag(a) == normalizeTag(b)
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if n := normalizeTag(tag); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
