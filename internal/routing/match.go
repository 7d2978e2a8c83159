package routing

import "strings"

// containsFold reports whether needle occurs anywhere in haystack, ignoring
// case. Matching is raw substring containment with no word boundaries, so
// "crm" matches inside "crms".
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// firstContained returns the first term that is a case-insensitive substring
// of text.
func firstContained(text string, terms []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}

// NormalizeChannel folds a channel name for comparison: lowercase with a
// single leading '#' removed, so "dev", "#dev" and "#DEV" are equal.
func NormalizeChannel(ch string) string {
	return strings.TrimPrefix(strings.ToLower(ch), "#")
}

// firstChannel returns the first configured channel equal to channel after
// normalisation.
func firstChannel(channel string, channels []string) (string, bool) {
	want := NormalizeChannel(channel)
	for _, c := range channels {
		if NormalizeChannel(c) == want {
			return c, true
		}
	}
	return "", false
}

// cleanTerms drops blank and whitespace-only entries. Surviving entries are
// kept verbatim: padding is part of a term and changes both matching and
// Porter scores.
func cleanTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
