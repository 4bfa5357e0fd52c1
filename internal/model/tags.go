package model

import "strings"

// NormalizeTags trims tags, drops empties and removes case-insensitive duplicates.
// The first spelling of a tag wins and input order is preserved.
func NormalizeTags(tags []string) []string {
	return MergeTags(nil, tags)
}

// MergeTags unions extra into existing with case-insensitive deduplication.
func MergeTags(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))

	for _, list := range [][]string{existing, extra} {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// RemoveTags drops every tag in remove, compared case-insensitively.
func RemoveTags(existing, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, tag := range remove {
		drop[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}

	out := make([]string, 0, len(existing))
	for _, tag := range existing {
		if _, ok := drop[strings.ToLower(tag)]; ok {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// SameTags reports whether a and b hold the same set of tags, ignoring order and case.
func SameTags(a, b []string) bool {
	na, nb := NormalizeTags(a), NormalizeTags(b)
	if len(na) != len(nb) {
		return false
	}
	set := make(map[string]struct{}, len(na))
	for _, tag := range na {
		set[strings.ToLower(tag)] = struct{}{}
	}
	for _, tag := range nb {
		if _, ok := set[strings.ToLower(tag)]; !ok {
			return false
		}
	}
	return true
}
