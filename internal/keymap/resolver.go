// Package keymap maps UI metric labels to concrete provider metric keys per
// entity, and persists those decisions as a human-editable JSON artifact.
package keymap

import (
	"regexp"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize canonicalizes a metric key for comparison: lowercased with all
// non-alphanumeric characters stripped. Provider key constants and
// human-authored candidate lists drift in casing and punctuation; matching
// on the normalized form absorbs that.
func Normalize(key string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(key), "")
}

// Resolve picks the concrete provider key for one (entity, label) pair.
//
// available is the provider's advertised key set for the entity; nil means
// enumeration was not permitted or failed (availability unknown).
//
//   - A prior choice that normalizes to an available key sticks, even when a
//     higher-priority candidate is also available and even if casing drifted.
//   - Otherwise the first candidate that normalizes to an available key wins.
//   - With availability unknown or empty, the first candidate is returned
//     optimistically; a later fetch returning no rows for it is fine.
//   - No candidates at all resolves to nothing.
func Resolve(candidates []string, prior string, available []string) (string, bool) {
	if len(available) > 0 {
		byNorm := make(map[string]string, len(available))
		for _, key := range available {
			if _, ok := byNorm[Normalize(key)]; !ok {
				byNorm[Normalize(key)] = key
			}
		}
		if prior != "" {
			if key, ok := byNorm[Normalize(prior)]; ok {
				return key, true
			}
		}
		for _, cand := range candidates {
			if key, ok := byNorm[Normalize(cand)]; ok {
				return key, true
			}
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return "", false
}
