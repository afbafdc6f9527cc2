// Package theme assigns a background-footage theme to an item by matching
// configured keyword lists against its title and transcript.
package theme

import (
	"sort"
	"strings"
)

// Classify returns the theme whose keyword list matches the text most often,
// falling back to def when nothing matches. Ties break alphabetically so the
// result is stable across runs.
func Classify(text string, keywords map[string][]string, def string) string {
	lower := strings.ToLower(text)

	names := make([]string, 0, len(keywords))
	for name := range keywords {
		names = append(names, name)
	}
	sort.Strings(names)

	best := def
	bestHits := 0
	for _, name := range names {
		hits := 0
		for _, kw := range keywords[name] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			best = name
			bestHits = hits
		}
	}
	return best
}
