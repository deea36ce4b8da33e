package strings

import (
	"strings"
)

// Normalize trims each entry and drops empty and repeated entries, keeping first occurrences in order.
func Normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	filtered := make([]string, 0, len(list))

	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if len(entry) == 0 {
			continue
		}
		if _, found := seen[entry]; !found {
			seen[entry] = struct{}{}
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
