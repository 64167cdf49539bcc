package ratings

import "strings"

// NormalizeGameType canonicalizes a raw type label into the stable key
// that partitions rating pools: lower-cased, trimmed, with internal
// whitespace runs collapsed to a single hyphen. Empty input maps to
// "unknown".
func NormalizeGameType(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.Join(fields, "-")
}
