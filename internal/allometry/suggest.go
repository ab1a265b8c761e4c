package allometry

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Suggest returns the closest known species name for a misspelled input, or
// "" when nothing is plausibly close. Intended for CLI and API diagnostics
// when a lookup would otherwise fall through to the generic default.
func (s *Store) Suggest(species string) string {
	input := strings.ToLower(strings.TrimSpace(species))
	if input == "" {
		return ""
	}
	best := ""
	bestDist := 0
	for _, candidate := range s.species {
		dist := levenshtein.ComputeDistance(input, strings.ToLower(candidate))
		if dist > suggestLimit(len(candidate)) {
			continue
		}
		if best == "" || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	return best
}

func suggestLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
