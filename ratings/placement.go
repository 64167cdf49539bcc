package ratings

import "sort"

// ResolvePlacements sorts participants descending by score and assigns
// competition-style placements: tied scores share a rank and the next
// distinct score takes its 1-based sort position, so [100,100,50]
// places [1,1,3]. Scores are assumed higher-is-better.
//
// Returns ok=false for fewer than two participants; callers treat that
// as a no-op.
func ResolvePlacements(parts []Participant) ([]Participant, bool) {
	if len(parts) < 2 {
		return nil, false
	}
	placed := make([]Participant, len(parts))
	copy(placed, parts)
	sort.SliceStable(placed, func(i, j int) bool {
		return placed[i].Score > placed[j].Score
	})
	for i := range placed {
		if i > 0 && placed[i].Score == placed[i-1].Score {
			placed[i].Placement = placed[i-1].Placement
		} else {
			placed[i].Placement = i + 1
		}
	}
	return placed, true
}
