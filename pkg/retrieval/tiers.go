package retrieval

// Chunk access tiers. S is premium material, D is internal-only.
const (
	TierS = "S"
	TierA = "A"
	TierB = "B"
	TierC = "C"
	TierD = "D"
)

// allowedTiersByLevel maps a user level (1-5) to the tiers they may read.
// Levels outside the range clamp to the nearest entry.
var allowedTiersByLevel = map[int][]string{
	1: {TierC, TierB},
	2: {TierC, TierB, TierA},
	3: {TierC, TierB, TierA, TierS},
	4: {TierC, TierB, TierA, TierS, TierD},
	5: {TierC, TierB, TierA, TierS, TierD},
}

// AllowedTiers returns the tier set a user level may read. The returned
// slice is a copy.
func AllowedTiers(level int) []string {
	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}
	tiers := allowedTiersByLevel[level]
	out := make([]string, len(tiers))
	copy(out, tiers)
	return out
}
