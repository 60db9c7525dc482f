package strings

// LevenshteinDistance returns the minimum number of single-character
// insertions, deletions or substitutions that turn s1 into s2.
//
// Example:
//
//	LevenshteinDistance("kitten", "sitting") // Returns: 3
func LevenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// ClosestLevenshtein returns the candidate nearest to target, or "" when
// none is within threshold times the length of target. Exact matches are
// not suggestions and are skipped.
func ClosestLevenshtein(target string, candidates []string, threshold float64) string {
	limit := int(float64(len(target)) * threshold)
	best, bestDist := "", -1
	for _, c := range candidates {
		d := LevenshteinDistance(target, c)
		if d == 0 || d > limit {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	return best
}
