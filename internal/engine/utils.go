// Completion: 100% - Utility module complete
package engine

import (
	"sort"
	"strings"
)

// utils.go - Utility helper functions
//
// String similarity helpers used to suggest fixup kind and target names
// when the user misspells one.

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Two rows are enough, only the previous row is ever read
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, // deletion
				cur[j-1]+1,      // insertion
				prev[j-1]+cost) // substitution
		}
		prev, cur = cur, prev
	}

	return prev[len(s2)]
}

// FindSimilar returns up to maxSuggestions candidates close to name,
// closest first. Matching ignores case.
func FindSimilar(name string, candidates []string, maxSuggestions int) []string {
	type suggestion struct {
		name     string
		distance int
	}

	var suggestions []suggestion
	threshold := max(3, len(name)/3) // Maximum edit distance for suggestions

	lower := strings.ToLower(name)
	for _, candidate := range candidates {
		dist := levenshteinDistance(lower, strings.ToLower(candidate))
		if dist <= threshold && dist > 0 {
			suggestions = append(suggestions, suggestion{candidate, dist})
		}
	}

	// Sort by distance (closest first)
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].distance == suggestions[j].distance {
			return suggestions[i].name < suggestions[j].name
		}
		return suggestions[i].distance < suggestions[j].distance
	})

	result := make([]string, 0, maxSuggestions)
	for i := 0; i < len(suggestions) && i < maxSuggestions; i++ {
		result = append(result, suggestions[i].name)
	}
	return result
}

// DidYouMean formats suggestions as a hint, or returns "" when there are none
func DidYouMean(name string, candidates []string) string {
	similar := FindSimilar(name, candidates, 3)
	if len(similar) == 0 {
		return ""
	}
	return "did you mean " + strings.Join(similar, ", ") + "?"
}
