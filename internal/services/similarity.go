package services

import (
	"math"
	"strings"
)

// Similarity scores for the rule-based branches of the scorer
const (
	ScoreExactMatch = 1.00
	ScoreAliasMatch = 0.95
	ScoreSubstring  = 0.80
)

// SimilarityScorer rates how likely two field names refer to the same data
type SimilarityScorer struct{}

// NewSimilarityScorer creates a new similarity scorer
func NewSimilarityScorer() *SimilarityScorer {
	return &SimilarityScorer{}
}

// Score returns a confidence in [0,1], rounded to two decimals. The first matching
// rule wins: exact match, alias match (either direction), substring, then
// normalised edit distance.
func (s *SimilarityScorer) Score(sourceField, targetField string, sourceAliases, targetAliases []string) float64 {
	source := strings.ToLower(sourceField)
	target := strings.ToLower(targetField)

	switch {
	case source == target:
		return ScoreExactMatch
	case containsFold(sourceAliases, targetField):
		return ScoreAliasMatch
	case containsFold(targetAliases, sourceField):
		return ScoreAliasMatch
	case strings.Contains(source, target) || strings.Contains(target, source):
		return ScoreSubstring
	}

	maxLen := len([]rune(source))
	if l := len([]rune(target)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}

	score := 1 - float64(Levenshtein(source, target))/float64(maxLen)
	if score < 0 {
		score = 0
	}
	return roundConfidence(score)
}

// Levenshtein returns the edit distance between a and b with unit costs
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func containsFold(values []string, needle string) bool {
	for _, v := range values {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// roundConfidence rounds to two decimals and clamps to [0,1]
func roundConfidence(v float64) float64 {
	v = math.Round(v*100) / 100
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
