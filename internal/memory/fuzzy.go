package memory

// FuzzyScore computes a word-level similarity between query and text. For
// each query word it takes the best character-set Jaccard match among the
// text's words; the overall score is the mean of those best matches.
//
// This is intentionally cheap: no edit distance, just character overlap.
// Good enough for single-typo tolerance, not a real fuzzy matcher.
func FuzzyScore(query, text string) float64 {
	queryWords := Tokenize(query)
	if len(queryWords) == 0 {
		return 0
	}
	textWords := Tokenize(text)
	if len(textWords) == 0 {
		return 0
	}

	total := 0.0
	for _, qw := range queryWords {
		best := 0.0
		for _, tw := range textWords {
			sim := charJaccard(qw, tw)
			if sim > best {
				best = sim
			}
			if best == 1.0 {
				break
			}
		}
		total += best
	}

	return total / float64(len(queryWords))
}

// charJaccard computes the Jaccard similarity of the character sets of two
// words: 1.0 for identical strings, 0.0 when either is empty or the sets
// are disjoint.
func charJaccard(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	setA := make(map[rune]struct{}, len(a))
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{}, len(b))
	for _, r := range b {
		setB[r] = struct{}{}
	}

	intersection := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
