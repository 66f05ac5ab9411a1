package memory

import (
	"container/heap"
	"encoding/binary"
	"math"
	"strings"
)

// ============================================================================
// EMBEDDING HELPERS
// ============================================================================

// Float32SliceToBytes converts a float32 slice to bytes for SQLite BLOB storage.
func Float32SliceToBytes(slice []float32) []byte {
	if slice == nil {
		return nil
	}
	buf := make([]byte, len(slice)*4)
	for i, v := range slice {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// BytesToFloat32Slice converts bytes from SQLite BLOB to float32 slice.
func BytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		result[i] = math.Float32frombits(bits)
	}
	return result
}

// ============================================================================
// VECTOR MATH
// ============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched lengths, empty vectors, and zero vectors all score 0 rather
// than producing an error or NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeVector normalizes a vector to unit length.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var norm float64
	for _, val := range v {
		norm += float64(val) * float64(val)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}
	return result
}

// ============================================================================
// TEXT HELPERS
// ============================================================================

// Tokenize lower-cases and whitespace-splits text into words.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// WordSet returns the set of lower-cased words in text.
func WordSet(text string) map[string]struct{} {
	words := Tokenize(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// WordSetJaccard computes Jaccard similarity between the word sets of two
// texts. Two empty texts are fully similar; one empty text is fully
// dissimilar.
func WordSetJaccard(a, b string) float64 {
	setA := WordSet(a)
	setB := WordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// truncateString truncates a string to maxLen with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// ============================================================================
// STATISTICS HELPERS
// ============================================================================

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance returns the population variance of values.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

// ============================================================================
// SCORING HELPERS
// ============================================================================

// ScoredItem represents an item with a similarity/relevance score.
type ScoredItem[T any] struct {
	Item  T
	Score float64
}

// scoredItemHeap is a min-heap used for top-K selection: the smallest score
// stays at the root so it can be evicted in O(log k).
type scoredItemHeap[T any] []ScoredItem[T]

func (h scoredItemHeap[T]) Len() int           { return len(h) }
func (h scoredItemHeap[T]) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h scoredItemHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredItemHeap[T]) Push(x any) {
	*h = append(*h, x.(ScoredItem[T]))
}

func (h *scoredItemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// TopKWithScores finds the top K highest-scoring items, returned in
// descending score order. O(n log k) instead of O(n log n) sort-then-cut,
// which matters when k is a handful and n is the whole candidate set.
func TopKWithScores[T any](items []ScoredItem[T], k int) []ScoredItem[T] {
	if k <= 0 || len(items) == 0 {
		return nil
	}

	// Heap overhead isn't worth it when k covers the whole input.
	if len(items) <= k {
		result := make([]ScoredItem[T], len(items))
		copy(result, items)
		for i := 0; i < len(result)-1; i++ {
			for j := i + 1; j < len(result); j++ {
				if result[j].Score > result[i].Score {
					result[i], result[j] = result[j], result[i]
				}
			}
		}
		return result
	}

	h := make(scoredItemHeap[T], k)
	copy(h, items[:k])
	heap.Init(&h)

	for i := k; i < len(items); i++ {
		if items[i].Score > h[0].Score {
			heap.Pop(&h)
			heap.Push(&h, items[i])
		}
	}

	result := make([]ScoredItem[T], len(h))
	for i := len(h) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ScoredItem[T])
	}

	return result
}
