package memory

import (
	"fmt"
	"sort"
	"strings"
)

// Per-style item limits and truncation widths.
const (
	keyPointsMaxItems  = 5
	keyPointsItemWidth = 100

	narrativeMaxItems  = 3
	narrativeItemWidth = 150

	structuredGroupedMaxPerType = 2
	structuredGroupedItemWidth  = 80
	structuredFlatMaxItems      = 4
	structuredFlatItemWidth     = 100
)

// DefaultSummaryLength is the default character budget for summaries.
const DefaultSummaryLength = 500

// SummarizeMemories renders a relevance-sorted memory list into a bounded
// text block. The assembled summary is truncated to maxLength characters,
// with a trailing "..." when it had to be cut.
func SummarizeMemories(memories []ScoredMemory, query string, maxLength int, opts SummaryOptions) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}
	if opts.Style == "" {
		opts.Style = SummaryKeyPoints
	}
	if len(memories) == 0 {
		return "", nil
	}

	var summary string
	switch opts.Style {
	case SummaryKeyPoints:
		summary = summarizeKeyPoints(memories, opts.IncludeRelevance)
	case SummaryNarrative:
		summary = summarizeNarrative(memories)
	case SummaryStructured:
		summary = summarizeStructured(memories, opts.GroupByTopic)
	default:
		return "", fmt.Errorf("unknown summary style: %q", opts.Style)
	}

	return truncateString(summary, maxLength), nil
}

// summarizeKeyPoints renders a numbered list of the top memories in
// relevance order, optionally annotated with their scores.
func summarizeKeyPoints(memories []ScoredMemory, includeRelevance bool) string {
	var sb strings.Builder

	n := min(len(memories), keyPointsMaxItems)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, truncateString(memories[i].Content, keyPointsItemWidth)))
		if includeRelevance {
			sb.WriteString(fmt.Sprintf(" (relevance: %.2f)", memories[i].Relevance))
		}
	}

	return sb.String()
}

// summarizeNarrative re-sorts chronologically (not by relevance) and joins
// the earliest memories into flowing prose.
func summarizeNarrative(memories []ScoredMemory) string {
	ordered := make([]ScoredMemory, len(memories))
	copy(ordered, memories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	n := min(len(ordered), narrativeMaxItems)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		part := strings.TrimSpace(truncateString(ordered[i].Content, narrativeItemWidth))
		if part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, " ")
}

// summarizeStructured buckets by memory type when grouping is requested,
// otherwise renders a flat numbered list.
func summarizeStructured(memories []ScoredMemory, groupByTopic bool) string {
	var sb strings.Builder

	if !groupByTopic {
		n := min(len(memories), structuredFlatMaxItems)
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("%d. %s", i+1, truncateString(memories[i].Content, structuredFlatItemWidth)))
		}
		return sb.String()
	}

	groups := make(map[MemoryType][]ScoredMemory)
	var order []MemoryType
	for _, m := range memories {
		if _, ok := groups[m.Type]; !ok {
			order = append(order, m.Type)
		}
		groups[m.Type] = append(groups[m.Type], m)
	}

	for gi, t := range order {
		if gi > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s:", t))
		members := groups[t]
		n := min(len(members), structuredGroupedMaxPerType)
		for i := 0; i < n; i++ {
			sb.WriteString(fmt.Sprintf("\n- %s", truncateString(members[i].Content, structuredGroupedItemWidth)))
		}
	}

	return sb.String()
}
