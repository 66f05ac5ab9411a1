package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TemporalClusterWindow is the maximum spread of a temporal cluster,
// measured from its first member.
const TemporalClusterWindow = 24 * time.Hour

// ClusterMemories groups memories by the selected algorithm. Input order is
// significant for topic clustering (greedy, first-come seeds). Every input
// memory lands in exactly one cluster unless the max_clusters cap is hit
// before it is reached, in which case the remainder is dropped.
func ClusterMemories(memories []ScoredMemory, opts ClusterOptions) ([]Cluster, error) {
	if opts.MaxClusters <= 0 {
		opts.MaxClusters = DefaultClusterOptions().MaxClusters
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultClusterOptions().SimilarityThreshold
	}
	if opts.Type == "" {
		opts.Type = ClusterTopic
	}

	if len(memories) == 0 {
		return nil, nil
	}

	switch opts.Type {
	case ClusterTopic:
		return clusterByTopic(memories, opts), nil
	case ClusterTemporal:
		return clusterByTime(memories, opts), nil
	case ClusterSemantic:
		// Placeholder: true embedding-based clustering is not implemented,
		// topic clustering stands in.
		log.Debug().Msg("semantic clustering falling back to topic clustering")
		clusters := clusterByTopic(memories, opts)
		for i := range clusters {
			clusters[i].Type = ClusterSemantic
		}
		return clusters, nil
	default:
		return nil, fmt.Errorf("unknown cluster type: %q", opts.Type)
	}
}

// clusterByTopic greedily clusters by lexical overlap: each not-yet-
// clustered memory seeds a cluster and absorbs every later unclustered
// memory whose word-set Jaccard similarity meets the threshold.
func clusterByTopic(memories []ScoredMemory, opts ClusterOptions) []Cluster {
	clustered := make([]bool, len(memories))
	var clusters []Cluster

	for i := range memories {
		if clustered[i] {
			continue
		}
		if len(clusters) >= opts.MaxClusters {
			break
		}

		members := []ScoredMemory{memories[i]}
		clustered[i] = true

		for j := i + 1; j < len(memories); j++ {
			if clustered[j] {
				continue
			}
			if WordSetJaccard(memories[i].Content, memories[j].Content) >= opts.SimilarityThreshold {
				members = append(members, memories[j])
				clustered[j] = true
			}
		}

		clusters = append(clusters, newCluster(ClusterTopic, members))
	}

	return clusters
}

// clusterByTime sorts chronologically and buckets consecutive memories
// while each stays within the window of the bucket's first member.
func clusterByTime(memories []ScoredMemory, opts ClusterOptions) []Cluster {
	ordered := make([]ScoredMemory, len(memories))
	copy(ordered, memories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var clusters []Cluster
	var bucket []ScoredMemory
	var anchor time.Time

	flush := func() {
		if len(bucket) > 0 {
			clusters = append(clusters, newCluster(ClusterTemporal, bucket))
			bucket = nil
		}
	}

	for _, m := range ordered {
		if len(bucket) == 0 {
			bucket = []ScoredMemory{m}
			anchor = m.CreatedAt
			continue
		}
		if m.CreatedAt.Sub(anchor) <= TemporalClusterWindow {
			bucket = append(bucket, m)
			continue
		}
		flush()
		if len(clusters) >= opts.MaxClusters {
			return clusters
		}
		bucket = []ScoredMemory{m}
		anchor = m.CreatedAt
	}

	if len(clusters) < opts.MaxClusters {
		flush()
	}

	return clusters
}

func newCluster(ct ClusterType, members []ScoredMemory) Cluster {
	scores := make([]float64, len(members))
	for i, m := range members {
		scores[i] = m.Relevance
	}

	return Cluster{
		ID:           fmt.Sprintf("cluster_%s", uuid.New().String()[:8]),
		Type:         ct,
		Members:      members,
		AvgRelevance: mean(scores),
	}
}
