package cluster

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// Clusterer partitions items into candidate event groups.
type Clusterer struct {
	emb        Embedder
	eps        float64
	minSamples int
	maxRunes   int
}

// New creates a Clusterer. Zero config values fall back to eps 0.25,
// two samples and 512 runes of text per item.
func New(emb Embedder, cfg config.ClusterConfig) *Clusterer {
	c := &Clusterer{emb: emb, eps: cfg.Eps, minSamples: cfg.MinSamples, maxRunes: cfg.MaxTextRunes}
	if c.eps <= 0 {
		c.eps = 0.25
	}
	if c.minSamples <= 0 {
		c.minSamples = 2
	}
	if c.maxRunes <= 0 {
		c.maxRunes = 512
	}
	return c
}

// Group returns clusters in order of their first item, with every noise item
// as its own singleton group. When embeddings are unavailable every item is
// a singleton.
func (c *Clusterer) Group(ctx context.Context, items []model.RawItem) [][]model.RawItem {
	if len(items) == 0 {
		return nil
	}

	labels := c.labels(ctx, items)

	var groups [][]model.RawItem
	slot := make(map[int]int)
	for i, it := range items {
		l := labels[i]
		if l == Noise {
			groups = append(groups, []model.RawItem{it})
			continue
		}
		idx, ok := slot[l]
		if !ok {
			idx = len(groups)
			slot[l] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], it)
	}
	return groups
}

func (c *Clusterer) labels(ctx context.Context, items []model.RawItem) []int {
	noise := make([]int, len(items))
	for i := range noise {
		noise[i] = Noise
	}
	if c.emb == nil {
		return noise
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = truncateRunes(it.Text(), c.maxRunes)
	}

	vecs, err := c.emb.Embed(ctx, texts)
	if err != nil {
		zap.L().Warn("cluster: embedding failed, using singletons", zap.Int("items", len(items)), zap.Error(err))
		return noise
	}
	if len(vecs) != len(items) {
		zap.L().Warn("cluster: embedding count mismatch, using singletons",
			zap.Int("items", len(items)), zap.Int("vectors", len(vecs)))
		return noise
	}
	return DBSCAN(vecs, c.eps, c.minSamples)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
