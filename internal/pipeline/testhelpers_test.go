package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
	"github.com/sells-group/radar-cli/internal/resolve"
	"github.com/sells-group/radar-cli/internal/scoring"
)

const testNow = int64(1_700_000_000)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		WindowHours:        24,
		TopK:               7,
		MinReturn:          5,
		OvershootThreshold: 0.62,
		OvershootLookahead: 10,
		RelMin:             0.35,
		RelSoft:            0.25,
		FallbackLimit:      400,
		ImpactWindowHours:  6,
		HalfLifeHours:      6,
	}
}

func newTestBuilder(impact ImpactSource) *Builder {
	return NewBuilder(resolve.New(nil), impact, testPipelineConfig(), scoring.DefaultWeights())
}

func rawItem(source, url, title string, group model.SourceGroup, cred float64, ageSecs int64) model.RawItem {
	return model.RawItem{
		Source:            source,
		URL:               url,
		Title:             title,
		PublishedAt:       testNow - ageSecs,
		Language:          "ru",
		CredibilityWeight: cred,
		SourceGroup:       group,
	}
}

// fakeImpact returns fixed metrics and records the lookups.
type fakeImpact struct {
	mu      sync.Mutex
	metrics model.ImpactMetrics
	calls   []impactCall
}

type impactCall struct {
	id          string
	windowHours int
	now         int64
}

func (f *fakeImpact) Metrics(_ context.Context, id string, windowHours int, now int64) model.ImpactMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, impactCall{id: id, windowHours: windowHours, now: now})
	return f.metrics
}

// memStore is an in-memory ItemStore keyed by URL.
type memStore struct {
	mu      sync.Mutex
	items   []model.RawItem
	readErr error
}

func (m *memStore) UpsertItems(_ context.Context, items []model.RawItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, it := range items {
		if it.URL == "" || m.has(it.URL) {
			continue
		}
		m.items = append(m.items, it)
		n++
	}
	return n, nil
}

func (m *memStore) has(url string) bool {
	for _, it := range m.items {
		if it.URL == url {
			return true
		}
	}
	return false
}

func (m *memStore) ItemsSince(_ context.Context, since int64, limit int) ([]model.RawItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []model.RawItem
	for _, it := range m.items {
		if it.PublishedAt >= since {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PublishedAt != out[j].PublishedAt {
			return out[i].PublishedAt > out[j].PublishedAt
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// keyGrouper groups items by a key derived from each item, in first
// appearance order. Items with an empty key become singletons.
type keyGrouper struct {
	key func(model.RawItem) string
}

func (g keyGrouper) Group(_ context.Context, items []model.RawItem) [][]model.RawItem {
	var groups [][]model.RawItem
	index := make(map[string]int)
	for _, it := range items {
		k := ""
		if g.key != nil {
			k = g.key(it)
		}
		if k == "" {
			groups = append(groups, []model.RawItem{it})
			continue
		}
		if i, ok := index[k]; ok {
			groups[i] = append(groups[i], it)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, []model.RawItem{it})
	}
	return groups
}

// singletons puts every item in its own group.
var singletons = keyGrouper{}

// panicResolver panics on texts containing a marker.
type panicResolver struct {
	Resolver
	marker string
}

func (p panicResolver) Relevance(text string) float64 {
	if strings.Contains(text, p.marker) {
		panic("resolver exploded")
	}
	return p.Resolver.Relevance(text)
}

type staticIngester struct {
	items []model.RawItem
	calls int
}

func (s *staticIngester) Poll(context.Context) []model.RawItem {
	s.calls++
	return s.items
}

func headlines(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Headline
	}
	return out
}

func eventURLs(events []model.Event) []string {
	var out []string
	for _, ev := range events {
		for _, it := range ev.Items {
			out = append(out, it.URL)
		}
	}
	return out
}
