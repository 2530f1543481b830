package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/model"
)

// cascadeLevel is one relaxation step of the fallback cascade.
type cascadeLevel struct {
	name   string
	relMin float64
	// tiered restricts the level to regulator, exchange and tier-1 items.
	tiered bool
}

// seenSet tracks URLs and normalized headlines already taken by the run.
type seenSet struct {
	urls      map[string]struct{}
	headlines map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{
		urls:      make(map[string]struct{}),
		headlines: make(map[string]struct{}),
	}
}

// claim records an accepted event. It reports false when the headline was
// already taken.
func (s *seenSet) claim(ev model.Event) bool {
	key := headlineKey(ev.Headline)
	if _, ok := s.headlines[key]; ok {
		return false
	}
	s.headlines[key] = struct{}{}
	for _, it := range ev.Items {
		if it.URL != "" {
			s.urls[it.URL] = struct{}{}
		}
	}
	return true
}

func (s *seenSet) usedURL(url string) bool {
	_, ok := s.urls[url]
	return ok
}

// PrioritySort orders items for the cascade: source group priority, then
// credibility, then recency, all descending. The input is not modified.
func PrioritySort(items []model.RawItem) []model.RawItem {
	out := make([]model.RawItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := a.SourceGroup.Priority(), b.SourceGroup.Priority(); pa != pb {
			return pa > pb
		}
		if a.CredibilityWeight != b.CredibilityWeight {
			return a.CredibilityWeight > b.CredibilityWeight
		}
		return a.PublishedAt > b.PublishedAt
	})
	return out
}

// Cascade builds up to need single-item events from candidates, relaxing
// the relevance threshold level by level: relMin, then relSoft, then no
// threshold for regulator, exchange and tier-1 items only. Items whose URL
// or normalized headline is already in seen are skipped; accepted events are
// added to seen.
func (b *Builder) Cascade(
	ctx context.Context,
	candidates []model.RawItem,
	need int,
	now int64,
	windowHours int,
	relSoft float64,
	seen *seenSet,
) []model.Event {
	if need <= 0 || len(candidates) == 0 {
		return nil
	}

	levels := []cascadeLevel{
		{name: "rel_min", relMin: b.relMin},
		{name: "rel_soft", relMin: relSoft},
		{name: "tiered", relMin: 0, tiered: true},
	}

	ordered := PrioritySort(candidates)
	var out []model.Event
	for _, lvl := range levels {
		if len(out) >= need {
			break
		}
		before := len(out)
		for _, it := range ordered {
			if len(out) >= need {
				break
			}
			if lvl.tiered && it.SourceGroup.Priority() == 0 {
				continue
			}
			if it.URL == "" || seen.usedURL(it.URL) {
				continue
			}
			ev, ok := b.safeBuildSingle(ctx, it, now, windowHours, lvl.relMin)
			if !ok || !seen.claim(ev) {
				continue
			}
			out = append(out, ev)
		}
		zap.L().Debug("pipeline: cascade level",
			zap.String("level", lvl.name),
			zap.Float64("rel_min", lvl.relMin),
			zap.Int("added", len(out)-before),
			zap.Int("total", len(out)),
			zap.Int("need", need),
		)
	}
	return out
}

// safeBuildSingle is BuildSingle with panics turned into a rejection.
func (b *Builder) safeBuildSingle(ctx context.Context, it model.RawItem, now int64, windowHours int, relMin float64) (ev model.Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: single-item build panicked",
				zap.String("url", it.URL),
				zap.Any("panic", r),
			)
			ev, ok = model.Event{}, false
		}
	}()
	return b.BuildSingle(ctx, it, now, windowHours, relMin)
}

// safeBuildGroup is BuildGroup with panics turned into a rejection.
func (b *Builder) safeBuildGroup(ctx context.Context, items []model.RawItem, now int64, windowHours int) (ev model.Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: group build panicked",
				zap.Int("items", len(items)),
				zap.Any("panic", r),
			)
			ev, ok = model.Event{}, false
		}
	}()
	return b.BuildGroup(ctx, items, now, windowHours)
}
