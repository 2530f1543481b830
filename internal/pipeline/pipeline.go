// Package pipeline turns windowed raw news items into a ranked list of
// scored events: clustering, event building, the fallback cascade and
// overshoot selection.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// ItemStore is the slice of the item store the pipeline needs.
type ItemStore interface {
	UpsertItems(ctx context.Context, items []model.RawItem) (int, error)
	ItemsSince(ctx context.Context, since int64, limit int) ([]model.RawItem, error)
}

// Ingester fetches fresh items from the configured sources.
type Ingester interface {
	Poll(ctx context.Context) []model.RawItem
}

// Grouper partitions items into candidate event groups.
type Grouper interface {
	Group(ctx context.Context, items []model.RawItem) [][]model.RawItem
}

// Pipeline builds events from the item store.
type Pipeline struct {
	cfg      config.PipelineConfig
	store    ItemStore
	grouper  Grouper
	builder  *Builder
	ingester Ingester
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIngester enables fetching and storing fresh items at the start of
// each run when the config allows it.
func WithIngester(in Ingester) Option {
	return func(p *Pipeline) {
		p.ingester = in
	}
}

// WithClock overrides the wall clock (for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline.
func New(cfg config.PipelineConfig, st ItemStore, grouper Grouper, builder *Builder, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		store:   st,
		grouper: grouper,
		builder: builder,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// BuildEvents returns at most max(topK, min_return) events plus overshoot
// for the last windowHours hours. An empty window yields an empty slice.
// Only store read failures are returned as errors.
func (p *Pipeline) BuildEvents(ctx context.Context, windowHours, topK int) ([]model.Event, error) {
	if windowHours <= 0 {
		windowHours = p.cfg.WindowHours
	}
	runID := uuid.New().String()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("rules_version", p.builder.RulesVersion()),
	)
	start := time.Now()

	if p.ingester != nil && p.cfg.Ingest {
		p.ingest(ctx, log)
	}

	now := p.now().Unix()
	since := now - int64(windowHours)*3600
	items, err := p.store.ItemsSince(ctx, since, 0)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read window items")
	}
	log.Info("pipeline: window loaded",
		zap.Int("window_hours", windowHours),
		zap.Int("items", len(items)),
	)
	if len(items) == 0 {
		return []model.Event{}, nil
	}

	groups := p.grouper.Group(ctx, items)
	seen := newSeenSet()
	var events []model.Event
	for _, g := range groups {
		// Singletons are left to the cascade as single-item candidates.
		if len(g) < 2 {
			continue
		}
		ev, ok := p.builder.safeBuildGroup(ctx, g, now, windowHours)
		if !ok || !seen.claim(ev) {
			continue
		}
		events = append(events, ev)
	}
	clustered := len(events)

	need := max(topK, p.cfg.MinReturn)
	if len(events) < need {
		candidates := items
		if p.cfg.FallbackLimit > 0 && len(candidates) > p.cfg.FallbackLimit {
			candidates = candidates[:p.cfg.FallbackLimit]
		}
		events = append(events, p.builder.Cascade(ctx, candidates, need-len(events), now, windowHours, p.cfg.RelSoft, seen)...)
	}

	out := Select(events, Selection{
		Need:      need,
		Lookahead: p.cfg.OvershootLookahead,
		Threshold: p.cfg.OvershootThreshold,
	})
	log.Info("pipeline: events built",
		zap.Int("groups", len(groups)),
		zap.Int("clustered", clustered),
		zap.Int("fallback", len(events)-clustered),
		zap.Int("need", need),
		zap.Int("returned", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if out == nil {
		out = []model.Event{}
	}
	return out, nil
}

// ingest polls sources and stores the result. Failures are logged; the run
// continues on whatever the store already holds.
func (p *Pipeline) ingest(ctx context.Context, log *zap.Logger) {
	fetched := p.ingester.Poll(ctx)
	if len(fetched) == 0 {
		log.Warn("pipeline: ingest fetched no items")
		return
	}
	n, err := p.store.UpsertItems(ctx, fetched)
	if err != nil {
		log.Warn("pipeline: ingest upsert failed", zap.Error(err))
		return
	}
	log.Info("pipeline: ingest complete",
		zap.Int("fetched", len(fetched)),
		zap.Int("new", n),
	)
}
