package pipeline

import (
	"context"
	"crypto/sha1" //nolint:gosec // short content key, not a security boundary
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
	"github.com/sells-group/radar-cli/internal/scoring"
)

const (
	maxHeadlineRunes = 180
	maxSources       = 5
	defaultHeadline  = "Event"
)

// Calibration bounds for the market-impact features.
const (
	priceMoveLo, priceMoveHi       = 0.5, 6.0
	volumeRatioLo, volumeRatioHi   = 0.8, 3.0
	priceAnomalyLo, priceAnomalyHi = 1.0, 4.0
)

// Resolver maps free text to relevance and instrument identifiers.
type Resolver interface {
	Relevance(text string) float64
	Instruments(text string) []string
}

// ImpactSource returns market reaction metrics for one instrument.
type ImpactSource interface {
	Metrics(ctx context.Context, id string, windowHours int, now int64) model.ImpactMetrics
}

// Builder turns groups of raw items into scored events.
type Builder struct {
	resolver          Resolver
	impact            ImpactSource
	weights           config.HotnessConfig
	relMin            float64
	halfLifeHours     float64
	impactWindowHours int
}

// NewBuilder creates a Builder. impact may be nil, in which case every event
// carries empty metrics.
func NewBuilder(res Resolver, impact ImpactSource, cfg config.PipelineConfig, weights config.HotnessConfig) *Builder {
	b := &Builder{
		resolver:          res,
		impact:            impact,
		weights:           weights,
		relMin:            cfg.RelMin,
		halfLifeHours:     cfg.HalfLifeHours,
		impactWindowHours: cfg.ImpactWindowHours,
	}
	if b.halfLifeHours <= 0 {
		b.halfLifeHours = scoring.DefaultHalfLifeHours
	}
	if b.impactWindowHours <= 0 {
		b.impactWindowHours = 6
	}
	return b
}

// RulesVersion reports the resolver's rule table version, or "" when the
// resolver is not versioned.
func (b *Builder) RulesVersion() string {
	if v, ok := b.resolver.(interface{ Version() string }); ok {
		return v.Version()
	}
	return ""
}

// BuildGroup builds an event from a group of items. Groups below the
// relevance threshold or covered by a single source name are rejected
// unless a regulator or exchange item is present. Groups without any
// titled item are rejected.
func (b *Builder) BuildGroup(ctx context.Context, items []model.RawItem, now int64, windowHours int) (model.Event, bool) {
	if len(items) == 0 {
		return model.Event{}, false
	}

	var titles []string
	groups := make(map[model.SourceGroup]struct{})
	names := make(map[string]struct{})
	texts := make([]string, 0, len(items))
	for _, it := range items {
		groups[it.SourceGroup] = struct{}{}
		names[it.Source] = struct{}{}
		texts = append(texts, it.Text())
		if it.Title != "" {
			titles = append(titles, it.Title)
		}
	}
	if len(titles) == 0 {
		return model.Event{}, false
	}

	text := strings.Join(texts, " ")
	rel := b.resolver.Relevance(text)
	authoritative := hasAuthoritative(groups)
	if rel < b.relMin && !authoritative {
		return model.Event{}, false
	}
	if len(names) < 2 && !authoritative {
		return model.Event{}, false
	}

	ids := b.resolver.Instruments(text)
	impact := b.metrics(ctx, ids, now, windowHours)

	timestamps := make([]int64, len(items))
	weights := make([]float64, len(items))
	itemGroups := make([]model.SourceGroup, len(items))
	for i, it := range items {
		timestamps[i] = it.PublishedAt
		weights[i] = it.CredibilityWeight
		itemGroups[i] = it.SourceGroup
	}

	feats := b.features(timestamps, weights, itemGroups, ids, rel, impact, now)
	validity := scoring.Round3(0.5*feats.Credibility + 0.3*feats.Confirmations + 0.2*feats.Recency)
	timeline := buildTimeline(items)

	return model.Event{
		DedupKey:      titlesKey(titles),
		Headline:      pickHeadline(items),
		Hotness:       scoring.CombineLogistic(b.weights, feats),
		Validity:      validity,
		WhyNow:        fmt.Sprintf("Coverage from %d sources (%s).", len(names), joinGroups(groups)),
		InstrumentIDs: ids,
		Sources:       buildSources(items),
		Timeline:      timeline,
		Items:         slices.Clone(items),
		Features:      feats,
		Impact:        impact,
		WindowStart:   timeline[0].Time,
		WindowEnd:     timeline[len(timeline)-1].Time,
	}, true
}

// BuildSingle builds an event from one item. relMin is the relevance
// threshold for the current cascade level; regulator and exchange items
// bypass it.
func (b *Builder) BuildSingle(ctx context.Context, it model.RawItem, now int64, windowHours int, relMin float64) (model.Event, bool) {
	text := it.Text()
	rel := b.resolver.Relevance(text)
	if rel < relMin && !it.SourceGroup.Authoritative() {
		return model.Event{}, false
	}

	ids := b.resolver.Instruments(text)
	impact := b.metrics(ctx, ids, now, windowHours)
	feats := b.features(
		[]int64{it.PublishedAt}, []float64{it.CredibilityWeight}, []model.SourceGroup{it.SourceGroup},
		ids, rel, impact, now,
	)

	groupWeight := 0.5
	if it.SourceGroup.Authoritative() {
		groupWeight = 1.0
	}
	headline := it.Title
	if headline == "" {
		headline = defaultHeadline
	}

	return model.Event{
		DedupKey:      hashKey(it.URL),
		Headline:      truncateRunes(headline, maxHeadlineRunes),
		Hotness:       scoring.CombineLogistic(b.weights, feats),
		Validity:      scoring.Round3(0.6*math.Min(1, it.CredibilityWeight) + 0.4*groupWeight),
		WhyNow:        fmt.Sprintf("Single source %s.", it.SourceGroup),
		InstrumentIDs: ids,
		Sources:       []model.SourceRef{{URL: it.URL, SourceName: it.Source}},
		Timeline:      []model.TimelineEntry{{Time: it.PublishedAt, Source: it.Source, URL: it.URL, Title: it.Title}},
		Items:         []model.RawItem{it},
		Features:      feats,
		Impact:        impact,
		WindowStart:   it.PublishedAt,
		WindowEnd:     it.PublishedAt,
	}, true
}

// metrics looks up market impact for the first instrument.
func (b *Builder) metrics(ctx context.Context, ids []string, now int64, windowHours int) model.ImpactMetrics {
	if b.impact == nil || len(ids) == 0 {
		return model.ImpactMetrics{}
	}
	return b.impact.Metrics(ctx, ids[0], min(b.impactWindowHours, windowHours), now)
}

func (b *Builder) features(
	timestamps []int64,
	weights []float64,
	groups []model.SourceGroup,
	ids []string,
	rel float64,
	impact model.ImpactMetrics,
	now int64,
) model.FeatureVector {
	var absMove *float64
	if impact.PctMove != nil {
		v := math.Abs(*impact.PctMove)
		absMove = &v
	}
	return model.FeatureVector{
		Recency:       scoring.Recency(slices.Max(timestamps), now, b.halfLifeHours),
		Velocity:      scoring.Velocity(timestamps, now),
		Credibility:   scoring.Credibility(weights),
		Confirmations: scoring.Confirmations(groups),
		Breadth:       scoring.Breadth(ids),
		Relevance:     rel,
		PriceMove:     scoring.NormClip(absMove, priceMoveLo, priceMoveHi),
		VolumeRatio:   scoring.NormClip(impact.VolumeRatio, volumeRatioLo, volumeRatioHi),
		PriceAnomaly:  scoring.NormClip(impact.PriceAnomaly, priceAnomalyLo, priceAnomalyHi),
	}
}

func hasAuthoritative(groups map[model.SourceGroup]struct{}) bool {
	for g := range groups {
		if g.Authoritative() {
			return true
		}
	}
	return false
}

// pickHeadline returns the title of the most credible titled item, longer
// titles winning ties. The first such item wins a full tie.
func pickHeadline(items []model.RawItem) string {
	best := -1
	for i, it := range items {
		if it.Title == "" {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		cur := items[best]
		if it.CredibilityWeight > cur.CredibilityWeight ||
			(it.CredibilityWeight == cur.CredibilityWeight &&
				utf8.RuneCountInString(it.Title) > utf8.RuneCountInString(cur.Title)) {
			best = i
		}
	}
	if best < 0 {
		return defaultHeadline
	}
	return truncateRunes(items[best].Title, maxHeadlineRunes)
}

// buildTimeline lists items in ascending time, keeping input order for ties.
func buildTimeline(items []model.RawItem) []model.TimelineEntry {
	timeline := make([]model.TimelineEntry, len(items))
	for i, it := range items {
		timeline[i] = model.TimelineEntry{Time: it.PublishedAt, Source: it.Source, URL: it.URL, Title: it.Title}
	}
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Time < timeline[j].Time })
	return timeline
}

// buildSources keeps the first item per source name, up to five.
func buildSources(items []model.RawItem) []model.SourceRef {
	seen := make(map[string]struct{}, len(items))
	var out []model.SourceRef
	for _, it := range items {
		if _, ok := seen[it.Source]; ok {
			continue
		}
		seen[it.Source] = struct{}{}
		out = append(out, model.SourceRef{URL: it.URL, SourceName: it.Source})
		if len(out) >= maxSources {
			break
		}
	}
	return out
}

func joinGroups(groups map[model.SourceGroup]struct{}) string {
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, string(g))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// titlesKey hashes the sorted set of distinct titles.
func titlesKey(titles []string) string {
	uniq := slices.Clone(titles)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)
	return hashKey(strings.Join(uniq, "||"))
}

// hashKey returns the first 16 hex characters of the SHA-1 of s.
func hashKey(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

// headlineKey normalizes a headline for duplicate detection.
func headlineKey(h string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(h))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
