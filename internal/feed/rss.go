// Package feed polls news sources and converts their entries to raw items.
package feed

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// Source produces raw items from one publisher.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.RawItem, error)
}

// RSSSource reads an RSS or Atom feed.
type RSSSource struct {
	cfg      config.SourceConfig
	http     *HTTPClient
	maxItems int
	now      func() time.Time
}

// NewRSSSource creates an RSSSource. Only the first maxItems entries of the
// feed are considered; maxItems <= 0 means 100.
func NewRSSSource(cfg config.SourceConfig, hc *HTTPClient, maxItems int) *RSSSource {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &RSSSource{cfg: cfg, http: hc, maxItems: maxItems, now: time.Now}
}

func (s *RSSSource) Name() string {
	return s.cfg.Name
}

// Fetch downloads and parses the feed. Entries without a link or with a
// boilerplate title are dropped.
func (s *RSSSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	body, err := s.http.Get(ctx, s.cfg.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: fetch %s", s.cfg.Name)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", s.cfg.Name)
	}

	entries := parsed.Items
	if len(entries) > s.maxItems {
		entries = entries[:s.maxItems]
	}

	fetchedAt := s.now()
	items := make([]model.RawItem, 0, len(entries))
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		link := strings.TrimSpace(e.Link)
		if link == "" || !GoodTitle(title) {
			continue
		}
		items = append(items, model.RawItem{
			Source:            s.cfg.Name,
			URL:               link,
			Title:             truncateRunes(title, MaxTitleRunes),
			PublishedAt:       publishedAt(e, fetchedAt),
			Language:          s.cfg.Lang,
			Summary:           CleanHTML(e.Description),
			CredibilityWeight: s.cfg.Weight,
			SourceGroup:       model.ParseSourceGroup(s.cfg.Group),
		})
	}
	return items, nil
}

// publishedAt prefers the published date, then the updated date, then the
// fetch time.
func publishedAt(e *gofeed.Item, fallback time.Time) int64 {
	switch {
	case e.PublishedParsed != nil:
		return e.PublishedParsed.Unix()
	case e.UpdatedParsed != nil:
		return e.UpdatedParsed.Unix()
	default:
		return fallback.Unix()
	}
}
