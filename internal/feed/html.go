package feed

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// HTMLSource scrapes headline links from a plain news page that has no feed.
// Pages carry no dates, so every item is stamped with the fetch time.
type HTMLSource struct {
	cfg      config.SourceConfig
	http     *HTTPClient
	maxItems int
	now      func() time.Time
}

// NewHTMLSource creates an HTMLSource. Up to 2*maxItems anchors are
// inspected; maxItems <= 0 means 100.
func NewHTMLSource(cfg config.SourceConfig, hc *HTTPClient, maxItems int) *HTMLSource {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &HTMLSource{cfg: cfg, http: hc, maxItems: maxItems, now: time.Now}
}

func (s *HTMLSource) Name() string {
	return s.cfg.Name
}

// Fetch keeps absolute http(s) links whose anchor text reads like a
// headline. Repeated links on the page are kept once.
func (s *HTMLSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	body, err := s.http.Get(ctx, s.cfg.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: fetch %s", s.cfg.Name)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", s.cfg.Name)
	}

	anchors := doc.Find("a[href]")
	if n := 2 * s.maxItems; anchors.Length() > n {
		anchors = anchors.Slice(0, n)
	}

	fetchedAt := s.now().Unix()
	seen := make(map[string]bool)
	var items []model.RawItem
	anchors.Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		title := strings.Join(strings.Fields(a.Text()), " ")
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return
		}
		if seen[href] || !GoodTitle(title) {
			return
		}
		seen[href] = true
		items = append(items, model.RawItem{
			Source:            s.cfg.Name,
			URL:               href,
			Title:             truncateRunes(title, MaxTitleRunes),
			PublishedAt:       fetchedAt,
			Language:          s.cfg.Lang,
			CredibilityWeight: s.cfg.Weight,
			SourceGroup:       model.ParseSourceGroup(s.cfg.Group),
		})
	})
	return items, nil
}
