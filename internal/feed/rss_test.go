package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>CBR</title>
  <link>https://www.cbr.ru</link>
  <description>Press releases</description>
  <item>
    <title>Банк России повысил ключевую ставку до 18% годовых</title>
    <link>https://www.cbr.ru/press/1</link>
    <description><![CDATA[<p>Совет директоров <b>принял решение</b></p><p>повысить ставку</p>]]></description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
  </item>
  <item>
    <title>Подписаться на рассылку пресс-релизов</title>
    <link>https://www.cbr.ru/subscribe</link>
  </item>
  <item>
    <title>Коротко</title>
    <link>https://www.cbr.ru/press/2</link>
  </item>
  <item>
    <title>Запись без ссылки, но с длинным заголовком</title>
  </item>
  <item>
    <title>Банк России опубликовал обзор финансовой стабильности</title>
    <link>https://www.cbr.ru/press/3</link>
    <description>Обзор за второй квартал</description>
  </item>
</channel>
</rss>`

func newTestRSSSource(t *testing.T, handler http.HandlerFunc, maxItems int) *RSSSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	src := NewRSSSource(config.SourceConfig{
		Name:   "CBR Press",
		URL:    srv.URL + "/rss",
		Group:  "REG",
		Lang:   "ru",
		Weight: 1.0,
	}, newTestHTTPClient(), maxItems)
	src.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return src
}

func TestRSSSource_Fetch(t *testing.T) {
	src := newTestRSSSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS)) //nolint:errcheck
	}, 0)

	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "CBR Press", first.Source)
	assert.Equal(t, "https://www.cbr.ru/press/1", first.URL)
	assert.Equal(t, "Банк России повысил ключевую ставку до 18% годовых", first.Title)
	assert.Equal(t, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC).Unix(), first.PublishedAt)
	assert.Equal(t, "Совет директоров принял решение повысить ставку", first.Summary)
	assert.Equal(t, "ru", first.Language)
	assert.Equal(t, model.GroupRegulator, first.SourceGroup)
	assert.InDelta(t, 1.0, first.CredibilityWeight, 1e-9)

	// Missing pubDate falls back to the fetch time.
	assert.Equal(t, int64(1_700_000_000), items[1].PublishedAt)
	assert.Equal(t, "Обзор за второй квартал", items[1].Summary)
}

func TestRSSSource_MaxItemsAppliesBeforeFiltering(t *testing.T) {
	src := newTestRSSSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testRSS)) //nolint:errcheck
	}, 2)

	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.cbr.ru/press/1", items[0].URL)
}

func TestRSSSource_ParseError(t *testing.T) {
	src := newTestRSSSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a feed")) //nolint:errcheck
	}, 0)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: parse CBR Press")
}

type stubSource struct {
	name  string
	items []model.RawItem
	err   error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Fetch(context.Context) ([]model.RawItem, error) {
	return s.items, s.err
}

func TestPoller_IsolatesFailures(t *testing.T) {
	t.Parallel()

	p := NewPoller([]Source{
		stubSource{name: "a", items: []model.RawItem{{URL: "https://a/1"}, {URL: "https://a/2"}}},
		stubSource{name: "broken", err: errors.New("timeout")},
		stubSource{name: "c", items: []model.RawItem{{URL: "https://c/1"}}},
	}, 2)

	items := p.Poll(context.Background())
	require.Len(t, items, 3)
	assert.Equal(t, "https://a/1", items[0].URL)
	assert.Equal(t, "https://a/2", items[1].URL)
	assert.Equal(t, "https://c/1", items[2].URL)
}

func TestPoller_NoSources(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewPoller(nil, 0).Poll(context.Background()))
}

func TestNewPollerFromConfig(t *testing.T) {
	t.Parallel()

	p := NewPollerFromConfig(config.FeedConfig{MaxConcurrent: 3, MaxItems: 10}, config.DefaultSources())
	require.Len(t, p.sources, len(config.DefaultSources()))
	assert.Equal(t, 3, p.maxConcurrent)
	assert.Equal(t, "CBR Press", p.sources[0].Name())
}
