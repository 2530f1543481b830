package feed

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/model"
)

// Poller fetches a fixed set of sources concurrently.
type Poller struct {
	sources       []Source
	maxConcurrent int
}

// NewPoller creates a Poller. maxConcurrent <= 0 means 4.
func NewPoller(sources []Source, maxConcurrent int) *Poller {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Poller{sources: sources, maxConcurrent: maxConcurrent}
}

// NewPollerFromConfig builds a source for every configured feed, RSS unless
// the feed's kind is "html".
func NewPollerFromConfig(cfg config.FeedConfig, sources []config.SourceConfig) *Poller {
	hc := NewHTTPClient(HTTPOptions{
		UserAgent: cfg.UserAgent,
		Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
	})
	srcs := make([]Source, 0, len(sources))
	for _, sc := range sources {
		srcs = append(srcs, newSource(sc, hc, cfg.MaxItems))
	}
	return NewPoller(srcs, cfg.MaxConcurrent)
}

func newSource(sc config.SourceConfig, hc *HTTPClient, maxItems int) Source {
	if sc.Kind == config.SourceKindHTML {
		return NewHTMLSource(sc, hc, maxItems)
	}
	return NewRSSSource(sc, hc, maxItems)
}

// Poll fetches every source and returns the items in source order. A failing
// source is logged and contributes nothing.
func (p *Poller) Poll(ctx context.Context) []model.RawItem {
	results := make([][]model.RawItem, len(p.sources))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrent)
	for i, src := range p.sources {
		g.Go(func() error {
			start := time.Now()
			items, err := src.Fetch(ctx)
			if err != nil {
				zap.L().Warn("feed: source failed",
					zap.String("source", src.Name()),
					zap.Error(err),
				)
				return nil
			}
			zap.L().Debug("feed: source fetched",
				zap.String("source", src.Name()),
				zap.Int("items", len(items)),
				zap.Duration("elapsed", time.Since(start)),
			)
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var out []model.RawItem
	for _, items := range results {
		out = append(out, items...)
	}
	zap.L().Info("feed: poll complete",
		zap.Int("sources", len(p.sources)),
		zap.Int("items", len(out)),
	)
	return out
}
