package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/cluster"
	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/feed"
	"github.com/sells-group/radar-cli/internal/impact"
	"github.com/sells-group/radar-cli/internal/pipeline"
	"github.com/sells-group/radar-cli/internal/resilience"
	"github.com/sells-group/radar-cli/internal/resolve"
	"github.com/sells-group/radar-cli/internal/scoring"
	"github.com/sells-group/radar-cli/internal/store"
	"github.com/sells-group/radar-cli/pkg/jina"
	"github.com/sells-group/radar-cli/pkg/moex"
)

// radarEnv holds the store and the pipeline built on top of it.
type radarEnv struct {
	Store    store.ItemStore
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *radarEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store and makes sure the schema exists.
func initStore(ctx context.Context) (store.ItemStore, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initRadar validates the config for mode and wires the store, feeds,
// embeddings, resolver, MOEX impact adapter and pipeline. Callers should
// defer env.Close().
func initRadar(ctx context.Context, mode string) (*radarEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if err := scoring.ValidateWeights(cfg.Hotness); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(cfg.Pipeline, st,
		cluster.New(newEmbedder(cfg.Jina), cfg.Cluster),
		pipeline.NewBuilder(resolve.New(nil), newImpact(cfg.MOEX), cfg.Pipeline, cfg.Hotness),
		pipeline.WithIngester(feed.NewPollerFromConfig(cfg.Feed, cfg.Sources)),
	)

	return &radarEnv{Store: st, Pipeline: p}, nil
}

// newEmbedder defers building the Jina client until the first clustering
// run. Without a key clustering degrades to singletons.
func newEmbedder(jc config.JinaConfig) *cluster.Service {
	return cluster.NewService(func() (cluster.Embedder, error) {
		if jc.Key == "" {
			return nil, eris.New("jina: RADAR_JINA_KEY not set")
		}
		var opts []jina.Option
		if jc.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(jc.BaseURL))
		}
		if jc.Model != "" {
			opts = append(opts, jina.WithModel(jc.Model))
		}
		return jina.NewClient(jc.Key, opts...), nil
	})
}

func newImpact(mc config.MOEXConfig) *impact.Adapter {
	timeout := 15 * time.Second
	if mc.TimeoutSecs > 0 {
		timeout = time.Duration(mc.TimeoutSecs) * time.Second
	}
	opts := []moex.Option{
		moex.WithHTTPClient(&http.Client{Timeout: timeout}),
		moex.WithRateLimit(mc.RequestsPerSecond),
	}
	if mc.BaseURL != "" {
		opts = append(opts, moex.WithBaseURL(mc.BaseURL))
	}
	zap.L().Debug("moex client configured",
		zap.String("base_url", mc.BaseURL),
		zap.Float64("rps", mc.RequestsPerSecond),
	)
	return impact.NewAdapter(moex.NewClient(opts...),
		impact.WithBreaker(resilience.NewBreaker("moex", 5, 30*time.Second)),
	)
}
