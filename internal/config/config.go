package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Hotness  HotnessConfig  `yaml:"hotness" mapstructure:"hotness"`
	Cluster  ClusterConfig  `yaml:"cluster" mapstructure:"cluster"`
	Jina     JinaConfig     `yaml:"jina" mapstructure:"jina"`
	MOEX     MOEXConfig     `yaml:"moex" mapstructure:"moex"`
	Feed     FeedConfig     `yaml:"feed" mapstructure:"feed"`
	Sources  []SourceConfig `yaml:"sources" mapstructure:"sources"`
}

// StoreConfig configures the item store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// PipelineConfig configures event building, the fallback cascade and selection.
type PipelineConfig struct {
	WindowHours        int     `yaml:"window_hours" mapstructure:"window_hours"`
	TopK               int     `yaml:"top_k" mapstructure:"top_k"`
	MinReturn          int     `yaml:"min_return" mapstructure:"min_return"`
	OvershootThreshold float64 `yaml:"overshoot_threshold" mapstructure:"overshoot_threshold"`
	OvershootLookahead int     `yaml:"overshoot_lookahead" mapstructure:"overshoot_lookahead"`
	RelMin             float64 `yaml:"rel_min" mapstructure:"rel_min"`
	RelSoft            float64 `yaml:"rel_soft" mapstructure:"rel_soft"`
	FallbackLimit      int     `yaml:"fallback_limit" mapstructure:"fallback_limit"`
	ImpactWindowHours  int     `yaml:"impact_window_hours" mapstructure:"impact_window_hours"`
	HalfLifeHours      float64 `yaml:"half_life_hours" mapstructure:"half_life_hours"`
	Ingest             bool    `yaml:"ingest" mapstructure:"ingest"`
}

// HotnessConfig holds the linear weights of the hotness model.
type HotnessConfig struct {
	Recency       float64 `yaml:"recency" mapstructure:"recency"`
	Velocity      float64 `yaml:"velocity" mapstructure:"velocity"`
	Credibility   float64 `yaml:"credibility" mapstructure:"credibility"`
	Confirmations float64 `yaml:"confirmations" mapstructure:"confirmations"`
	Breadth       float64 `yaml:"breadth" mapstructure:"breadth"`
	Relevance     float64 `yaml:"relevance" mapstructure:"relevance"`
	PriceMove     float64 `yaml:"price_move" mapstructure:"price_move"`
	VolumeRatio   float64 `yaml:"volume_ratio" mapstructure:"volume_ratio"`
	PriceAnomaly  float64 `yaml:"price_anomaly" mapstructure:"price_anomaly"`
}

// ClusterConfig configures density clustering over embeddings.
type ClusterConfig struct {
	Eps          float64 `yaml:"eps" mapstructure:"eps"`
	MinSamples   int     `yaml:"min_samples" mapstructure:"min_samples"`
	MaxTextRunes int     `yaml:"max_text_runes" mapstructure:"max_text_runes"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// MOEXConfig holds Moscow Exchange ISS settings.
type MOEXConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FeedConfig configures RSS polling.
type FeedConfig struct {
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxItems      int    `yaml:"max_items" mapstructure:"max_items"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
}

// Source kinds.
const (
	SourceKindRSS  = "rss"
	SourceKindHTML = "html"
)

// SourceConfig describes one news feed. Kind is "rss" (the default) or
// "html" for a plain page of headline links.
type SourceConfig struct {
	Name   string  `yaml:"name" mapstructure:"name"`
	Kind   string  `yaml:"kind" mapstructure:"kind"`
	URL    string  `yaml:"url" mapstructure:"url"`
	Group  string  `yaml:"group" mapstructure:"group"`
	Lang   string  `yaml:"lang" mapstructure:"lang"`
	Weight float64 `yaml:"weight" mapstructure:"weight"`
}

// DefaultSources returns the regulator, exchange and tier-1 feeds for the
// Russian market.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "CBR Press", Kind: SourceKindRSS, URL: "https://www.cbr.ru/rss/RssPress", Group: "REG", Lang: "ru", Weight: 1.00},
		{Name: "CBR Events", Kind: SourceKindRSS, URL: "https://www.cbr.ru/rss/eventrss", Group: "REG", Lang: "ru", Weight: 1.00},
		{Name: "MOEX News", Kind: SourceKindRSS, URL: "https://www.moex.com/export/news.aspx?cat=100", Group: "EXCH", Lang: "ru", Weight: 0.90},
		{Name: "Interfax", Kind: SourceKindRSS, URL: "https://www.interfax.ru/rss.asp", Group: "TIER1", Lang: "ru", Weight: 0.85},
		{Name: "RBC Finance", Kind: SourceKindRSS, URL: "https://rssexport.rbc.ru/rbcnews/finance/20/full.rss", Group: "TIER1", Lang: "ru", Weight: 0.82},
		{Name: "RBC Companies", Kind: SourceKindRSS, URL: "https://rssexport.rbc.ru/rbcnews/companies/20/full.rss", Group: "TIER1", Lang: "ru", Weight: 0.82},
		{Name: "Kommersant Finance", Kind: SourceKindRSS, URL: "https://www.kommersant.ru/RSS/section-finance.xml", Group: "TIER1", Lang: "ru", Weight: 0.82},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/radar.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.window_hours", 24)
	v.SetDefault("pipeline.top_k", 7)
	v.SetDefault("pipeline.min_return", 5)
	v.SetDefault("pipeline.overshoot_threshold", 0.62)
	v.SetDefault("pipeline.overshoot_lookahead", 10)
	v.SetDefault("pipeline.rel_min", 0.35)
	v.SetDefault("pipeline.rel_soft", 0.25)
	v.SetDefault("pipeline.fallback_limit", 400)
	v.SetDefault("pipeline.impact_window_hours", 6)
	v.SetDefault("pipeline.half_life_hours", 6.0)
	v.SetDefault("pipeline.ingest", true)
	v.SetDefault("hotness.recency", 0.80)
	v.SetDefault("hotness.velocity", 0.75)
	v.SetDefault("hotness.credibility", 0.70)
	v.SetDefault("hotness.confirmations", 0.60)
	v.SetDefault("hotness.breadth", 0.35)
	v.SetDefault("hotness.relevance", 0.40)
	v.SetDefault("hotness.price_move", 0.55)
	v.SetDefault("hotness.volume_ratio", 0.45)
	v.SetDefault("hotness.price_anomaly", 0.50)
	v.SetDefault("cluster.eps", 0.25)
	v.SetDefault("cluster.min_samples", 2)
	v.SetDefault("cluster.max_text_runes", 512)
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("moex.base_url", "https://iss.moex.com")
	v.SetDefault("moex.requests_per_second", 5.0)
	v.SetDefault("moex.timeout_secs", 15)
	v.SetDefault("feed.timeout_secs", 20)
	v.SetDefault("feed.max_items", 100)
	v.SetDefault("feed.max_concurrent", 4)
	v.SetDefault("feed.user_agent", "radar-cli/1.0")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Kind == "" {
			cfg.Sources[i].Kind = SourceKindRSS
		}
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is the command name:
// "events", "ingest", "serve" or "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres (got %q)", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "events" || mode == "serve" {
		p := c.Pipeline
		if p.WindowHours <= 0 {
			errs = append(errs, "pipeline.window_hours must be > 0")
		}
		if p.TopK < 0 {
			errs = append(errs, "pipeline.top_k must be >= 0")
		}
		if p.MinReturn < 0 {
			errs = append(errs, "pipeline.min_return must be >= 0")
		}
		if p.RelMin < 0 || p.RelMin > 1 {
			errs = append(errs, "pipeline.rel_min must be between 0 and 1")
		}
		if p.RelSoft < 0 || p.RelSoft > p.RelMin {
			errs = append(errs, "pipeline.rel_soft must be between 0 and rel_min")
		}
		if p.OvershootLookahead < 0 {
			errs = append(errs, "pipeline.overshoot_lookahead must be >= 0")
		}
		if c.Cluster.Eps <= 0 || c.Cluster.Eps > 2 {
			errs = append(errs, "cluster.eps must be in (0, 2]")
		}
		if c.Cluster.MinSamples < 1 {
			errs = append(errs, "cluster.min_samples must be >= 1")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if mode == "ingest" || (mode != "migrate" && c.Pipeline.Ingest) {
		for i, s := range c.Sources {
			if s.Name == "" || s.URL == "" {
				errs = append(errs, fmt.Sprintf("sources[%d]: name and url are required", i))
			}
			if s.Kind != "" && s.Kind != SourceKindRSS && s.Kind != SourceKindHTML {
				errs = append(errs, fmt.Sprintf("sources[%d]: kind must be rss or html (got %q)", i, s.Kind))
			}
			if s.Weight < 0 || s.Weight > 1 {
				errs = append(errs, fmt.Sprintf("sources[%d]: weight must be between 0 and 1", i))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
