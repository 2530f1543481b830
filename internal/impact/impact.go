// Package impact derives price, volume and anomaly signals for an
// instrument from exchange candles. Missing data is a normal outcome and
// yields nil metrics, never an error.
package impact

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/model"
	"github.com/sells-group/radar-cli/internal/resilience"
	"github.com/sells-group/radar-cli/pkg/moex"
)

const (
	referenceDays       = 30
	minWindowPoints     = 2
	minReferencePoints  = 3
	minReferenceReturns = 10
	zeroStdDev          = 1e-6
)

// currencyAliases maps readable FX codes to ISS security ids.
var currencyAliases = map[string]string{
	"USDRUB_TOM": "USD000UTSTOM",
	"EURRUB_TOM": "EUR_RUB__TOM",
	"CNYRUB_TOM": "CNY000UTSTOM",
}

// Market locates an instrument on the exchange.
type Market struct {
	Engine string
	Market string
}

var (
	currencyMarket = Market{Engine: "currency", Market: "selt"}
	stockMarket    = Market{Engine: "stock", Market: "shares"}
)

// Classify returns the market and the exchange security id for an
// instrument identifier.
func Classify(id string) (Market, string) {
	s := strings.ToUpper(strings.TrimSpace(id))
	if secid, ok := currencyAliases[s]; ok {
		return currencyMarket, secid
	}
	if strings.HasSuffix(s, "TOM") || strings.Contains(s, "000") {
		return currencyMarket, s
	}
	return stockMarket, s
}

// CandleSource supplies hourly candles.
type CandleSource interface {
	Candles(ctx context.Context, engine, market, secid string, from time.Time) ([]moex.Candle, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBackoff overrides the retry policy for candle fetches.
func WithBackoff(b resilience.Backoff) Option {
	return func(a *Adapter) {
		a.backoff = b
	}
}

// WithBreaker guards candle fetches with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(a *Adapter) {
		a.breaker = b
	}
}

// Adapter turns candle data into ImpactMetrics.
type Adapter struct {
	src     CandleSource
	backoff resilience.Backoff
	breaker *resilience.Breaker
}

// NewAdapter creates an Adapter. A nil source disables enrichment.
func NewAdapter(src CandleSource, opts ...Option) *Adapter {
	b := resilience.DefaultBackoff()
	b.OnRetry = resilience.RetryLogger("moex", "candles")
	a := &Adapter{src: src, backoff: b}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Metrics computes impact for id over the windowHours before now (epoch
// seconds). Any fetch failure or short series yields empty metrics.
func (a *Adapter) Metrics(ctx context.Context, id string, windowHours int, now int64) model.ImpactMetrics {
	if a == nil || a.src == nil || strings.TrimSpace(id) == "" {
		return model.ImpactMetrics{}
	}
	mkt, secid := Classify(id)
	nowT := time.Unix(now, 0).UTC()
	windowFrom := nowT.Add(-time.Duration(windowHours) * time.Hour)
	refFrom := nowT.AddDate(0, 0, -referenceDays)

	log := zap.L().With(zap.String("instrument", id), zap.String("secid", secid))

	reference, err := a.fetch(ctx, mkt, secid, refFrom)
	if err != nil {
		log.Debug("impact: reference candles unavailable", zap.Error(err))
		return model.ImpactMetrics{}
	}
	window, err := a.fetch(ctx, mkt, secid, windowFrom)
	if err != nil {
		log.Debug("impact: window candles unavailable", zap.Error(err))
		return model.ImpactMetrics{}
	}

	m := Compute(window, reference)
	if m.Empty() {
		log.Debug("impact: not enough candles",
			zap.Int("window", len(window)),
			zap.Int("reference", len(reference)),
		)
	}
	return m
}

func (a *Adapter) fetch(ctx context.Context, mkt Market, secid string, from time.Time) ([]moex.Candle, error) {
	get := func(ctx context.Context) ([]moex.Candle, error) {
		return resilience.DoVal(ctx, a.backoff, func(ctx context.Context) ([]moex.Candle, error) {
			return a.src.Candles(ctx, mkt.Engine, mkt.Market, secid, from)
		})
	}
	if a.breaker == nil {
		return get(ctx)
	}
	return resilience.Call(ctx, a.breaker, get)
}

// Compute derives metrics from the short window and the 30-day reference
// series. It returns empty metrics when either series is too short or the
// window opens at a zero close.
func Compute(window, reference []moex.Candle) model.ImpactMetrics {
	if len(window) < minWindowPoints || len(reference) < minReferencePoints {
		return model.ImpactMetrics{}
	}

	first, last := window[0].Close, window[len(window)-1].Close
	if first == 0 {
		return model.ImpactMetrics{}
	}
	m := model.ImpactMetrics{PctMove: ptr((last - first) / first * 100)}

	var windowVol, refVol float64
	for _, c := range window {
		windowVol += c.Volume
	}
	for _, c := range reference {
		refVol += c.Volume
	}
	if refMean := refVol / float64(len(reference)); refMean != 0 {
		m.VolumeRatio = ptr(windowVol / refMean)
	}

	returns := make([]float64, 0, len(reference)-1)
	for i := 1; i < len(reference); i++ {
		prev := reference[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (reference[i].Close-prev)/prev*100)
	}
	if len(returns) >= minReferenceReturns {
		var lastRet float64
		if prev := window[len(window)-2].Close; prev != 0 {
			lastRet = (last - prev) / prev * 100
		}
		mu, sd := meanStdDev(returns)
		if sd == 0 {
			sd = zeroStdDev
		}
		m.PriceAnomaly = ptr(math.Abs(lastRet-mu) / sd)
	}

	return m
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mu := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mu) * (x - mu)
	}
	return mu, math.Sqrt(ss / float64(len(xs)))
}

func ptr(f float64) *float64 { return &f }
