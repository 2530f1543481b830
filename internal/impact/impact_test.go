package impact

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/radar-cli/internal/resilience"
	"github.com/sells-group/radar-cli/pkg/moex"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Candles(ctx context.Context, engine, market, secid string, from time.Time) ([]moex.Candle, error) {
	args := m.Called(ctx, engine, market, secid, from)
	candles, _ := args.Get(0).([]moex.Candle)
	return candles, args.Error(1)
}

func closes(vals ...float64) []moex.Candle {
	out := make([]moex.Candle, len(vals))
	for i, v := range vals {
		out[i] = moex.Candle{Close: v, Volume: 100}
	}
	return out
}

func noWait() Option {
	return WithBackoff(resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond, Factor: 1})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		id     string
		market Market
		secid  string
	}{
		{"USDRUB_TOM", currencyMarket, "USD000UTSTOM"},
		{"eurrub_tom", currencyMarket, "EUR_RUB__TOM"},
		{"CNYRUB_TOM", currencyMarket, "CNY000UTSTOM"},
		{"GLDRUB_TOM", currencyMarket, "GLDRUB_TOM"},
		{"USD000000TOD", currencyMarket, "USD000000TOD"},
		{"SBER", stockMarket, "SBER"},
		{" gazp ", stockMarket, "GAZP"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			mkt, secid := Classify(tt.id)
			assert.Equal(t, tt.market, mkt)
			assert.Equal(t, tt.secid, secid)
		})
	}
}

func TestCompute_TooShort(t *testing.T) {
	assert.True(t, Compute(closes(100), closes(1, 2, 3)).Empty())
	assert.True(t, Compute(closes(100, 101), closes(1, 2)).Empty())
}

func TestCompute_PctMoveAndVolume(t *testing.T) {
	window := []moex.Candle{{Close: 100, Volume: 300}, {Close: 103, Volume: 300}}
	reference := []moex.Candle{{Close: 100, Volume: 100}, {Close: 101, Volume: 200}, {Close: 102, Volume: 300}}

	m := Compute(window, reference)
	require.NotNil(t, m.PctMove)
	require.NotNil(t, m.VolumeRatio)
	assert.InDelta(t, 3.0, *m.PctMove, 1e-9)
	assert.InDelta(t, 3.0, *m.VolumeRatio, 1e-9)
	assert.Nil(t, m.PriceAnomaly, "fewer than 10 reference returns")
}

func TestCompute_ZeroFirstCloseIsEmpty(t *testing.T) {
	window := []moex.Candle{{Close: 0, Volume: 50}, {Close: 10, Volume: 50}}
	reference := make([]moex.Candle, 0, 20)
	for i := 0; i < 20; i++ {
		reference = append(reference, moex.Candle{Close: 100 + float64(i%2), Volume: 10})
	}

	m := Compute(window, reference)
	assert.True(t, m.Empty(), "volume and anomaly are dropped with the move")
}

func TestCompute_ZeroReferenceVolume(t *testing.T) {
	window := []moex.Candle{{Close: 10, Volume: 5}, {Close: 11, Volume: 5}}
	reference := []moex.Candle{{Close: 1}, {Close: 1}, {Close: 1}}

	m := Compute(window, reference)
	require.NotNil(t, m.PctMove)
	assert.InDelta(t, 10.0, *m.PctMove, 1e-9)
	assert.Nil(t, m.VolumeRatio)
}

func TestCompute_Anomaly(t *testing.T) {
	// alternating +1%/-1% style series: returns have mean ~0
	ref := []float64{100}
	for i := 0; i < 12; i++ {
		if i%2 == 0 {
			ref = append(ref, ref[len(ref)-1]*1.01)
		} else {
			ref = append(ref, ref[len(ref)-1]/1.01)
		}
	}
	window := closes(100, 100, 105)

	m := Compute(window, closes(ref...))
	require.NotNil(t, m.PriceAnomaly)

	var rets []float64
	for i := 1; i < len(ref); i++ {
		rets = append(rets, (ref[i]-ref[i-1])/ref[i-1]*100)
	}
	mu, sd := meanStdDev(rets)
	assert.InDelta(t, math.Abs(5-mu)/sd, *m.PriceAnomaly, 1e-9)
}

func TestCompute_FlatReferenceUsesEpsilon(t *testing.T) {
	ref := make([]float64, 12)
	for i := range ref {
		ref[i] = 50
	}
	m := Compute(closes(10, 11), closes(ref...))
	require.NotNil(t, m.PriceAnomaly)
	assert.InDelta(t, 10/zeroStdDev, *m.PriceAnomaly, 1e-3)
}

func TestMeanStdDev(t *testing.T) {
	mu, sd := meanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mu, 1e-12)
	assert.InDelta(t, 2.0, sd, 1e-12)
}

func TestMetrics_Success(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &mockSource{}
	src.On("Candles", mock.Anything, "stock", "shares", "SBER", now.AddDate(0, 0, -30)).
		Return(closes(100, 101, 102, 103), nil).Once()
	src.On("Candles", mock.Anything, "stock", "shares", "SBER", now.Add(-6*time.Hour)).
		Return(closes(100, 110), nil).Once()

	a := NewAdapter(src, noWait())
	m := a.Metrics(context.Background(), "SBER", 6, now.Unix())

	require.NotNil(t, m.PctMove)
	assert.InDelta(t, 10.0, *m.PctMove, 1e-9)
	require.NotNil(t, m.VolumeRatio)
	assert.InDelta(t, 2.0, *m.VolumeRatio, 1e-9)
	src.AssertExpectations(t)
}

func TestMetrics_CurrencyAlias(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &mockSource{}
	src.On("Candles", mock.Anything, "currency", "selt", "USD000UTSTOM", mock.Anything).
		Return([]moex.Candle(nil), nil)

	a := NewAdapter(src, noWait())
	m := a.Metrics(context.Background(), "USDRUB_TOM", 6, now.Unix())

	assert.True(t, m.Empty())
	src.AssertNumberOfCalls(t, "Candles", 2)
}

func TestMetrics_RetriesTransientThenSucceeds(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &mockSource{}
	busy := resilience.NewTransientError(errors.New("busy"), 503)
	src.On("Candles", mock.Anything, "stock", "shares", "GAZP", now.AddDate(0, 0, -30)).
		Return(nil, busy).Once()
	src.On("Candles", mock.Anything, "stock", "shares", "GAZP", now.AddDate(0, 0, -30)).
		Return(closes(1, 2, 3), nil).Once()
	src.On("Candles", mock.Anything, "stock", "shares", "GAZP", now.Add(-6*time.Hour)).
		Return(closes(2, 3), nil).Once()

	a := NewAdapter(src, noWait())
	m := a.Metrics(context.Background(), "GAZP", 6, now.Unix())

	assert.NotNil(t, m.PctMove)
	src.AssertExpectations(t)
}

func TestMetrics_ExhaustedRetriesYieldEmpty(t *testing.T) {
	src := &mockSource{}
	src.On("Candles", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("down"), 502))

	a := NewAdapter(src, noWait())
	m := a.Metrics(context.Background(), "LKOH", 6, time.Now().Unix())

	assert.True(t, m.Empty())
	src.AssertNumberOfCalls(t, "Candles", 3)
}

func TestMetrics_PermanentErrorNotRetried(t *testing.T) {
	src := &mockSource{}
	src.On("Candles", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("bad secid"))

	a := NewAdapter(src, noWait())
	m := a.Metrics(context.Background(), "LKOH", 6, time.Now().Unix())

	assert.True(t, m.Empty())
	src.AssertNumberOfCalls(t, "Candles", 1)
}

func TestMetrics_OpenBreakerSkipsFetch(t *testing.T) {
	src := &mockSource{}
	src.On("Candles", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	a := NewAdapter(src, noWait(), WithBreaker(resilience.NewBreaker("moex", 1, time.Hour)))
	assert.True(t, a.Metrics(context.Background(), "SBER", 6, time.Now().Unix()).Empty())
	assert.True(t, a.Metrics(context.Background(), "GAZP", 6, time.Now().Unix()).Empty())

	src.AssertNumberOfCalls(t, "Candles", 1)
}

func TestMetrics_Disabled(t *testing.T) {
	var a *Adapter
	assert.True(t, a.Metrics(context.Background(), "SBER", 6, 0).Empty())
	assert.True(t, NewAdapter(nil).Metrics(context.Background(), "SBER", 6, 0).Empty())

	src := &mockSource{}
	assert.True(t, NewAdapter(src).Metrics(context.Background(), "", 6, 0).Empty())
	src.AssertNotCalled(t, "Candles", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
