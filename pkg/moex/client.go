// Package moex provides a client for the Moscow Exchange ISS market-data API.
package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/radar-cli/internal/resilience"
)

// Client defines the ISS operations used for impact enrichment.
type Client interface {
	// Candles returns hourly candles for secid starting at the date of from.
	Candles(ctx context.Context, engine, market, secid string, from time.Time) ([]Candle, error)
}

// Candle is one hourly bar.
type Candle struct {
	Begin  time.Time
	Close  float64
	Volume float64
}

// candlesResponse mirrors the ISS table layout: named columns plus rows of
// mixed-type cells.
type candlesResponse struct {
	Candles struct {
		Columns []string            `json:"columns"`
		Data    [][]json.RawMessage `json:"data"`
	} `json:"candles"`
}

// Option configures the ISS client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an ISS client. The default limit is 5 requests/second.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://iss.moex.com",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Candles(ctx context.Context, engine, market, secid string, from time.Time) ([]Candle, error) {
	reqURL := fmt.Sprintf("%s/iss/engines/%s/markets/%s/securities/%s/candles.json?from=%s&interval=60",
		c.baseURL,
		url.PathEscape(engine),
		url.PathEscape(market),
		url.PathEscape(secid),
		from.UTC().Format("2006-01-02"),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "moex: rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "moex: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "moex: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "moex: read response body"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("moex", resp.StatusCode, string(body))
	}

	var parsed candlesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "moex: unmarshal candles")
	}
	return parseCandles(parsed.Candles.Columns, parsed.Candles.Data)
}

// parseCandles maps rows onto Candle by column name. Rows with a null or
// non-numeric close are skipped; a missing volume reads as zero.
func parseCandles(columns []string, rows [][]json.RawMessage) ([]Candle, error) {
	idx := make(map[string]int, len(columns))
	for i, name := range columns {
		idx[name] = i
	}
	closeCol, ok := idx["close"]
	if !ok {
		return nil, eris.New("moex: candles missing close column")
	}
	volCol, hasVol := idx["volume"]
	beginCol, hasBegin := idx["begin"]

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		cl, ok := cellFloat(row, closeCol)
		if !ok {
			continue
		}
		var c Candle
		c.Close = cl
		if hasVol {
			c.Volume, _ = cellFloat(row, volCol)
		}
		if hasBegin && beginCol < len(row) {
			var s string
			if json.Unmarshal(row[beginCol], &s) == nil {
				c.Begin, _ = time.Parse(time.DateTime, s)
			}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func cellFloat(row []json.RawMessage, col int) (float64, bool) {
	if col >= len(row) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(row[col], &n); err != nil {
		var s string
		if json.Unmarshal(row[col], &s) != nil {
			return 0, false
		}
		n = json.Number(s)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
