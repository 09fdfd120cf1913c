// Package markets ingests daily commodity spot prices from the EIA open data
// API, keeps a bounded window of closes per series and serves the markets
// dashboard.
package markets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/metrics"
	"github.com/canalenergetico/canal-web/internal/policy/ratelimit"
)

// ErrNoData is returned when the API yields no usable rows, after the fallback request.
var ErrNoData = errors.New("markets: no data")

const (
	defaultBaseURL   = "https://api.eia.gov/v2/petroleum/pri/spt/data/"
	defaultChunkSize = 10
	maxResponseBytes = 4 << 20

	modeXParams = "xparams"
	modeQuery   = "query"
)

// Point is one daily close.
type Point struct {
	Date  string  `json:"datetime"`
	Close float64 `json:"close"`
}

// Waiter throttles outbound requests per key.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Client reads spot price series from the EIA v2 API.
type Client struct {
	baseURL   string
	apiKey    string
	chunkSize int
	retry     RetryPolicy
	http      *http.Client
	limiter   Waiter
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from configuration. A nil httpClient gets a
// traced transport with the configured connect and response timeouts.
func NewClient(cfg config.MarketsConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = newHTTPClient(cfg)
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Client{
		baseURL:   base,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		chunkSize: chunk,
		retry: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Initial:    time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
			Max:        time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
		},
		http:    httpClient,
		limiter: ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RequestsPerSecond, DefaultBurst: 1}),
		logger:  logging.OrNop(logger).Named("eia"),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func newHTTPClient(cfg config.MarketsConfig) *http.Client {
	connect := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if connect <= 0 {
		connect = 5 * time.Second
	}
	read := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	if read <= 0 {
		read = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   connect + read,
	}
}

type xParams struct {
	Frequency string              `json:"frequency"`
	Data      []string            `json:"data"`
	Facets    map[string][]string `json:"facets"`
	Sort      []sortSpec          `json:"sort"`
	Offset    int                 `json:"offset"`
	Length    int                 `json:"length"`
}

type sortSpec struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

type apiResponse struct {
	Response struct {
		Data []apiRow `json:"data"`
	} `json:"response"`
}

type apiRow struct {
	Period string          `json:"period"`
	Value  json.RawMessage `json:"value"`
}

// close parses the row value, which the API sends as a number or a string.
func (r apiRow) close() (float64, bool) {
	raw := strings.TrimSpace(string(r.Value))
	if raw == "" || raw == "null" {
		return 0, false
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Latest returns the most recent close of series.
func (c *Client) Latest(ctx context.Context, series string) (float64, error) {
	rows, err := c.page(ctx, series, 1, 0)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		c.logger.Warn("EIA empty latest after fallback", zap.String("series", series))
		return 0, ErrNoData
	}
	v, ok := rows[0].close()
	if !ok {
		return 0, ErrNoData
	}
	return v, nil
}

// LastN downloads up to n recent closes of series, newest first, paging in
// chunks. Rows without a period or a numeric value are skipped.
func (c *Client) LastN(ctx context.Context, series string, n int) ([]Point, error) {
	if n < 1 {
		n = 1
	}
	out := make([]Point, 0, n)
	offset := 0
	for len(out) < n {
		take := min(c.chunkSize, n-len(out))
		rows, err := c.page(ctx, series, take, offset)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			c.logger.Warn("EIA empty chunk",
				zap.String("series", series),
				zap.Int("length", take),
				zap.Int("offset", offset),
			)
			break
		}
		for _, r := range rows {
			date := r.Period
			if len(date) > 10 {
				date = date[:10]
			}
			v, ok := r.close()
			if date == "" || !ok {
				continue
			}
			out = append(out, Point{Date: date, Close: v})
		}
		if len(rows) < take {
			break
		}
		offset += len(rows)
	}
	if len(out) > n {
		out = out[:n]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// page fetches one window with the X-Params header, falling back to the
// querystring form when that fails or comes back empty. Request failures are
// logged and read as empty; only cancellation is returned.
func (c *Client) page(ctx context.Context, series string, length, offset int) ([]apiRow, error) {
	if c.apiKey == "" || series == "" {
		return nil, nil
	}
	rows, err := c.fetch(ctx, modeXParams, series, length, offset)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("EIA X-Params request failed",
			zap.String("series", series), zap.Int("length", length), zap.Int("offset", offset), zap.Error(err))
	}
	if len(rows) > 0 {
		return rows, nil
	}
	rows, err = c.fetch(ctx, modeQuery, series, length, offset)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("EIA querystring request failed",
			zap.String("series", series), zap.Int("length", length), zap.Int("offset", offset), zap.Error(err))
		return nil, nil
	}
	return rows, nil
}

func (c *Client) fetch(ctx context.Context, mode, series string, length, offset int) ([]apiRow, error) {
	length = max(1, length)
	offset = max(0, offset)
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	header := http.Header{}
	var rawQuery string
	switch mode {
	case modeXParams:
		params, err := json.Marshal(xParams{
			Frequency: "daily",
			Data:      []string{"value"},
			Facets:    map[string][]string{"series": {series}},
			Sort:      []sortSpec{{Column: "period", Direction: "desc"}},
			Offset:    offset,
			Length:    length,
		})
		if err != nil {
			return nil, fmt.Errorf("encode x-params: %w", err)
		}
		header.Set("X-Params", string(params))
		rawQuery = url.Values{"api_key": {c.apiKey}}.Encode()
	default:
		rawQuery = url.Values{
			"api_key":            {c.apiKey},
			"frequency":          {"daily"},
			"data":               {"value"},
			"length":             {strconv.Itoa(length)},
			"offset":             {strconv.Itoa(offset)},
			"sort[0][column]":    {"period"},
			"sort[0][direction]": {"desc"},
			"facets[series][]":   {series},
		}.Encode()
	}
	u.RawQuery = rawQuery

	body, err := c.get(ctx, u.String(), header)
	if err != nil {
		metrics.ObserveEIARequest(mode, "error")
		return nil, err
	}
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.ObserveEIARequest(mode, "error")
		return nil, fmt.Errorf("decode eia response: %w", err)
	}
	if len(resp.Response.Data) == 0 {
		metrics.ObserveEIARequest(mode, "empty")
	} else {
		metrics.ObserveEIARequest(mode, "ok")
	}
	return resp.Response.Data, nil
}

// get performs a GET with throttling and retries.
func (c *Client) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	host := ratelimit.HostKey(rawURL)
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx, host); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build eia request: %w", err)
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")

		var wait time.Duration
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt >= c.retry.MaxRetries || !retryableErr(ctx, err) {
				return nil, fmt.Errorf("eia request: %w", err)
			}
			metrics.ObserveEIARetry("transport")
			wait = c.retry.Backoff(attempt + 1)
		} else {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if readErr != nil {
					return nil, fmt.Errorf("read eia response: %w", readErr)
				}
				return body, nil
			}
			if !retryableStatus(resp.StatusCode) || attempt >= c.retry.MaxRetries {
				return nil, &StatusError{Code: resp.StatusCode}
			}
			metrics.ObserveEIARetry("status_" + strconv.Itoa(resp.StatusCode))
			wait = c.retry.Backoff(attempt + 1)
			if honoursRetryAfter(resp.StatusCode) {
				if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
					wait = d
					if c.retry.Max > 0 && wait > c.retry.Max {
						wait = c.retry.Max
					}
				}
			}
		}
		c.logger.Debug("Retrying EIA request", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// Price is the dashboard entry of one symbol; a nil Price encodes as null.
type Price struct {
	Price *string `json:"price"`
}

// Series is the dashboard time series of one symbol, newest first.
type Series struct {
	Values []Point `json:"values"`
}

// PriceBatch fetches the latest close of each comma separated symbol live,
// keyed by the caller's raw spelling.
func (c *Client) PriceBatch(ctx context.Context, csv string) map[string]Price {
	out := make(map[string]Price)
	for _, raw := range SplitSymbols(csv) {
		id := NormalizeSeriesID(raw)
		if id == "" {
			out[raw] = Price{}
			continue
		}
		v, err := c.Latest(ctx, id)
		if err != nil {
			c.logger.Warn("No latest value", zap.String("input", raw), zap.String("series", id), zap.Error(err))
			out[raw] = Price{}
			continue
		}
		out[raw] = Price{Price: FormatPrice(v)}
	}
	return out
}

// TimeSeries fetches the last n closes of sym live.
func (c *Client) TimeSeries(ctx context.Context, sym string, n int) Series {
	id := NormalizeSeriesID(sym)
	if id == "" {
		return Series{Values: []Point{}}
	}
	points, err := c.LastN(ctx, id, n)
	if err != nil {
		c.logger.Warn("Empty timeseries", zap.String("input", sym), zap.String("series", id), zap.Error(err))
		return Series{Values: []Point{}}
	}
	return Series{Values: points}
}

// FormatPrice renders v in its shortest form, keeping one decimal for whole
// numbers ("61.0").
func FormatPrice(v float64) *string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return &s
}
