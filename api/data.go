package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/observability"
)

const (
	dataTimeout      = 30 * time.Second
	maxPageSize      = 10000
	defaultTimeframe = "1min"
	dataCacheSize    = 128
)

// PriceBar is one OHLCV row from the trading-data service.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// FetchParams narrows a candle query. Zero values mean: default timeframe,
// no date bounds, maximum page size.
type FetchParams struct {
	Timeframe string
	StartDate string
	EndDate   string
	PageSize  int
}

func (p *FetchParams) normalize() {
	if p.Timeframe == "" {
		p.Timeframe = defaultTimeframe
	}
	if p.PageSize <= 0 || p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
}

// DataService fetches historical candles and symbol listings from the
// trading-data API. Responses are cached in an LRU keyed by the full query,
// so repeated backtest setups do not hammer the server. Safe for concurrent
// use.
type DataService struct {
	baseURL     string
	httpClient  *http.Client
	log         zerolog.Logger
	maxAttempts int

	bars    *lru.Cache[string, []PriceBar]
	symbols *lru.Cache[string, []string]
}

// DataOption customizes a DataService.
type DataOption func(*DataService)

// WithDataLogger sets the service's logger. Defaults to a disabled logger.
func WithDataLogger(log zerolog.Logger) DataOption {
	return func(d *DataService) { d.log = log }
}

// WithDataHTTPClient replaces the underlying HTTP client.
func WithDataHTTPClient(c *http.Client) DataOption {
	return func(d *DataService) { d.httpClient = c }
}

// WithDataMaxAttempts sets how many times a retryable failure is attempted.
func WithDataMaxAttempts(n int) DataOption {
	return func(d *DataService) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// NewDataService builds a client for the trading-data API. The base URL is
// typically the auth server URL, which fronts the data-manager.
func NewDataService(baseURL string, opts ...DataOption) (*DataService, error) {
	barCache, err := lru.New[string, []PriceBar](dataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create bar cache: %w", err)
	}
	symbolCache, err := lru.New[string, []string](dataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}

	d := &DataService{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: dataTimeout},
		log:         zerolog.Nop(),
		maxAttempts: 3,
		bars:        barCache,
		symbols:     symbolCache,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FetchCandles retrieves bars for a symbol, sorted by timestamp ascending.
// An empty result is not an error; the server has no data for the query.
func (d *DataService) FetchCandles(ctx context.Context, symbol string, params FetchParams) ([]PriceBar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	params.normalize()

	key := strings.Join([]string{symbol, params.Timeframe, params.StartDate, params.EndDate, strconv.Itoa(params.PageSize)}, "|")
	if bars, ok := d.bars.Get(key); ok {
		d.log.Debug().Str("symbol", symbol).Msg("Candle cache hit")
		return bars, nil
	}

	query := url.Values{}
	query.Set("timeframe", params.Timeframe)
	query.Set("page_size", strconv.Itoa(params.PageSize))
	if params.StartDate != "" {
		query.Set("start_date", params.StartDate)
	}
	if params.EndDate != "" {
		query.Set("end_date", params.EndDate)
	}
	endpoint := d.baseURL + "/trading-data/data/" + url.PathEscape(symbol) + "?" + query.Encode()

	var payload struct {
		Data []PriceBar `json:"data"`
	}
	if err := d.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}

	bars := payload.Data
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	d.bars.Add(key, bars)
	d.log.Info().Str("symbol", symbol).Str("timeframe", params.Timeframe).Int("bars", len(bars)).Msg("Fetched candles")
	return bars, nil
}

// AvailableSymbols lists the symbols the service can serve for a timeframe.
func (d *DataService) AvailableSymbols(ctx context.Context, timeframe string) ([]string, error) {
	if timeframe == "" {
		timeframe = defaultTimeframe
	}
	if symbols, ok := d.symbols.Get(timeframe); ok {
		return symbols, nil
	}

	endpoint := d.baseURL + "/trading-data/symbols?timeframe=" + url.QueryEscape(timeframe)

	var symbols []string
	if err := d.getJSON(ctx, endpoint, &symbols); err != nil {
		return nil, fmt.Errorf("failed to fetch available symbols: %w", err)
	}

	d.symbols.Add(timeframe, symbols)
	return symbols, nil
}

// getJSON issues a GET with retry on network errors and 5xx replies and
// decodes the JSON body into out.
func (d *DataService) getJSON(ctx context.Context, endpoint string, out any) error {
	retry := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := retry.Duration()
			d.log.Debug().Int("attempt", attempt).Dur("wait", wait).Msg("Retrying trading-data request")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := d.getOnce(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

func (d *DataService) getOnce(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	started := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("trading_data", 0, time.Since(started))
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest("trading_data", resp.StatusCode, time.Since(started))

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("invalid response body: %w", err)
	}
	return false, nil
}
