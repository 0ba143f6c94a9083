package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"basis-monitor/internal/basis"
)

const (
	instrumentsPath = "/public/get_instruments"
	tickerPath      = "/public/ticker"
	indexPricePath  = "/public/get_index_price"
	chartDataPath   = "/public/get_tradingview_chart_data"
)

var decTwo = decimal.NewFromInt(2)

// DeribitOptions parameterise the Deribit public API client.
type DeribitOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Deribit fetches instruments and prices from the Deribit public REST API.
type Deribit struct {
	opts    DeribitOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDeribit constructs a Deribit market-data client.
func NewDeribit(opts DeribitOptions, logger zerolog.Logger) *Deribit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.deribit.com/api/v2"
	}

	return &Deribit{
		opts:    opts,
		logger:  logger.With().Str("component", "deribit_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// ListActiveFutures returns the non-expired dated futures for a currency.
// Perpetuals never leave this method.
func (d *Deribit) ListActiveFutures(ctx context.Context, currency string) ([]basis.ContractSpec, error) {
	params := url.Values{}
	params.Set("currency", strings.ToUpper(currency))
	params.Set("kind", "future")
	params.Set("expired", "false")

	var result []instrumentPayload
	if err := d.get(ctx, instrumentsPath, params, &result); err != nil {
		return nil, err
	}

	specs := make([]basis.ContractSpec, 0, len(result))
	for _, inst := range result {
		if inst.SettlementPeriod == "perpetual" {
			continue
		}
		if inst.ExpirationTimestamp <= 0 {
			return nil, fmt.Errorf("instrument %s: non-positive expiration timestamp", inst.InstrumentName)
		}
		expiry := time.UnixMilli(inst.ExpirationTimestamp).UTC()
		specs = append(specs, basis.NewContractSpec(inst.InstrumentName, strings.ToUpper(currency), expiry, basis.SettlementFuture))
	}
	return specs, nil
}

// FetchMid returns the mid of best bid and ask for an instrument.
func (d *Deribit) FetchMid(ctx context.Context, instrument string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("instrument_name", instrument)

	var result tickerPayload
	if err := d.get(ctx, tickerPath, params, &result); err != nil {
		return decimal.Decimal{}, err
	}

	bid, err := numberToDecimal(result.BestBidPrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse best bid for %s: %w", instrument, err)
	}
	ask, err := numberToDecimal(result.BestAskPrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse best ask for %s: %w", instrument, err)
	}
	if bid.IsZero() && ask.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("instrument %s has an empty book", instrument)
	}

	return bid.Add(ask).Div(decTwo), nil
}

// FetchIndexPrice returns the settlement index price for an index name such
// as btc_usd.
func (d *Deribit) FetchIndexPrice(ctx context.Context, indexName string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("index_name", indexName)

	var result indexPayload
	if err := d.get(ctx, indexPricePath, params, &result); err != nil {
		return decimal.Decimal{}, err
	}

	price, err := numberToDecimal(result.IndexPrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse index price %s: %w", indexName, err)
	}
	if price.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("index %s returned zero", indexName)
	}
	return price, nil
}

// FetchHistory returns close prices from the TradingView chart endpoint.
// A no_data status maps to an empty series.
func (d *Deribit) FetchHistory(ctx context.Context, instrument string, start, end time.Time, resolution string) ([]basis.PricePoint, error) {
	params := url.Values{}
	params.Set("instrument_name", instrument)
	params.Set("start_timestamp", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("end_timestamp", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("resolution", resolution)

	var result chartPayload
	if err := d.get(ctx, chartDataPath, params, &result); err != nil {
		return nil, err
	}

	if result.Status == "no_data" {
		return nil, nil
	}
	if len(result.Ticks) != len(result.Close) {
		return nil, fmt.Errorf("chart data for %s: %d ticks but %d closes", instrument, len(result.Ticks), len(result.Close))
	}

	points := make([]basis.PricePoint, 0, len(result.Ticks))
	for i, tick := range result.Ticks {
		points = append(points, basis.PricePoint{
			InstrumentID: instrument,
			Timestamp:    time.UnixMilli(tick).UTC(),
			Price:        result.Close[i],
		})
	}
	return points, nil
}

func (d *Deribit) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := d.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "basiswatch/1.0")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, payload)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *apiError       `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode deribit response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("deribit api error (%d): %s", envelope.Error.Code, envelope.Error.Message)
	}

	return json.Unmarshal(envelope.Result, out)
}

type instrumentPayload struct {
	InstrumentName      string `json:"instrument_name"`
	SettlementPeriod    string `json:"settlement_period"`
	ExpirationTimestamp int64  `json:"expiration_timestamp"`
}

type tickerPayload struct {
	BestBidPrice json.Number `json:"best_bid_price"`
	BestAskPrice json.Number `json:"best_ask_price"`
}

type indexPayload struct {
	IndexPrice json.Number `json:"index_price"`
}

type chartPayload struct {
	Status string    `json:"status"`
	Ticks  []int64   `json:"ticks"`
	Close  []float64 `json:"close"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// numberToDecimal treats an absent field as zero; the venue omits bid or ask
// on one-sided books.
func numberToDecimal(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(n))
}

func parseAPIError(status int, payload []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error != nil {
		return fmt.Errorf("deribit api error (%d): %s", status, envelope.Error.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("deribit api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("deribit api error (%d)", status)
}

var _ MarketData = (*Deribit)(nil)
