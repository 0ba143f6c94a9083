package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDeribit(t *testing.T, handler http.HandlerFunc) (*Deribit, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDeribit(DeribitOptions{
		BaseURL:   srv.URL,
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger()), srv
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "result": result})
}

func TestListActiveFuturesExcludesPerpetuals(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("kind") != "future" || r.URL.Query().Get("expired") != "false" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		writeResult(w, []map[string]any{
			{"instrument_name": "BTC-PERPETUAL", "settlement_period": "perpetual", "expiration_timestamp": 32503680000000},
			{"instrument_name": "BTC-25SEP26", "settlement_period": "month", "expiration_timestamp": 1790323200000},
		})
	})

	specs, err := d.ListActiveFutures(context.Background(), "btc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("perpetual should be filtered, got %d specs", len(specs))
	}
	spec := specs[0]
	if spec.InstrumentID != "BTC-25SEP26" || spec.Currency != "BTC" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.Expiry != time.UnixMilli(1790323200000).UTC() {
		t.Fatalf("unexpected expiry: %v", spec.Expiry)
	}
	if spec.ExpiryKey != spec.Expiry.Format("2006-01-02") {
		t.Fatalf("expiry key should be derived from the timestamp, got %q", spec.ExpiryKey)
	}
}

func TestListActiveFuturesRejectsZeroExpiry(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, []map[string]any{
			{"instrument_name": "BTC-BROKEN", "settlement_period": "month", "expiration_timestamp": 0},
		})
	})

	if _, err := d.ListActiveFutures(context.Background(), "BTC"); err == nil {
		t.Fatal("a dated future without an expiry timestamp should fail")
	}
}

func TestFetchMid(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instrument_name") != "BTC_USDC" {
			t.Fatalf("unexpected instrument: %s", r.URL.RawQuery)
		}
		writeResult(w, map[string]any{"best_bid_price": 99999.5, "best_ask_price": 100000.5})
	})

	mid, err := d.FetchMid(context.Background(), "BTC_USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mid.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected mid 100000, got %s", mid)
	}
}

func TestFetchMidEmptyBook(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{"best_bid_price": 0, "best_ask_price": 0})
	})

	if _, err := d.FetchMid(context.Background(), "BTC-25SEP26"); err == nil {
		t.Fatal("an empty book should error")
	}
}

func TestFetchIndexPrice(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("index_name") != "btc_usd" {
			t.Fatalf("unexpected index: %s", r.URL.RawQuery)
		}
		writeResult(w, map[string]any{"index_price": 100123.45})
	})

	price, err := d.FetchIndexPrice(context.Background(), "btc_usd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(100123.45)) {
		t.Fatalf("expected 100123.45, got %s", price)
	}
}

func TestFetchHistoryNoData(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{"status": "no_data", "ticks": []int64{}, "close": []float64{}})
	})

	points, err := d.FetchHistory(context.Background(), "BTC-25SEP26", time.Now().Add(-time.Hour), time.Now(), "60")
	if err != nil {
		t.Fatalf("no_data must map to an empty series, not an error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected no points, got %d", len(points))
	}
}

func TestFetchHistory(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"status": "ok",
			"ticks":  []int64{1756425600000, 1756429200000},
			"close":  []float64{100100, 100200},
		})
	})

	points, err := d.FetchHistory(context.Background(), "BTC-25SEP26", time.Now().Add(-2*time.Hour), time.Now(), "60")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Price != 100100 || points[0].InstrumentID != "BTC-25SEP26" {
		t.Fatalf("unexpected point: %+v", points[0])
	}
	if !points[1].Timestamp.Equal(time.UnixMilli(1756429200000).UTC()) {
		t.Fatalf("unexpected timestamp: %v", points[1].Timestamp)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 10002, "message": "invalid instrument"},
		})
	})

	if _, err := d.FetchMid(context.Background(), "NOPE"); err == nil {
		t.Fatal("an error envelope should surface as an error")
	}
}

func TestHTTPStatusError(t *testing.T) {
	d, _ := newTestDeribit(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": "bad request"}})
	})

	if _, err := d.FetchIndexPrice(context.Background(), "btc_usd"); err == nil {
		t.Fatal("HTTP 400 should surface as an error")
	}
}
