package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bottlechain/chaincore/internal/chains"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/shopspring/decimal"
)

func feedChains(t *testing.T, rpcURL string) *chains.Service {
	t.Helper()
	r, err := registry.New(
		[]registry.ChainDescriptor{
			{ID: "ethereum", Family: registry.FamilyEVM, RPCURL: rpcURL, NativeSymbol: "ETH", NativeDecimals: 18},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return chains.NewService(r, logging.Default())
}

func TestSyntheticSource(t *testing.T) {
	synth := newSyntheticSource()

	for _, symbol := range []string{"BTL", "ETH", "USDC", "UNKNOWN"} {
		base, ok := syntheticBasePrices[symbol]
		if !ok {
			base = 1.00
		}

		q := synth.Fetch(TokenConfig{Symbol: symbol})
		if q.Symbol != symbol {
			t.Errorf("symbol = %s, want %s", q.Symbol, symbol)
		}
		if q.LastUpdated.IsZero() {
			t.Error("synthetic quote should carry a fresh timestamp")
		}

		price, _ := q.Price.Float64()
		if price < base*0.994 || price > base*1.006 {
			t.Errorf("%s price %f outside half-percent band of %f", symbol, price, base)
		}
		if q.Change24h <= -5 || q.Change24h >= 5 {
			t.Errorf("%s change %f outside (-5, 5)", symbol, q.Change24h)
		}
		if q.Volume24h < 0 || q.Volume24h >= 1e6 {
			t.Errorf("%s volume %f out of range", symbol, q.Volume24h)
		}
		if !q.MarketCap.Equal(decimal.NewFromFloat(base * 1e6)) {
			t.Errorf("%s market cap = %s, want %f", symbol, q.MarketCap, base*1e6)
		}
	}
}

func TestMarketSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "ethereum" {
			t.Errorf("ids = %s, want ethereum", r.URL.Query().Get("ids"))
		}
		fmt.Fprint(w, `{"ethereum":{"usd":3123.45,"usd_market_cap":375000000000,"usd_24h_vol":15000000000,"usd_24h_change":2.7}}`)
	}))
	defer srv.Close()

	market := newMarketSource(srv.URL)
	q, err := market.Fetch(context.Background(), TokenConfig{Symbol: "ETH", MarketKey: "ethereum"})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if !q.Price.Equal(decimal.NewFromFloat(3123.45)) {
		t.Errorf("price = %s, want 3123.45", q.Price)
	}
	if q.Change24h != 2.7 {
		t.Errorf("change = %f, want 2.7", q.Change24h)
	}
}

func TestMarketSourceMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	market := newMarketSource(srv.URL)
	_, err := market.Fetch(context.Background(), TokenConfig{Symbol: "ETH", MarketKey: "ethereum"})
	if !errors.Is(err, ErrPriceSource) {
		t.Errorf("Fetch() = %v, want ErrPriceSource", err)
	}
}

func TestOracleSource(t *testing.T) {
	// latestRoundData returns five words; the answer is the second.
	answer := fmt.Sprintf("0x%064x%064x%064x%064x%064x",
		1, 300012345678, 1700000000, 1700000000, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"%s"}`, answer)
	}))
	defer srv.Close()

	svc := feedChains(t, srv.URL)
	defer svc.Close()

	oracle := newOracleSource(svc)
	q, err := oracle.Fetch(context.Background(), TokenConfig{
		Symbol:     "ETH",
		Chain:      "ethereum",
		OracleFeed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if q.Price.String() != "3000.12345678" {
		t.Errorf("price = %s, want 3000.12345678", q.Price)
	}
}

func TestOracleSourceNegativeAnswer(t *testing.T) {
	// int256 answer of -1: all bits set.
	answer := fmt.Sprintf("0x%064x%s%064x%064x%064x",
		1, strings.Repeat("f", 64), 1700000000, 1700000000, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"%s"}`, answer)
	}))
	defer srv.Close()

	svc := feedChains(t, srv.URL)
	defer svc.Close()

	oracle := newOracleSource(svc)
	_, err := oracle.Fetch(context.Background(), TokenConfig{
		Symbol:     "ETH",
		Chain:      "ethereum",
		OracleFeed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	})
	if !errors.Is(err, ErrPriceSource) {
		t.Errorf("Fetch() = %v, want ErrPriceSource", err)
	}
}

func TestFeedEagerRefresh(t *testing.T) {
	cfg := Config{
		Tokens: []TokenConfig{
			{Symbol: "BTL"},
			{Symbol: "USDT"},
		},
		PollInterval: time.Hour,
	}
	feed := New(cfg, nil, logging.Default())

	feed.refreshAll(context.Background())

	prices := feed.GetAllPrices()
	if len(prices) != 2 {
		t.Fatalf("prices = %d, want 2", len(prices))
	}
	for _, symbol := range []string{"BTL", "USDT"} {
		q, ok := feed.GetPrice(symbol)
		if !ok {
			t.Errorf("GetPrice(%s) missing", symbol)
			continue
		}
		if q.Price.IsZero() || q.LastUpdated.IsZero() {
			t.Errorf("GetPrice(%s) = %+v, want populated quote", symbol, q)
		}
	}
}

func TestFeedKeepsStaleOnFailure(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ethereum":{"usd":3000,"usd_market_cap":1,"usd_24h_vol":1,"usd_24h_change":1}}`)
	}))
	defer srv.Close()

	cfg := Config{
		Tokens:        []TokenConfig{{Symbol: "ETH", MarketKey: "ethereum"}},
		MarketDataURL: srv.URL,
		PollInterval:  time.Hour,
	}
	feed := New(cfg, nil, logging.Default())

	feed.refreshAll(context.Background())
	first, ok := feed.GetPrice("ETH")
	if !ok {
		t.Fatal("GetPrice(ETH) missing after first refresh")
	}

	healthy.Store(false)
	feed.refreshAll(context.Background())

	second, ok := feed.GetPrice("ETH")
	if !ok {
		t.Fatal("GetPrice(ETH) missing after failed refresh")
	}
	if !second.Price.Equal(first.Price) || !second.LastUpdated.Equal(first.LastUpdated) {
		t.Errorf("failed refresh should keep the stale quote: %+v vs %+v", second, first)
	}
}

func TestFeedFailureIsolatedPerSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ethereum":{"usd":3000,"usd_market_cap":1,"usd_24h_vol":1,"usd_24h_change":1}}`)
	}))
	defer srv.Close()

	cfg := Config{
		Tokens: []TokenConfig{
			{Symbol: "BAD", MarketKey: "broken"},
			{Symbol: "ETH", MarketKey: "ethereum"},
		},
		MarketDataURL: srv.URL,
		PollInterval:  time.Hour,
	}
	feed := New(cfg, nil, logging.Default())
	feed.refreshAll(context.Background())

	// The broken symbol stays absent, the good one gets real data.
	if q, ok := feed.GetPrice("BAD"); ok {
		t.Errorf("failed symbol should stay absent, got %+v", q)
	}
	q, ok := feed.GetPrice("ETH")
	if !ok || !q.Price.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("healthy symbol should be unaffected: %+v, %v", q, ok)
	}
	if prices := feed.GetAllPrices(); len(prices) != 1 {
		t.Errorf("snapshot = %v, want only the updated symbol", prices)
	}
}

func TestFeedFailedSymbolNeverSynthesized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := Config{
		Tokens:        []TokenConfig{{Symbol: "BAD", MarketKey: "broken"}},
		MarketDataURL: srv.URL,
		PollInterval:  time.Hour,
	}
	feed := New(cfg, nil, logging.Default())

	var delivered []Quote
	feed.Subscribe(func(q Quote) { delivered = append(delivered, q) })

	feed.refreshAll(context.Background())

	// A symbol with a real source that fails must not fall back to a
	// fabricated quote, and nothing reaches subscribers.
	if q, ok := feed.GetPrice("BAD"); ok {
		t.Errorf("GetPrice(BAD) = %+v, want absent", q)
	}
	if len(delivered) != 0 {
		t.Errorf("deliveries = %v, want none", delivered)
	}
}

func TestSubscribeAndCancel(t *testing.T) {
	cfg := Config{
		Tokens:       []TokenConfig{{Symbol: "BTL"}},
		PollInterval: time.Hour,
	}
	feed := New(cfg, nil, logging.Default())

	var order []string
	first := feed.Subscribe(func(q Quote) { order = append(order, "first") })
	second := feed.Subscribe(func(q Quote) { order = append(order, "second") })

	feed.refreshAll(context.Background())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v, want [first second]", order)
	}

	// After cancellation no further deliveries reach the callback.
	first.Cancel()
	order = nil
	feed.refreshAll(context.Background())

	if len(order) != 1 || order[0] != "second" {
		t.Errorf("post-cancel deliveries = %v, want [second]", order)
	}

	// Double cancel is a no-op.
	first.Cancel()
	second.Cancel()
	order = nil
	feed.refreshAll(context.Background())
	if len(order) != 0 {
		t.Errorf("deliveries after all cancelled = %v", order)
	}
}

func TestGetAllPricesSnapshot(t *testing.T) {
	cfg := Config{
		Tokens:       []TokenConfig{{Symbol: "BTL"}},
		PollInterval: time.Hour,
	}
	feed := New(cfg, nil, logging.Default())
	feed.refreshAll(context.Background())

	snap := feed.GetAllPrices()
	snap["BTL"] = Quote{Symbol: "BTL"}

	q, _ := feed.GetPrice("BTL")
	if q.Price.IsZero() {
		t.Error("mutating a snapshot must not affect the feed")
	}
}

func TestFeedStartStop(t *testing.T) {
	cfg := Config{
		Tokens:       []TokenConfig{{Symbol: "BTL"}},
		PollInterval: 10 * time.Millisecond,
	}
	feed := New(cfg, nil, logging.Default())

	var ticks atomic.Int32
	feed.Subscribe(func(q Quote) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	feed.Stop()

	if ticks.Load() < 2 {
		t.Errorf("ticks = %d, want at least the eager fetch plus one poll", ticks.Load())
	}
}
