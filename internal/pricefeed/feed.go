// Package pricefeed aggregates token prices from on-chain oracles, a
// market-data API and a synthetic fallback, refreshing all tracked symbols on
// a fixed cadence and fanning updates out to subscribers.
package pricefeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bottlechain/chaincore/internal/chains"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrPriceSource indicates a price source failed to produce a quote.
var ErrPriceSource = errors.New("price source failed")

// Quote is one symbol's latest price data.
type Quote struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Change24h   float64         `json:"change_24h"`
	Volume24h   float64         `json:"volume_24h"`
	MarketCap   decimal.Decimal `json:"market_cap"`
	LastUpdated time.Time       `json:"last_updated"`
}

// TokenConfig selects the price source for one symbol. OracleFeed takes
// priority over MarketKey; a config with neither uses the synthetic source.
type TokenConfig struct {
	Symbol     string
	Chain      string
	OracleFeed string
	MarketKey  string
}

// Subscription is a registered price callback. Cancelling removes exactly
// this entry; delivery never races cancellation because both run under the
// feed mutex boundary.
type Subscription struct {
	id   uuid.UUID
	feed *Feed
	fn   func(Quote)
}

// Cancel removes the subscription from its feed.
func (s *Subscription) Cancel() {
	s.feed.Unsubscribe(s)
}

// Feed polls all tracked symbols and publishes quotes.
type Feed struct {
	tokens   []TokenConfig
	interval time.Duration
	log      *logging.Logger

	oracle *oracleSource
	market *marketSource
	synth  *syntheticSource

	mu     sync.RWMutex
	prices map[string]Quote
	subs   []*Subscription

	cancel context.CancelFunc
	done   chan struct{}
}

// Config holds feed construction parameters.
type Config struct {
	// Tokens lists the symbols to track and their sources.
	Tokens []TokenConfig

	// PollInterval is the refresh cadence. Defaults to 10 seconds.
	PollInterval time.Duration

	// MarketDataURL is the base URL of the market-data API.
	MarketDataURL string
}

// New creates a price feed. The chain service serves on-chain oracle reads.
func New(cfg Config, svc *chains.Service, log *logging.Logger) *Feed {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Feed{
		tokens:   cfg.Tokens,
		interval: interval,
		log:      log.Component("pricefeed"),
		oracle:   newOracleSource(svc),
		market:   newMarketSource(cfg.MarketDataURL),
		synth:    newSyntheticSource(),
		prices:   make(map[string]Quote),
	}
}

// Start fetches all symbols eagerly, then refreshes on the poll interval
// until the context is cancelled.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)

		f.refreshAll(ctx)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.refreshAll(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
		f.cancel = nil
	}
}

// refreshAll fetches every tracked symbol. A failing symbol keeps its stale
// quote when one exists, stays absent otherwise, and never blocks the others.
// The synthetic source serves only symbols configured without a real one.
func (f *Feed) refreshAll(ctx context.Context) {
	for _, token := range f.tokens {
		if ctx.Err() != nil {
			return
		}

		quote, err := f.fetch(ctx, token)
		if err != nil {
			f.log.Warn("price refresh failed, skipping symbol", "symbol", token.Symbol, "error", err)
			continue
		}

		f.publish(quote)
	}
}

// fetch reads one symbol from its configured source.
func (f *Feed) fetch(ctx context.Context, token TokenConfig) (Quote, error) {
	switch {
	case token.OracleFeed != "":
		return f.oracle.Fetch(ctx, token)
	case token.MarketKey != "":
		return f.market.Fetch(ctx, token)
	default:
		return f.synth.Fetch(token), nil
	}
}

// publish stores a quote and notifies subscribers in registration order.
func (f *Feed) publish(quote Quote) {
	f.mu.Lock()
	f.prices[quote.Symbol] = quote
	subs := make([]*Subscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.fn(quote)
	}
}

// GetPrice returns the latest quote for a symbol.
func (f *Feed) GetPrice(symbol string) (Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.prices[symbol]
	return q, ok
}

// GetAllPrices returns a snapshot of all latest quotes.
func (f *Feed) GetAllPrices() map[string]Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]Quote, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out
}

// Subscribe registers a callback invoked for every published quote.
func (f *Feed) Subscribe(fn func(Quote)) *Subscription {
	sub := &Subscription{id: uuid.New(), feed: f, fn: fn}

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription. Removing an already-removed
// subscription is a no-op.
func (f *Feed) Unsubscribe(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == sub.id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

// TrackedSymbols returns the configured symbols in configuration order.
func (f *Feed) TrackedSymbols() []string {
	out := make([]string, len(f.tokens))
	for i, t := range f.tokens {
		out[i] = t.Symbol
	}
	return out
}
