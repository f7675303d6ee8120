// Package swap quotes and executes token swaps through per-chain venues,
// composing cross-chain swaps out of a source-venue leg, a stable-asset
// bridge leg and a destination-venue leg.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/shopspring/decimal"
)

// Swap errors.
var (
	// ErrInvalidParams indicates malformed swap parameters.
	ErrInvalidParams = errors.New("invalid swap parameters")

	// ErrUnsupportedPair indicates no venue or route can serve the pair.
	ErrUnsupportedPair = errors.New("unsupported swap pair")

	// ErrPartialCompletion indicates the source leg committed on chain but a
	// later stage failed. Funds are recoverable via the persisted record.
	ErrPartialCompletion = errors.New("swap partially completed")

	// ErrNoSigner indicates no transaction signer is configured.
	ErrNoSigner = errors.New("no signer configured")
)

// Params describes one requested swap.
type Params struct {
	FromChain   string          `json:"from_chain"`
	ToChain     string          `json:"to_chain"`
	FromToken   string          `json:"from_token"`
	ToToken     string          `json:"to_token"`
	Amount      decimal.Decimal `json:"amount"`
	SlippagePct decimal.Decimal `json:"slippage_pct"`

	// Recipient receives the output. Required for execution, optional for
	// quoting.
	Recipient string `json:"recipient,omitempty"`

	// Sender is the funding account on the source chain. Cross-chain
	// executions swap into it before bridging; optional otherwise.
	Sender string `json:"sender,omitempty"`
}

// Validate checks the parameters common to quoting and execution.
func (p *Params) Validate() error {
	if p.FromChain == "" || p.ToChain == "" {
		return fmt.Errorf("%w: chain ids required", ErrInvalidParams)
	}
	if p.FromToken == "" || p.ToToken == "" {
		return fmt.Errorf("%w: token symbols required", ErrInvalidParams)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if p.SlippagePct.IsNegative() || p.SlippagePct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: slippage must be within [0, 100]", ErrInvalidParams)
	}
	if p.FromChain == p.ToChain && strings.EqualFold(p.FromToken, p.ToToken) {
		return fmt.Errorf("%w: identical input and output", ErrInvalidParams)
	}
	return nil
}

// CrossChain reports whether the swap spans two chains.
func (p *Params) CrossChain() bool {
	return p.FromChain != p.ToChain
}

// MinOutput derives the minimum acceptable output from an estimate and the
// slippage tolerance: estimate * (100 - slippage) / 100.
func MinOutput(estimate, slippagePct decimal.Decimal) decimal.Decimal {
	return estimate.Mul(decimal.NewFromInt(100).Sub(slippagePct)).Div(decimal.NewFromInt(100))
}

// Quote is a non-binding swap estimate.
type Quote struct {
	Params          Params          `json:"params"`
	EstimatedOutput decimal.Decimal `json:"estimated_output"`
	MinOutput       decimal.Decimal `json:"min_output"`
	PriceImpactPct  decimal.Decimal `json:"price_impact_pct"`
	Fee             string          `json:"fee"`
	Route           []string        `json:"route"`
	EstimatedTime   int             `json:"estimated_time_seconds"`
	CrossChain      bool            `json:"cross_chain"`
}

// LegQuote is one venue's estimate for a single swap leg.
type LegQuote struct {
	Output         decimal.Decimal
	PriceImpactPct decimal.Decimal
}

// TxRequest is an unsigned transaction handed to the signer. Data carries
// the venue-specific payload: ABI call data for EVM venues, a serialized
// instruction descriptor for Solana venues.
type TxRequest struct {
	ChainID  string
	To       string
	Data     string
	Value    *big.Int
	Deadline time.Time
}

// Venue quotes and builds swaps on one chain.
type Venue interface {
	// Name is the venue's display name.
	Name() string

	// Fee is the venue's fee as a display string.
	Fee() string

	// SettleSeconds estimates settlement time for one swap.
	SettleSeconds() int

	// Quote estimates the output of swapping amountIn along the token path.
	Quote(ctx context.Context, amountIn decimal.Decimal, path []registry.TokenDescriptor) (*LegQuote, error)

	// BuildSwap builds the unsigned swap transaction.
	BuildSwap(ctx context.Context, amountIn, minOut decimal.Decimal, path []registry.TokenDescriptor, recipient string, deadline time.Time) (*TxRequest, error)
}

// Signer turns an unsigned transaction into a signed payload ready for
// broadcast. Key custody stays behind this boundary.
type Signer interface {
	Sign(ctx context.Context, req *TxRequest) (string, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, req *TxRequest) (string, error)

// Sign implements Signer.
func (f SignerFunc) Sign(ctx context.Context, req *TxRequest) (string, error) {
	return f(ctx, req)
}

// UnconfiguredSigner rejects every request. Daemons without key custody wire
// this in so execution fails with a clear error.
func UnconfiguredSigner() Signer {
	return SignerFunc(func(ctx context.Context, req *TxRequest) (string, error) {
		return "", ErrNoSigner
	})
}

// BridgeReceipt is the outcome of one bridge transfer.
type BridgeReceipt struct {
	TxHash    string
	AmountOut decimal.Decimal
}

// Bridge moves the bridge asset between chains.
type Bridge interface {
	// Asset is the symbol funds move through.
	Asset() string

	// Fee is the bridge fee as a display string.
	Fee() string

	// FeeRate is the bridge fee as a percentage.
	FeeRate() decimal.Decimal

	// SettleSeconds is the fixed settlement estimate for one transfer.
	SettleSeconds() int

	// Transfer moves amount of the bridge asset from one chain to another.
	Transfer(ctx context.Context, fromChain, toChain string, amount decimal.Decimal, recipient string) (*BridgeReceipt, error)
}

// ParsePercent parses a display fee string like "0.3%" into a percentage.
func ParsePercent(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "%")
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	return d, nil
}
