package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/helpers"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/shopspring/decimal"
)

// PoolParams describes one AMM pool and its reserve vaults.
type PoolParams struct {
	// Pair is "BASE/QUOTE" by token symbol.
	Pair       string
	Address    string
	BaseVault  string
	QuoteVault string
}

// vaultReader reads SPL token account balances.
type vaultReader interface {
	TokenAccountBalance(ctx context.Context, account string) (*big.Int, error)
}

// SolanaVenue quotes swaps against constant-product AMM pools by reading
// their reserve vaults, and builds instruction descriptors for the signer.
type SolanaVenue struct {
	chainID string
	params  VenueParams
	feeRate decimal.Decimal
	pools   map[string]PoolParams
	vaults  vaultReader
	log     *logging.Logger
}

// NewSolanaVenue creates a venue over configured AMM pools.
func NewSolanaVenue(chainID string, params VenueParams, pools []PoolParams, vaults vaultReader, log *logging.Logger) (*SolanaVenue, error) {
	feeRate, err := ParsePercent(params.Fee)
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]PoolParams, len(pools))
	for _, p := range pools {
		indexed[strings.ToUpper(p.Pair)] = p
	}

	return &SolanaVenue{
		chainID: chainID,
		params:  params,
		feeRate: feeRate,
		pools:   indexed,
		vaults:  vaults,
		log:     log.Component("venue:" + params.Name),
	}, nil
}

// Name returns the venue's display name.
func (v *SolanaVenue) Name() string { return v.params.Name }

// Fee returns the venue fee display string.
func (v *SolanaVenue) Fee() string { return v.params.Fee }

// SettleSeconds returns the settlement estimate for one swap.
func (v *SolanaVenue) SettleSeconds() int { return v.params.SettleSeconds }

// pool resolves the pool serving a pair, in either direction. reversed is
// true when the input token is the pool's quote side.
func (v *SolanaVenue) pool(from, to string) (PoolParams, bool, error) {
	if p, ok := v.pools[strings.ToUpper(from+"/"+to)]; ok {
		return p, false, nil
	}
	if p, ok := v.pools[strings.ToUpper(to+"/"+from)]; ok {
		return p, true, nil
	}
	return PoolParams{}, false, fmt.Errorf("%w: no pool for %s/%s on %s", ErrUnsupportedPair, from, to, v.chainID)
}

// reserves reads the pool vaults oriented so the first value is the input
// side reserve.
func (v *SolanaVenue) reserves(ctx context.Context, p PoolParams, reversed bool) (*big.Int, *big.Int, error) {
	base, err := v.vaults.TokenAccountBalance(ctx, p.BaseVault)
	if err != nil {
		return nil, nil, err
	}
	quote, err := v.vaults.TokenAccountBalance(ctx, p.QuoteVault)
	if err != nil {
		return nil, nil, err
	}
	if reversed {
		return quote, base, nil
	}
	return base, quote, nil
}

// Quote estimates the constant-product output for a direct pool swap.
func (v *SolanaVenue) Quote(ctx context.Context, amountIn decimal.Decimal, path []registry.TokenDescriptor) (*LegQuote, error) {
	if len(path) != 2 {
		return nil, fmt.Errorf("%w: only direct pool swaps are supported", ErrUnsupportedPair)
	}

	p, reversed, err := v.pool(path[0].Symbol, path[1].Symbol)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, err := v.reserves(ctx, p, reversed)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: empty pool %s", ErrUnsupportedPair, p.Pair)
	}

	rawIn := helpers.RawFromDecimal(amountIn, path[0].Decimals)
	if rawIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount rounds to zero at %d decimals", ErrInvalidParams, path[0].Decimals)
	}

	// x*y=k with the venue fee taken from the input side.
	in := decimal.NewFromBigInt(rawIn, 0)
	rIn := decimal.NewFromBigInt(reserveIn, 0)
	rOut := decimal.NewFromBigInt(reserveOut, 0)

	inAfterFee := in.Mul(decimal.NewFromInt(100).Sub(v.feeRate)).Div(decimal.NewFromInt(100))
	outRaw := rOut.Mul(inAfterFee).Div(rIn.Add(inAfterFee)).Truncate(0)

	output := outRaw.Shift(-int32(path[1].Decimals))

	spotRate := rOut.Div(rIn)
	actualRate := outRaw.Div(in)
	impact := decimal.Zero
	if spotRate.IsPositive() {
		impact = decimal.NewFromInt(1).Sub(actualRate.Div(spotRate)).Mul(decimal.NewFromInt(100))
		if impact.IsNegative() {
			impact = decimal.Zero
		}
	}

	return &LegQuote{Output: output, PriceImpactPct: impact}, nil
}

// swapInstruction is the descriptor handed to the signer, which assembles
// and signs the actual transaction.
type swapInstruction struct {
	Program   string   `json:"program"`
	Pool      string   `json:"pool"`
	AmountIn  string   `json:"amount_in"`
	MinOut    string   `json:"min_out"`
	Path      []string `json:"path"`
	Recipient string   `json:"recipient"`
}

// BuildSwap builds the swap instruction descriptor for a direct pool swap.
func (v *SolanaVenue) BuildSwap(ctx context.Context, amountIn, minOut decimal.Decimal, path []registry.TokenDescriptor, recipient string, deadline time.Time) (*TxRequest, error) {
	if len(path) != 2 {
		return nil, fmt.Errorf("%w: only direct pool swaps are supported", ErrUnsupportedPair)
	}
	p, _, err := v.pool(path[0].Symbol, path[1].Symbol)
	if err != nil {
		return nil, err
	}

	rawIn := helpers.RawFromDecimal(amountIn, path[0].Decimals)
	rawMin := helpers.RawFromDecimal(minOut, path[1].Decimals)

	instr := swapInstruction{
		Program:   v.params.Router,
		Pool:      p.Address,
		AmountIn:  rawIn.String(),
		MinOut:    rawMin.String(),
		Path:      []string{path[0].Symbol, path[1].Symbol},
		Recipient: recipient,
	}
	data, err := json.Marshal(instr)
	if err != nil {
		return nil, err
	}

	return &TxRequest{
		ChainID:  v.chainID,
		To:       p.Address,
		Data:     base64.StdEncoding.EncodeToString(data),
		Value:    big.NewInt(0),
		Deadline: deadline,
	}, nil
}

var _ Venue = (*SolanaVenue)(nil)
