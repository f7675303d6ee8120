package swap

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bottlechain/chaincore/internal/driver"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/helpers"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/shopspring/decimal"
)

// Uniswap V2 style router selectors.
const (
	selGetAmountsOut            = "0xd06ca61f" // getAmountsOut(uint256,address[])
	selSwapExactTokensForTokens = "0x38ed1739" // swapExactTokensForTokens(uint256,uint256,address[],address,uint256)
)

// evmCaller is the read-only contract surface the venue needs.
type evmCaller interface {
	CallContract(ctx context.Context, to string, data string) ([]byte, error)
}

// VenueParams configures one venue.
type VenueParams struct {
	Name          string
	Router        string
	Fee           string
	WrappedNative string
	SettleSeconds int
}

// EVMVenue quotes and builds swaps against a Uniswap V2 style router.
type EVMVenue struct {
	chainID string
	params  VenueParams
	caller  evmCaller
	log     *logging.Logger
}

// NewEVMVenue creates a venue over an EVM chain's router contract.
func NewEVMVenue(chainID string, params VenueParams, caller evmCaller, log *logging.Logger) *EVMVenue {
	return &EVMVenue{
		chainID: chainID,
		params:  params,
		caller:  caller,
		log:     log.Component("venue:" + params.Name),
	}
}

// Name returns the venue's display name.
func (v *EVMVenue) Name() string { return v.params.Name }

// Fee returns the venue fee display string.
func (v *EVMVenue) Fee() string { return v.params.Fee }

// SettleSeconds returns the settlement estimate for one swap.
func (v *EVMVenue) SettleSeconds() int { return v.params.SettleSeconds }

// pathAddresses maps token descriptors to router path addresses. The native
// asset routes through the wrapped-native token.
func (v *EVMVenue) pathAddresses(path []registry.TokenDescriptor) ([]string, error) {
	addrs := make([]string, len(path))
	for i, t := range path {
		if t.IsNative() {
			if v.params.WrappedNative == "" {
				return nil, fmt.Errorf("%w: no wrapped native token on %s", ErrUnsupportedPair, v.chainID)
			}
			addrs[i] = v.params.WrappedNative
			continue
		}
		addrs[i] = t.Address
	}
	return addrs, nil
}

// getAmountsOut asks the router for the output amounts along a path.
func (v *EVMVenue) getAmountsOut(ctx context.Context, amountIn *big.Int, addrs []string) ([]*big.Int, error) {
	// Dynamic array argument: amountIn word, array offset, length, elements.
	words := make([][]byte, 0, len(addrs)+3)
	words = append(words, driver.AmountWord(amountIn))
	words = append(words, driver.AmountWord(big.NewInt(64)))
	words = append(words, driver.AmountWord(big.NewInt(int64(len(addrs)))))
	for _, a := range addrs {
		words = append(words, driver.AddressWord(a))
	}

	result, err := v.caller.CallContract(ctx, v.params.Router, driver.EncodeCall(selGetAmountsOut, words...))
	if err != nil {
		return nil, err
	}
	if len(result) < 64 {
		return nil, fmt.Errorf("%w: short getAmountsOut response", driver.ErrRPC)
	}

	length := new(big.Int).SetBytes(driver.WordAt(result, 1)).Int64()
	if length != int64(len(addrs)) || len(result) < int(64+32*length) {
		return nil, fmt.Errorf("%w: malformed getAmountsOut response", driver.ErrRPC)
	}

	amounts := make([]*big.Int, length)
	for i := int64(0); i < length; i++ {
		amounts[i] = new(big.Int).SetBytes(driver.WordAt(result, int(2+i)))
	}
	return amounts, nil
}

// Quote estimates the output along the path and the price impact of the
// trade size, measured against the marginal rate of a thousandth-size probe.
func (v *EVMVenue) Quote(ctx context.Context, amountIn decimal.Decimal, path []registry.TokenDescriptor) (*LegQuote, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: path too short", ErrInvalidParams)
	}
	addrs, err := v.pathAddresses(path)
	if err != nil {
		return nil, err
	}

	rawIn := helpers.RawFromDecimal(amountIn, path[0].Decimals)
	if rawIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount rounds to zero at %d decimals", ErrInvalidParams, path[0].Decimals)
	}

	amounts, err := v.getAmountsOut(ctx, rawIn, addrs)
	if err != nil {
		return nil, err
	}
	rawOut := amounts[len(amounts)-1]
	output := helpers.DecimalFromRaw(rawOut, path[len(path)-1].Decimals)

	impact := decimal.Zero
	probe := new(big.Int).Div(rawIn, big.NewInt(1000))
	if probe.Sign() > 0 {
		probeAmounts, err := v.getAmountsOut(ctx, probe, addrs)
		if err == nil {
			probeOut := probeAmounts[len(probeAmounts)-1]
			if probeOut.Sign() > 0 && rawOut.Sign() > 0 {
				spotRate := decimal.NewFromBigInt(probeOut, 0).Div(decimal.NewFromBigInt(probe, 0))
				actualRate := decimal.NewFromBigInt(rawOut, 0).Div(decimal.NewFromBigInt(rawIn, 0))
				if spotRate.IsPositive() {
					impact = decimal.NewFromInt(1).Sub(actualRate.Div(spotRate)).Mul(decimal.NewFromInt(100))
					if impact.IsNegative() {
						impact = decimal.Zero
					}
				}
			}
		}
	}

	return &LegQuote{Output: output, PriceImpactPct: impact}, nil
}

// BuildSwap builds a swapExactTokensForTokens call against the router.
func (v *EVMVenue) BuildSwap(ctx context.Context, amountIn, minOut decimal.Decimal, path []registry.TokenDescriptor, recipient string, deadline time.Time) (*TxRequest, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: path too short", ErrInvalidParams)
	}
	addrs, err := v.pathAddresses(path)
	if err != nil {
		return nil, err
	}

	rawIn := helpers.RawFromDecimal(amountIn, path[0].Decimals)
	rawMin := helpers.RawFromDecimal(minOut, path[len(path)-1].Decimals)

	// Head: amountIn, amountOutMin, path offset, to, deadline. Tail: array.
	words := make([][]byte, 0, len(addrs)+6)
	words = append(words, driver.AmountWord(rawIn))
	words = append(words, driver.AmountWord(rawMin))
	words = append(words, driver.AmountWord(big.NewInt(160)))
	words = append(words, driver.AddressWord(recipient))
	words = append(words, driver.AmountWord(big.NewInt(deadline.Unix())))
	words = append(words, driver.AmountWord(big.NewInt(int64(len(addrs)))))
	for _, a := range addrs {
		words = append(words, driver.AddressWord(a))
	}

	return &TxRequest{
		ChainID:  v.chainID,
		To:       v.params.Router,
		Data:     driver.EncodeCall(selSwapExactTokensForTokens, words...),
		Value:    big.NewInt(0),
		Deadline: deadline,
	}, nil
}

var _ Venue = (*EVMVenue)(nil)
