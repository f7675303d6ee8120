package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/bottlechain/chaincore/internal/chains"
	"github.com/bottlechain/chaincore/internal/driver"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/internal/storage"
	"github.com/bottlechain/chaincore/pkg/helpers"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// transferTopic is the ERC-20 Transfer(address,address,uint256) event topic.
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// swapDeadline bounds how long a built swap stays valid on chain.
const swapDeadline = 20 * time.Minute

// receiptFetcher is implemented by drivers that expose mined receipts.
type receiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash string) (*driver.EVMReceipt, error)
}

// Router quotes and executes swaps. Same-chain swaps go through one venue;
// cross-chain swaps compose a source-venue leg, a bridge transfer of the
// stable asset and a destination-venue leg.
type Router struct {
	chains *chains.Service
	store  *storage.Storage
	signer Signer
	bridge Bridge
	venues map[string]Venue
	log    *logging.Logger
}

// NewRouter creates a swap router over per-chain venues.
func NewRouter(svc *chains.Service, store *storage.Storage, signer Signer, bridge Bridge, venues map[string]Venue, log *logging.Logger) *Router {
	return &Router{
		chains: svc,
		store:  store,
		signer: signer,
		bridge: bridge,
		venues: venues,
		log:    log.Component("swap"),
	}
}

// venueFor returns the venue serving a chain.
func (r *Router) venueFor(chainID string) (Venue, error) {
	v, ok := r.venues[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: no venue on %s", ErrUnsupportedPair, chainID)
	}
	return v, nil
}

// descriptor resolves a token symbol on a chain, mapping the chain's native
// symbol to the synthetic native descriptor.
func (r *Router) descriptor(chainID, symbol string) (registry.TokenDescriptor, error) {
	reg := r.chains.Registry()

	chain, ok := reg.Chain(chainID)
	if !ok {
		return registry.TokenDescriptor{}, fmt.Errorf("%w: %s", driver.ErrNoProvider, chainID)
	}
	if strings.EqualFold(symbol, chain.NativeSymbol) {
		native, _ := reg.NativeToken(chainID)
		return native, nil
	}
	token, ok := reg.Token(chainID, symbol)
	if !ok {
		return registry.TokenDescriptor{}, fmt.Errorf("%w: %s on %s", driver.ErrTokenNotFound, symbol, chainID)
	}
	return token, nil
}

// GetQuote produces a non-binding estimate for a swap.
func (r *Router) GetQuote(ctx context.Context, params Params) (*Quote, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.CrossChain() {
		return r.crossChainQuote(ctx, params)
	}
	return r.sameChainQuote(ctx, params)
}

func (r *Router) sameChainQuote(ctx context.Context, params Params) (*Quote, error) {
	venue, err := r.venueFor(params.FromChain)
	if err != nil {
		return nil, err
	}
	path, err := r.path(params.FromChain, params.FromToken, params.ToToken)
	if err != nil {
		return nil, err
	}

	leg, err := venue.Quote(ctx, params.Amount, path)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Params:          params,
		EstimatedOutput: leg.Output,
		MinOutput:       MinOutput(leg.Output, params.SlippagePct),
		PriceImpactPct:  leg.PriceImpactPct,
		Fee:             venue.Fee(),
		Route:           []string{params.FromToken, params.ToToken},
		EstimatedTime:   venue.SettleSeconds(),
		CrossChain:      false,
	}, nil
}

func (r *Router) crossChainQuote(ctx context.Context, params Params) (*Quote, error) {
	asset := r.bridge.Asset()
	impact := decimal.Zero
	var fees []string

	// Source leg converts the input into the bridge asset. Skipped when the
	// input already is the bridge asset.
	sourceOut := params.Amount
	if !strings.EqualFold(params.FromToken, asset) {
		venue, err := r.venueFor(params.FromChain)
		if err != nil {
			return nil, err
		}
		path, err := r.path(params.FromChain, params.FromToken, asset)
		if err != nil {
			return nil, err
		}
		leg, err := venue.Quote(ctx, params.Amount, path)
		if err != nil {
			return nil, err
		}
		sourceOut = leg.Output
		impact = impact.Add(leg.PriceImpactPct)
		fees = append(fees, venue.Fee())
	}

	bridged := sourceOut.Mul(decimal.NewFromInt(100).Sub(r.bridge.FeeRate())).Div(decimal.NewFromInt(100))
	fees = append(fees, r.bridge.Fee())

	// Destination leg converts the bridged asset into the output token.
	output := bridged
	if !strings.EqualFold(params.ToToken, asset) {
		venue, err := r.venueFor(params.ToChain)
		if err != nil {
			return nil, err
		}
		path, err := r.path(params.ToChain, asset, params.ToToken)
		if err != nil {
			return nil, err
		}
		leg, err := venue.Quote(ctx, bridged, path)
		if err != nil {
			return nil, err
		}
		output = leg.Output
		impact = impact.Add(leg.PriceImpactPct)
		fees = append(fees, venue.Fee())
	}

	return &Quote{
		Params:          params,
		EstimatedOutput: output,
		MinOutput:       MinOutput(output, params.SlippagePct),
		PriceImpactPct:  impact,
		Fee:             strings.Join(fees, " + "),
		Route:           []string{params.FromToken, asset, asset, params.ToToken},
		EstimatedTime:   r.bridge.SettleSeconds(),
		CrossChain:      true,
	}, nil
}

// path builds the two-token venue path for a leg.
func (r *Router) path(chainID, from, to string) ([]registry.TokenDescriptor, error) {
	fromDesc, err := r.descriptor(chainID, from)
	if err != nil {
		return nil, err
	}
	toDesc, err := r.descriptor(chainID, to)
	if err != nil {
		return nil, err
	}
	return []registry.TokenDescriptor{fromDesc, toDesc}, nil
}

// Execute runs a swap to completion, persisting every state transition. A
// cross-chain swap whose source leg committed on chain never rolls back: a
// later failure leaves the record partial and returns ErrPartialCompletion.
func (r *Router) Execute(ctx context.Context, params Params) (*storage.SwapExecution, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient required", ErrInvalidParams)
	}
	if err := r.chains.ValidateAddress(params.ToChain, params.Recipient); err != nil {
		return nil, err
	}
	if params.CrossChain() {
		if params.Sender == "" {
			return nil, fmt.Errorf("%w: sender required for cross-chain swaps", ErrInvalidParams)
		}
		if err := r.chains.ValidateAddress(params.FromChain, params.Sender); err != nil {
			return nil, err
		}
	}

	quote, err := r.GetQuote(ctx, params)
	if err != nil {
		return nil, err
	}

	record := &storage.SwapExecution{
		ID:        uuid.New().String(),
		FromChain: params.FromChain,
		ToChain:   params.ToChain,
		FromToken: params.FromToken,
		ToToken:   params.ToToken,
		AmountIn:  params.Amount.String(),
		QuotedOut: quote.EstimatedOutput.String(),
		MinOut:    quote.MinOutput.String(),
		State:     storage.ExecStatePending,
	}
	if err := r.store.SaveExecution(record); err != nil {
		return nil, err
	}

	if params.CrossChain() {
		return r.executeCrossChain(ctx, params, quote, record)
	}
	return r.executeSameChain(ctx, params, quote, record)
}

func (r *Router) executeSameChain(ctx context.Context, params Params, quote *Quote, record *storage.SwapExecution) (*storage.SwapExecution, error) {
	venue, err := r.venueFor(params.FromChain)
	if err != nil {
		return record, r.fail(record, "source", err)
	}
	path, err := r.path(params.FromChain, params.FromToken, params.ToToken)
	if err != nil {
		return record, r.fail(record, "source", err)
	}

	conf, err := r.submit(ctx, venue, params.Amount, quote.MinOutput, path, params.Recipient)
	if err != nil {
		return record, r.fail(record, "source", err)
	}

	record.SourceTxHash = conf.Hash
	record.RealizedOut = quote.EstimatedOutput.String()
	if realized, ok := r.realizedOutput(ctx, params.FromChain, conf.Hash, path[len(path)-1]); ok {
		record.RealizedOut = realized.String()
	}
	record.State = storage.ExecStateCompleted
	if err := r.store.SaveExecution(record); err != nil {
		return record, err
	}

	r.log.Info("swap completed",
		"id", record.ID,
		"chain", params.FromChain,
		"tx", conf.Hash,
		"out", record.RealizedOut,
	)
	return record, nil
}

func (r *Router) executeCrossChain(ctx context.Context, params Params, quote *Quote, record *storage.SwapExecution) (*storage.SwapExecution, error) {
	asset := r.bridge.Asset()

	// Source leg: swap the input into the bridge asset held by the sender.
	sourceOut := params.Amount
	if !strings.EqualFold(params.FromToken, asset) {
		venue, err := r.venueFor(params.FromChain)
		if err != nil {
			return record, r.fail(record, "source", err)
		}
		path, err := r.path(params.FromChain, params.FromToken, asset)
		if err != nil {
			return record, r.fail(record, "source", err)
		}
		leg, err := venue.Quote(ctx, params.Amount, path)
		if err != nil {
			return record, r.fail(record, "source", err)
		}

		conf, err := r.submit(ctx, venue, params.Amount, MinOutput(leg.Output, params.SlippagePct), path, params.Sender)
		if err != nil {
			return record, r.fail(record, "source", err)
		}

		record.SourceTxHash = conf.Hash
		sourceOut = leg.Output
		if realized, ok := r.realizedOutput(ctx, params.FromChain, conf.Hash, path[len(path)-1]); ok {
			sourceOut = realized
		} else {
			r.log.Warn("using quoted source output, receipt decode unavailable",
				"id", record.ID, "tx", conf.Hash)
		}
	}

	record.State = storage.ExecStateSourceCommitted
	if err := r.store.SaveExecution(record); err != nil {
		return record, err
	}

	// Funds are committed on the source chain. Later stages must run even if
	// the caller goes away, so detach from the request's cancellation.
	ctx = context.WithoutCancel(ctx)

	receipt, err := r.bridge.Transfer(ctx, params.FromChain, params.ToChain, sourceOut, params.Recipient)
	if err != nil {
		return record, r.partial(record, "bridge", err)
	}
	record.BridgeTxHash = receipt.TxHash

	// Destination leg: swap the bridged asset into the output token.
	if strings.EqualFold(params.ToToken, asset) {
		record.RealizedOut = receipt.AmountOut.String()
	} else {
		venue, err := r.venueFor(params.ToChain)
		if err != nil {
			return record, r.partial(record, "destination", err)
		}
		path, err := r.path(params.ToChain, asset, params.ToToken)
		if err != nil {
			return record, r.partial(record, "destination", err)
		}
		leg, err := venue.Quote(ctx, receipt.AmountOut, path)
		if err != nil {
			return record, r.partial(record, "destination", err)
		}

		conf, err := r.submit(ctx, venue, receipt.AmountOut, MinOutput(leg.Output, params.SlippagePct), path, params.Recipient)
		if err != nil {
			return record, r.partial(record, "destination", err)
		}

		record.DestTxHash = conf.Hash
		record.RealizedOut = leg.Output.String()
		if realized, ok := r.realizedOutput(ctx, params.ToChain, conf.Hash, path[len(path)-1]); ok {
			record.RealizedOut = realized.String()
		}
	}

	record.State = storage.ExecStateCompleted
	if err := r.store.SaveExecution(record); err != nil {
		return record, err
	}

	r.log.Info("cross-chain swap completed",
		"id", record.ID,
		"from", params.FromChain,
		"to", params.ToChain,
		"out", record.RealizedOut,
	)
	return record, nil
}

// submit builds, signs and broadcasts one swap leg, blocking to confirmation.
func (r *Router) submit(ctx context.Context, venue Venue, amountIn, minOut decimal.Decimal, path []registry.TokenDescriptor, recipient string) (*driver.Confirmation, error) {
	req, err := venue.BuildSwap(ctx, amountIn, minOut, path, recipient, time.Now().Add(swapDeadline))
	if err != nil {
		return nil, err
	}
	signed, err := r.signer.Sign(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.chains.SendTransaction(ctx, req.ChainID, signed)
}

// realizedOutput decodes the actual output amount from the mined receipt's
// Transfer logs. Returns false when the chain does not expose receipts or no
// matching log is found.
func (r *Router) realizedOutput(ctx context.Context, chainID, txHash string, token registry.TokenDescriptor) (decimal.Decimal, bool) {
	if token.IsNative() || token.Address == "" {
		return decimal.Zero, false
	}

	d, err := r.chains.Driver(chainID)
	if err != nil {
		return decimal.Zero, false
	}
	rf, ok := d.(receiptFetcher)
	if !ok {
		return decimal.Zero, false
	}
	receipt, err := rf.TransactionReceipt(ctx, txHash)
	if err != nil || receipt == nil {
		return decimal.Zero, false
	}

	// The last Transfer of the output token is the amount delivered.
	var value *big.Int
	for _, entry := range receipt.Logs {
		if !strings.EqualFold(entry.Address, token.Address) {
			continue
		}
		if len(entry.Topics) == 0 || entry.Topics[0] != transferTopic {
			continue
		}
		v := helpers.HexToBigInt(entry.Data)
		if v.Sign() <= 0 {
			continue
		}
		value = v
	}
	if value == nil {
		return decimal.Zero, false
	}
	return helpers.DecimalFromRaw(value, token.Decimals), true
}

// fail marks a record failed before any funds moved.
func (r *Router) fail(record *storage.SwapExecution, stage string, cause error) error {
	record.State = storage.ExecStateFailed
	record.Stage = stage
	record.Error = cause.Error()
	if err := r.store.SaveExecution(record); err != nil {
		r.log.Error("failed to persist failed execution", "id", record.ID, "error", err)
	}
	return cause
}

// partial marks a record partially completed: source funds are committed but
// a later stage failed.
func (r *Router) partial(record *storage.SwapExecution, stage string, cause error) error {
	record.State = storage.ExecStatePartial
	record.Stage = stage
	record.Error = cause.Error()
	if err := r.store.SaveExecution(record); err != nil {
		r.log.Error("failed to persist partial execution", "id", record.ID, "error", err)
	}
	r.log.Warn("swap partially completed",
		"id", record.ID,
		"stage", stage,
		"error", cause,
	)
	return fmt.Errorf("%w at %s stage: %v", ErrPartialCompletion, stage, cause)
}

// GetExecution loads one persisted execution by id.
func (r *Router) GetExecution(id string) (*storage.SwapExecution, error) {
	return r.store.GetExecution(id)
}

// ListPartial returns executions needing manual recovery, newest first.
func (r *Router) ListPartial() ([]*storage.SwapExecution, error) {
	return r.store.ListExecutionsByState(storage.ExecStatePartial)
}
