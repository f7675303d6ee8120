package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bottlechain/chaincore/internal/swap"
)

// ChainParams selects a chain and optionally an address and token.
type ChainParams struct {
	Chain   string `json:"chain"`
	Address string `json:"address,omitempty"`
	Token   string `json:"token,omitempty"`
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: params required", swap.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", swap.ErrInvalidParams, err)
	}
	return nil
}

// chainListChains returns the configured chain descriptors.
func (s *Server) chainListChains(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.chains.Registry().Chains(), nil
}

// chainListTokens returns the token table for one chain.
func (s *Server) chainListTokens(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.chains.Registry().TokensForChain(p.Chain), nil
}

// chainStatus returns the latest reachability snapshot.
func (s *Server) chainStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.chains.Status(), nil
}

// chainGetBalance reads one asset balance. An empty token means native.
func (s *Server) chainGetBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Chain == "" || p.Address == "" {
		return nil, fmt.Errorf("%w: chain and address required", swap.ErrInvalidParams)
	}
	return s.chains.GetBalance(ctx, p.Chain, p.Address, p.Token)
}

// chainGetTokenInfo reads token metadata from the chain.
func (s *Server) chainGetTokenInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Chain == "" || p.Address == "" {
		return nil, fmt.Errorf("%w: chain and address required", swap.ErrInvalidParams)
	}
	return s.chains.GetTokenInfo(ctx, p.Chain, p.Address)
}

// chainGetHistory returns recent transactions for an address.
func (s *Server) chainGetHistory(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Chain == "" || p.Address == "" {
		return nil, fmt.Errorf("%w: chain and address required", swap.ErrInvalidParams)
	}
	return s.chains.GetTransactionHistory(ctx, p.Chain, p.Address)
}

// chainValidateAddress checks address shape for a chain's family.
func (s *Server) chainValidateAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ChainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := s.chains.ValidateAddress(p.Chain, p.Address); err != nil {
		return map[string]interface{}{"valid": false, "reason": err.Error()}, nil
	}
	return map[string]interface{}{"valid": true}, nil
}

// PriceParams selects one tracked symbol.
type PriceParams struct {
	Symbol string `json:"symbol"`
}

// pricesGet returns the latest quote for one symbol.
func (s *Server) pricesGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PriceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	q, ok := s.feed.GetPrice(p.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %q", swap.ErrInvalidParams, p.Symbol)
	}
	return q, nil
}

// pricesGetAll returns the latest quote for every tracked symbol.
func (s *Server) pricesGetAll(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.feed.GetAllPrices(), nil
}

// pricesTrackedSymbols returns the tracked symbol list.
func (s *Server) pricesTrackedSymbols(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.feed.TrackedSymbols(), nil
}

// swapQuote produces a non-binding swap estimate.
func (s *Server) swapQuote(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p swap.Params
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.router.GetQuote(ctx, p)
}

// swapExecute runs a swap to completion. Partial completions return the
// persisted record alongside the error so callers can recover.
func (s *Server) swapExecute(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p swap.Params
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	record, err := s.router.Execute(ctx, p)
	if err != nil {
		if record != nil {
			return map[string]interface{}{
				"execution": record,
				"error":     err.Error(),
			}, nil
		}
		return nil, err
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(EventSwapCompleted, record)
	}
	return record, nil
}

// ExecutionParams selects one persisted execution.
type ExecutionParams struct {
	ID string `json:"id"`
}

// swapGetExecution loads one persisted execution by id.
func (s *Server) swapGetExecution(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ExecutionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.router.GetExecution(p.ID)
}

// swapListPartial returns executions needing manual recovery.
func (s *Server) swapListPartial(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.router.ListPartial()
}
