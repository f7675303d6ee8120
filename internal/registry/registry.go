// Package registry holds the chain and token descriptors the daemon serves.
// Descriptors are loaded from configuration; the registry itself is immutable
// after construction and safe for concurrent reads.
package registry

import (
	"fmt"
	"strings"
)

// Family identifies the driver family a chain belongs to.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
	FamilyCustom Family = "custom"
)

// NativeAddress is the sentinel token address for a chain's native asset.
const NativeAddress = "native"

// ChainDescriptor describes one supported chain.
type ChainDescriptor struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Family         Family `yaml:"family" json:"family"`
	RPCURL         string `yaml:"rpc_url" json:"rpc_url"`
	ChainID        int64  `yaml:"chain_id,omitempty" json:"chain_id,omitempty"`
	NativeSymbol   string `yaml:"native_symbol" json:"native_symbol"`
	NativeDecimals uint8  `yaml:"native_decimals" json:"native_decimals"`
	ExplorerURL    string `yaml:"explorer_url,omitempty" json:"explorer_url,omitempty"`
	IndexerURL     string `yaml:"indexer_url,omitempty" json:"indexer_url,omitempty"`
}

// TokenDescriptor describes one token on one chain.
type TokenDescriptor struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Name     string `yaml:"name" json:"name"`
	ChainID  string `yaml:"chain_id" json:"chain_id"`
	Address  string `yaml:"address" json:"address"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

// IsNative reports whether the token is the chain's native asset.
func (t *TokenDescriptor) IsNative() bool {
	return t.Address == NativeAddress || t.Address == ""
}

// Registry indexes chain and token descriptors.
type Registry struct {
	chains  map[string]ChainDescriptor
	tokens  map[string][]TokenDescriptor
	ordered []string
}

// New builds a registry from descriptor lists. Chain ids must be unique and
// every token must reference a known chain.
func New(chains []ChainDescriptor, tokens []TokenDescriptor) (*Registry, error) {
	r := &Registry{
		chains: make(map[string]ChainDescriptor, len(chains)),
		tokens: make(map[string][]TokenDescriptor),
	}

	for _, c := range chains {
		if c.ID == "" {
			return nil, fmt.Errorf("chain descriptor with empty id")
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id: %s", c.ID)
		}
		switch c.Family {
		case FamilyEVM, FamilySolana, FamilyCustom:
		default:
			return nil, fmt.Errorf("chain %s: unknown family %q", c.ID, c.Family)
		}
		r.chains[c.ID] = c
		r.ordered = append(r.ordered, c.ID)
	}

	for _, t := range tokens {
		if _, ok := r.chains[t.ChainID]; !ok {
			return nil, fmt.Errorf("token %s references unknown chain %s", t.Symbol, t.ChainID)
		}
		r.tokens[t.ChainID] = append(r.tokens[t.ChainID], t)
	}

	return r, nil
}

// Chain returns the descriptor for a chain id.
func (r *Registry) Chain(id string) (ChainDescriptor, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// Chains returns all chain descriptors in configuration order.
func (r *Registry) Chains() []ChainDescriptor {
	out := make([]ChainDescriptor, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.chains[id])
	}
	return out
}

// ChainIDs returns all chain ids in configuration order.
func (r *Registry) ChainIDs() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// TokensForChain returns the tokens configured for a chain.
func (r *Registry) TokensForChain(chainID string) []TokenDescriptor {
	src := r.tokens[chainID]
	out := make([]TokenDescriptor, len(src))
	copy(out, src)
	return out
}

// Token looks up a token by chain id and symbol (case-insensitive).
func (r *Registry) Token(chainID, symbol string) (TokenDescriptor, bool) {
	for _, t := range r.tokens[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return TokenDescriptor{}, false
}

// TokenByAddress looks up a token by chain id and contract address.
func (r *Registry) TokenByAddress(chainID, address string) (TokenDescriptor, bool) {
	for _, t := range r.tokens[chainID] {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return TokenDescriptor{}, false
}

// NativeToken returns a synthetic descriptor for a chain's native asset.
func (r *Registry) NativeToken(chainID string) (TokenDescriptor, bool) {
	c, ok := r.chains[chainID]
	if !ok {
		return TokenDescriptor{}, false
	}
	return TokenDescriptor{
		Symbol:   c.NativeSymbol,
		Name:     c.Name,
		ChainID:  c.ID,
		Address:  NativeAddress,
		Decimals: c.NativeDecimals,
	}, true
}

// SupportedSymbols returns the distinct token symbols across all chains,
// native assets included, in configuration order.
func (r *Registry) SupportedSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range r.ordered {
		c := r.chains[id]
		if !seen[c.NativeSymbol] {
			seen[c.NativeSymbol] = true
			out = append(out, c.NativeSymbol)
		}
		for _, t := range r.tokens[id] {
			if !seen[t.Symbol] {
				seen[t.Symbol] = true
				out = append(out, t.Symbol)
			}
		}
	}
	return out
}
