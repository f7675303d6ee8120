// Package driver implements the per-chain node access layer. Each driver
// speaks one chain family's RPC dialect and exposes the family-independent
// operations the abstraction layer routes to.
package driver

import (
	"context"
	"math/big"

	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/shopspring/decimal"
)

// Balance is an account's holding of one asset on one chain.
type Balance struct {
	ChainID     string          `json:"chain_id"`
	Address     string          `json:"address"`
	TokenSymbol string          `json:"token_symbol"`
	Raw         *big.Int        `json:"raw"`
	Human       decimal.Decimal `json:"human"`
}

// TokenInfo describes a token contract or mint as read from the chain.
type TokenInfo struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply,omitempty"`
}

// TxRecord is one entry of an account's transaction history, newest first.
// Display carries Amount formatted in the chain's native human units.
type TxRecord struct {
	Hash      string   `json:"hash"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    *big.Int `json:"amount"`
	Display   string   `json:"display"`
	Timestamp int64    `json:"timestamp"`
	Status    string   `json:"status"`
}

// Transaction status values reported in TxRecord and Confirmation.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)

// Confirmation is the terminal outcome of a submitted transaction.
type Confirmation struct {
	Hash        string `json:"hash"`
	Status      string `json:"status"`
	BlockNumber int64  `json:"block_number,omitempty"`
}

// Driver is the family-independent contract every chain driver implements.
// All blocking operations honor context cancellation.
type Driver interface {
	// Family returns the chain family the driver serves.
	Family() registry.Family

	// ValidateAddress checks address shape for the driver's family.
	// Returns ErrInvalidAddress (wrapped) on failure.
	ValidateAddress(address string) error

	// GetBalance reads the balance of one asset. A nil token means the
	// chain's native asset.
	GetBalance(ctx context.Context, address string, token *registry.TokenDescriptor) (*Balance, error)

	// GetTokenInfo reads token metadata from the chain.
	GetTokenInfo(ctx context.Context, tokenAddress string) (*TokenInfo, error)

	// GetTransactionHistory returns recent transactions for an address,
	// newest first.
	GetTransactionHistory(ctx context.Context, address string) ([]TxRecord, error)

	// SendTransaction broadcasts a signed payload and blocks until the
	// chain confirms or rejects it, or the wait times out.
	SendTransaction(ctx context.Context, signedPayload string) (*Confirmation, error)

	// Ping checks node reachability with a cheap RPC.
	Ping(ctx context.Context) error

	// Close releases driver resources.
	Close() error
}
