package driver

import "errors"

// Error taxonomy shared by all chain drivers and the layers above them.
// Callers branch with errors.Is; drivers wrap transport detail with
// fmt.Errorf("%w: ...", ErrX, ...).
var (
	// ErrNoProvider indicates no driver is available for the chain.
	ErrNoProvider = errors.New("no provider available for chain")

	// ErrInvalidAddress indicates a malformed account or token address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrTokenNotFound indicates the token contract or mint could not be read.
	ErrTokenNotFound = errors.New("token not found")

	// ErrRPC indicates a node RPC transport or protocol failure.
	ErrRPC = errors.New("rpc request failed")

	// ErrTransactionRejected indicates the chain rejected a submitted transaction.
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrTimeout indicates a confirmation wait exceeded its bound.
	ErrTimeout = errors.New("confirmation timed out")
)
