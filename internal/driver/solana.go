package driver

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"filippo.io/edwards25519"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/helpers"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// tokenProgramID is the SPL token program that owns all mint accounts.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// SPL mint account layout constants.
const (
	mintAccountMinLen   = 82
	mintSupplyOffset    = 36
	mintDecimalsOffset  = 44
)

const (
	solStatusPollInterval = 2 * time.Second
	solStatusMaxAttempts  = 45
)

// SolanaDriver serves the Solana chain over its JSON-RPC API.
type SolanaDriver struct {
	chain  registry.ChainDescriptor
	client *Client
	log    *logging.Logger
}

// NewSolanaDriver creates a driver for a Solana chain.
func NewSolanaDriver(chain registry.ChainDescriptor, log *logging.Logger) *SolanaDriver {
	return &SolanaDriver{
		chain:  chain,
		client: NewClient(chain.RPCURL),
		log:    log.Component("solana:" + chain.ID),
	}
}

// Family returns the chain family.
func (d *SolanaDriver) Family() registry.Family {
	return registry.FamilySolana
}

// ValidateAddress checks that the address is base58 for a 32-byte ed25519
// point on the curve.
func (d *SolanaDriver) ValidateAddress(address string) error {
	decoded := base58.Decode(address)
	if len(decoded) != 32 {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	if _, err := new(edwards25519.Point).SetBytes(decoded); err != nil {
		return fmt.Errorf("%w: not on curve: %s", ErrInvalidAddress, address)
	}
	return nil
}

// GetBalance reads a native SOL or SPL token balance.
func (d *SolanaDriver) GetBalance(ctx context.Context, address string, token *registry.TokenDescriptor) (*Balance, error) {
	if err := d.ValidateAddress(address); err != nil {
		return nil, err
	}

	if token == nil || token.IsNative() {
		result, err := d.client.Call(ctx, "getBalance", address)
		if err != nil {
			return nil, err
		}
		var resp struct {
			Value uint64 `json:"value"`
		}
		if err := json.Unmarshal(result, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPC, err)
		}
		raw := new(big.Int).SetUint64(resp.Value)
		return &Balance{
			ChainID:     d.chain.ID,
			Address:     address,
			TokenSymbol: d.chain.NativeSymbol,
			Raw:         raw,
			Human:       helpers.DecimalFromRaw(raw, d.chain.NativeDecimals),
		}, nil
	}

	result, err := d.client.Call(ctx, "getTokenAccountsByOwner",
		address,
		map[string]interface{}{"mint": token.Address},
		map[string]interface{}{"encoding": "jsonParsed"},
	)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}

	// An owner can hold the mint across several token accounts.
	raw := big.NewInt(0)
	for _, acct := range resp.Value {
		amount, ok := new(big.Int).SetString(acct.Account.Data.Parsed.Info.TokenAmount.Amount, 10)
		if ok {
			raw.Add(raw, amount)
		}
	}

	return &Balance{
		ChainID:     d.chain.ID,
		Address:     address,
		TokenSymbol: token.Symbol,
		Raw:         raw,
		Human:       helpers.DecimalFromRaw(raw, token.Decimals),
	}, nil
}

// GetTokenInfo reads SPL mint metadata. Name and symbol are not stored in the
// mint account; callers fill them from the token registry when known.
func (d *SolanaDriver) GetTokenInfo(ctx context.Context, tokenAddress string) (*TokenInfo, error) {
	decoded := base58.Decode(tokenAddress)
	if len(decoded) != 32 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, tokenAddress)
	}

	result, err := d.client.Call(ctx, "getAccountInfo",
		tokenAddress,
		map[string]interface{}{"encoding": "base64"},
	)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value *struct {
			Owner string   `json:"owner"`
			Data  []string `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("%w: no account at %s", ErrTokenNotFound, tokenAddress)
	}
	if resp.Value.Owner != tokenProgramID {
		return nil, fmt.Errorf("%w: %s is not a token mint", ErrTokenNotFound, tokenAddress)
	}
	if len(resp.Value.Data) == 0 {
		return nil, fmt.Errorf("%w: empty mint account %s", ErrTokenNotFound, tokenAddress)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Value.Data[0])
	if err != nil || len(data) < mintAccountMinLen {
		return nil, fmt.Errorf("%w: malformed mint account %s", ErrTokenNotFound, tokenAddress)
	}

	supply := binary.LittleEndian.Uint64(data[mintSupplyOffset : mintSupplyOffset+8])
	decimals := data[mintDecimalsOffset]

	return &TokenInfo{
		Address:     tokenAddress,
		Decimals:    decimals,
		TotalSupply: new(big.Int).SetUint64(supply),
	}, nil
}

// GetTransactionHistory returns recent signatures for an address, newest
// first. Solana does not expose per-transaction amounts without fetching each
// transaction, so Amount is zero.
func (d *SolanaDriver) GetTransactionHistory(ctx context.Context, address string) ([]TxRecord, error) {
	if err := d.ValidateAddress(address); err != nil {
		return nil, err
	}

	result, err := d.client.Call(ctx, "getSignaturesForAddress",
		address,
		map[string]interface{}{"limit": historyPageSize},
	)
	if err != nil {
		return nil, err
	}

	var sigs []struct {
		Signature string          `json:"signature"`
		BlockTime int64           `json:"blockTime"`
		Err       json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(result, &sigs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}

	records := make([]TxRecord, 0, len(sigs))
	for _, sig := range sigs {
		status := StatusConfirmed
		if len(sig.Err) > 0 && string(sig.Err) != "null" {
			status = StatusFailed
		}
		records = append(records, TxRecord{
			Hash:      sig.Signature,
			From:      address,
			Amount:    big.NewInt(0),
			Display:   "0",
			Timestamp: sig.BlockTime,
			Status:    status,
		})
	}
	return records, nil
}

// SendTransaction broadcasts a signed base64 transaction and waits until the
// cluster confirms it.
func (d *SolanaDriver) SendTransaction(ctx context.Context, signedPayload string) (*Confirmation, error) {
	sig, err := d.client.CallString(ctx, "sendTransaction",
		signedPayload,
		map[string]interface{}{"encoding": "base64"},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
	d.log.Info("transaction broadcast", "signature", sig)

	return d.waitForConfirmation(ctx, sig)
}

func (d *SolanaDriver) waitForConfirmation(ctx context.Context, sig string) (*Confirmation, error) {
	ticker := time.NewTicker(solStatusPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < solStatusMaxAttempts; attempt++ {
		result, err := d.client.Call(ctx, "getSignatureStatuses",
			[]string{sig},
			map[string]interface{}{"searchTransactionHistory": true},
		)
		if err == nil {
			var resp struct {
				Value []*struct {
					Slot               uint64          `json:"slot"`
					ConfirmationStatus string          `json:"confirmationStatus"`
					Err                json.RawMessage `json:"err"`
				} `json:"value"`
			}
			if jsonErr := json.Unmarshal(result, &resp); jsonErr == nil && len(resp.Value) > 0 && resp.Value[0] != nil {
				status := resp.Value[0]
				if len(status.Err) > 0 && string(status.Err) != "null" {
					return nil, fmt.Errorf("%w: %s: %s", ErrTransactionRejected, sig, status.Err)
				}
				if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
					d.log.Info("transaction confirmed", "signature", sig, "slot", status.Slot)
					return &Confirmation{
						Hash:        sig,
						Status:      StatusConfirmed,
						BlockNumber: int64(status.Slot),
					}, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTimeout, sig)
}

// TokenAccountBalance reads the raw amount held by one SPL token account.
// Used by the swap venue to inspect pool vaults.
func (d *SolanaDriver) TokenAccountBalance(ctx context.Context, account string) (*big.Int, error) {
	result, err := d.client.Call(ctx, "getTokenAccountBalance", account)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}

	amount, ok := new(big.Int).SetString(resp.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad token amount %q", ErrRPC, resp.Value.Amount)
	}
	return amount, nil
}

// Ping checks cluster reachability.
func (d *SolanaDriver) Ping(ctx context.Context) error {
	_, err := d.client.CallString(ctx, "getHealth")
	return err
}

// Close releases driver resources.
func (d *SolanaDriver) Close() error {
	return nil
}

var _ Driver = (*SolanaDriver)(nil)
