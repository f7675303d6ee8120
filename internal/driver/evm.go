package driver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/helpers"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	evmReceiptPollInterval = 2 * time.Second
	evmReceiptMaxAttempts  = 90
	historyPageSize        = 50
)

// EVMDriver serves Ethereum-compatible chains. Custom-family chains that
// expose an EVM RPC surface use this driver as well.
type EVMDriver struct {
	chain      registry.ChainDescriptor
	client     *Client
	httpClient *http.Client
	log        *logging.Logger
}

// NewEVMDriver creates a driver for an EVM chain.
func NewEVMDriver(chain registry.ChainDescriptor, log *logging.Logger) *EVMDriver {
	return &EVMDriver{
		chain:  chain,
		client: NewClient(chain.RPCURL),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.Component("evm:" + chain.ID),
	}
}

// Family returns the chain family.
func (d *EVMDriver) Family() registry.Family {
	return d.chain.Family
}

// ValidateAddress checks hex shape and, for mixed-case input, the EIP-55
// checksum.
func (d *EVMDriver) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	stripped := strings.TrimPrefix(address, "0x")
	if stripped == strings.ToLower(stripped) || stripped == strings.ToUpper(stripped) {
		return nil
	}
	if ChecksumAddress(address) != "0x"+stripped {
		return fmt.Errorf("%w: bad checksum: %s", ErrInvalidAddress, address)
	}
	return nil
}

// GetBalance reads a native or ERC-20 balance.
func (d *EVMDriver) GetBalance(ctx context.Context, address string, token *registry.TokenDescriptor) (*Balance, error) {
	if err := d.ValidateAddress(address); err != nil {
		return nil, err
	}

	if token == nil || token.IsNative() {
		hexBal, err := d.client.CallString(ctx, "eth_getBalance", address, "latest")
		if err != nil {
			return nil, err
		}
		raw := helpers.HexToBigInt(hexBal)
		return &Balance{
			ChainID:     d.chain.ID,
			Address:     address,
			TokenSymbol: d.chain.NativeSymbol,
			Raw:         raw,
			Human:       helpers.DecimalFromRaw(raw, d.chain.NativeDecimals),
		}, nil
	}

	data := EncodeCall(selBalanceOf, AddressWord(address))
	result, err := d.CallContract(ctx, token.Address, data)
	if err != nil {
		return nil, err
	}
	raw := new(big.Int).SetBytes(result)
	return &Balance{
		ChainID:     d.chain.ID,
		Address:     address,
		TokenSymbol: token.Symbol,
		Raw:         raw,
		Human:       helpers.DecimalFromRaw(raw, token.Decimals),
	}, nil
}

// GetTokenInfo reads ERC-20 metadata from the token contract.
func (d *EVMDriver) GetTokenInfo(ctx context.Context, tokenAddress string) (*TokenInfo, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, tokenAddress)
	}

	decimalsRaw, err := d.CallContract(ctx, tokenAddress, selDecimals)
	if err != nil || len(decimalsRaw) == 0 {
		return nil, fmt.Errorf("%w: %s is not a readable token contract", ErrTokenNotFound, tokenAddress)
	}
	decimals := uint8(new(big.Int).SetBytes(decimalsRaw).Uint64())

	info := &TokenInfo{
		Address:  ChecksumAddress(tokenAddress),
		Decimals: decimals,
	}

	if nameRaw, err := d.CallContract(ctx, tokenAddress, selName); err == nil {
		info.Name = DecodeABIString(nameRaw)
	}
	if symRaw, err := d.CallContract(ctx, tokenAddress, selSymbol); err == nil {
		info.Symbol = DecodeABIString(symRaw)
	}
	if supplyRaw, err := d.CallContract(ctx, tokenAddress, selTotalSupply); err == nil {
		info.TotalSupply = new(big.Int).SetBytes(supplyRaw)
	}

	return info, nil
}

// GetTransactionHistory queries the chain's indexer for recent transactions.
func (d *EVMDriver) GetTransactionHistory(ctx context.Context, address string) ([]TxRecord, error) {
	if err := d.ValidateAddress(address); err != nil {
		return nil, err
	}
	if d.chain.IndexerURL == "" {
		return nil, fmt.Errorf("%w: no indexer configured for %s", ErrRPC, d.chain.ID)
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(historyPageSize))
	q.Set("sort", "desc")

	req, err := http.NewRequestWithContext(ctx, "GET", d.chain.IndexerURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: indexer: %v", ErrRPC, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: indexer: %v", ErrRPC, err)
	}

	var listing struct {
		Status string `json:"status"`
		Result []struct {
			Hash          string `json:"hash"`
			From          string `json:"from"`
			To            string `json:"to"`
			Value         string `json:"value"`
			TimeStamp     string `json:"timeStamp"`
			IsError       string `json:"isError"`
			ReceiptStatus string `json:"txreceipt_status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("%w: indexer: %v", ErrRPC, err)
	}

	records := make([]TxRecord, 0, len(listing.Result))
	for _, tx := range listing.Result {
		amount, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			amount = big.NewInt(0)
		}
		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)

		status := StatusConfirmed
		if tx.IsError == "1" || tx.ReceiptStatus == "0" {
			status = StatusFailed
		}

		records = append(records, TxRecord{
			Hash:      tx.Hash,
			From:      tx.From,
			To:        tx.To,
			Amount:    amount,
			Display:   helpers.FormatUnits(amount, d.chain.NativeDecimals),
			Timestamp: ts,
			Status:    status,
		})
	}
	return records, nil
}

// SendTransaction broadcasts a signed raw transaction and waits for its
// receipt.
func (d *EVMDriver) SendTransaction(ctx context.Context, signedPayload string) (*Confirmation, error) {
	if !strings.HasPrefix(signedPayload, "0x") {
		signedPayload = "0x" + signedPayload
	}

	hash, err := d.client.CallString(ctx, "eth_sendRawTransaction", signedPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
	d.log.Info("transaction broadcast", "hash", hash)

	return d.waitForReceipt(ctx, hash)
}

func (d *EVMDriver) waitForReceipt(ctx context.Context, hash string) (*Confirmation, error) {
	ticker := time.NewTicker(evmReceiptPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < evmReceiptMaxAttempts; attempt++ {
		receipt, err := d.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == 0 {
				return nil, fmt.Errorf("%w: %s reverted", ErrTransactionRejected, hash)
			}
			d.log.Info("transaction confirmed", "hash", hash, "block", receipt.BlockNumber)
			return &Confirmation{
				Hash:        hash,
				Status:      StatusConfirmed,
				BlockNumber: receipt.BlockNumber,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTimeout, hash)
}

// EVMLog is one receipt log entry.
type EVMLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// EVMReceipt is a mined transaction receipt.
type EVMReceipt struct {
	Status      int64
	BlockNumber int64
	Logs        []EVMLog
}

// TransactionReceipt fetches the receipt of a mined transaction. Returns
// (nil, nil) while the transaction is still pending.
func (d *EVMDriver) TransactionReceipt(ctx context.Context, hash string) (*EVMReceipt, error) {
	result, err := d.client.Call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, nil
	}

	var receipt struct {
		Status      string   `json:"status"`
		BlockNumber string   `json:"blockNumber"`
		Logs        []EVMLog `json:"logs"`
	}
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("%w: bad receipt: %v", ErrRPC, err)
	}

	return &EVMReceipt{
		Status:      helpers.HexToInt64(receipt.Status),
		BlockNumber: helpers.HexToInt64(receipt.BlockNumber),
		Logs:        receipt.Logs,
	}, nil
}

// CallContract executes a read-only contract call and returns the raw
// return bytes. data is hex with 0x prefix.
func (d *EVMDriver) CallContract(ctx context.Context, to string, data string) ([]byte, error) {
	callObj := map[string]interface{}{
		"to":   to,
		"data": data,
	}
	hexResult, err := d.client.CallString(ctx, "eth_call", callObj, "latest")
	if err != nil {
		return nil, err
	}
	return helpers.HexToBytes(hexResult)
}

// Ping checks node reachability.
func (d *EVMDriver) Ping(ctx context.Context) error {
	_, err := d.client.CallString(ctx, "eth_blockNumber")
	return err
}

// Close releases driver resources.
func (d *EVMDriver) Close() error {
	return nil
}

// Keccak256 computes the Keccak-256 hash used by EVM chains.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// ChecksumAddress applies the EIP-55 checksum casing to an address.
func ChecksumAddress(addr string) string {
	addr = strings.ToLower(strings.TrimPrefix(addr, "0x"))
	hash := hex.EncodeToString(Keccak256([]byte(addr)))

	result := "0x"
	for i, c := range addr {
		if c >= '0' && c <= '9' {
			result += string(c)
		} else {
			if hash[i] >= '8' {
				result += strings.ToUpper(string(c))
			} else {
				result += string(c)
			}
		}
	}
	return result
}

var _ Driver = (*EVMDriver)(nil)
