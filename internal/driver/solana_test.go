package driver

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"filippo.io/edwards25519"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/btcsuite/btcd/btcutil/base58"
)

func solTestChain(rpcURL string) registry.ChainDescriptor {
	return registry.ChainDescriptor{
		ID:             "solana",
		Name:           "Solana",
		Family:         registry.FamilySolana,
		RPCURL:         rpcURL,
		NativeSymbol:   "SOL",
		NativeDecimals: 9,
	}
}

// onCurveAddress returns a base58 address guaranteed to be a curve point.
func onCurveAddress() string {
	return base58.Encode(edwards25519.NewGeneratorPoint().Bytes())
}

func TestValidateSolanaAddress(t *testing.T) {
	d := NewSolanaDriver(solTestChain("http://localhost:0"), logging.Default())

	if err := d.ValidateAddress(onCurveAddress()); err != nil {
		t.Errorf("ValidateAddress(on-curve) = %v, want nil", err)
	}

	invalid := []string{
		"",
		"abc",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"O0Il-not-base58",
	}
	for _, addr := range invalid {
		if err := d.ValidateAddress(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ValidateAddress(%q) = %v, want ErrInvalidAddress", addr, err)
		}
	}
}

func TestSolanaGetBalanceNative(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		if method != "getBalance" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return map[string]interface{}{"value": 2500000000}, nil
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	bal, err := d.GetBalance(context.Background(), onCurveAddress(), nil)
	if err != nil {
		t.Fatalf("GetBalance() error: %v", err)
	}

	if bal.Raw.String() != "2500000000" {
		t.Errorf("raw balance = %s, want 2500000000", bal.Raw)
	}
	if bal.Human.String() != "2.5" {
		t.Errorf("human balance = %s, want 2.5", bal.Human)
	}
	if bal.TokenSymbol != "SOL" {
		t.Errorf("symbol = %s, want SOL", bal.TokenSymbol)
	}
}

func TestSolanaGetBalanceToken(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		if method != "getTokenAccountsByOwner" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		account := func(amount string) map[string]interface{} {
			return map[string]interface{}{
				"account": map[string]interface{}{
					"data": map[string]interface{}{
						"parsed": map[string]interface{}{
							"info": map[string]interface{}{
								"tokenAmount": map[string]interface{}{"amount": amount},
							},
						},
					},
				},
			}
		}
		return map[string]interface{}{
			"value": []interface{}{account("1000000"), account("500000")},
		}, nil
	})
	defer srv.Close()

	token := &registry.TokenDescriptor{
		Symbol:   "USDC",
		ChainID:  "solana",
		Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals: 6,
	}

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	bal, err := d.GetBalance(context.Background(), onCurveAddress(), token)
	if err != nil {
		t.Fatalf("GetBalance() error: %v", err)
	}

	// Balances across token accounts are summed.
	if bal.Raw.String() != "1500000" {
		t.Errorf("raw balance = %s, want 1500000", bal.Raw)
	}
	if bal.Human.String() != "1.5" {
		t.Errorf("human balance = %s, want 1.5", bal.Human)
	}
}

func mintAccountData(supply uint64, decimals uint8) string {
	data := make([]byte, mintAccountMinLen)
	binary.LittleEndian.PutUint64(data[mintSupplyOffset:], supply)
	data[mintDecimalsOffset] = decimals
	return base64.StdEncoding.EncodeToString(data)
}

func TestSolanaGetTokenInfo(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		if method != "getAccountInfo" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"owner": tokenProgramID,
				"data":  []string{mintAccountData(5000000000, 6), "base64"},
			},
		}, nil
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	info, err := d.GetTokenInfo(context.Background(), "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	if err != nil {
		t.Fatalf("GetTokenInfo() error: %v", err)
	}

	if info.Decimals != 6 {
		t.Errorf("decimals = %d, want 6", info.Decimals)
	}
	if info.TotalSupply.String() != "5000000000" {
		t.Errorf("supply = %s, want 5000000000", info.TotalSupply)
	}
}

func TestSolanaGetTokenInfoNotAMint(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		return map[string]interface{}{
			"value": map[string]interface{}{
				"owner": "11111111111111111111111111111111",
				"data":  []string{"", "base64"},
			},
		}, nil
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	_, err := d.GetTokenInfo(context.Background(), "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("GetTokenInfo() = %v, want ErrTokenNotFound", err)
	}
}

func TestSolanaGetTransactionHistory(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		if method != "getSignaturesForAddress" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return []interface{}{
			map[string]interface{}{"signature": "sig2", "blockTime": 1700000100, "err": nil},
			map[string]interface{}{"signature": "sig1", "blockTime": 1700000000, "err": map[string]interface{}{"InstructionError": []interface{}{}}},
		}, nil
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	records, err := d.GetTransactionHistory(context.Background(), onCurveAddress())
	if err != nil {
		t.Fatalf("GetTransactionHistory() error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Hash != "sig2" || records[0].Status != StatusConfirmed {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Status != StatusFailed {
		t.Errorf("records[1].Status = %s, want failed", records[1].Status)
	}
}

func TestSolanaSendTransaction(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		switch method {
		case "sendTransaction":
			return "5sig", nil
		case "getSignatureStatuses":
			return map[string]interface{}{
				"value": []interface{}{
					map[string]interface{}{"slot": 1234, "confirmationStatus": "confirmed", "err": nil},
				},
			}, nil
		}
		return nil, fmt.Errorf("unexpected method %s", method)
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	conf, err := d.SendTransaction(context.Background(), base64.StdEncoding.EncodeToString([]byte("tx")))
	if err != nil {
		t.Fatalf("SendTransaction() error: %v", err)
	}

	if conf.Hash != "5sig" || conf.Status != StatusConfirmed || conf.BlockNumber != 1234 {
		t.Errorf("confirmation = %+v", conf)
	}
}

func TestSolanaSendTransactionFailed(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		switch method {
		case "sendTransaction":
			return "5sig", nil
		case "getSignatureStatuses":
			return map[string]interface{}{
				"value": []interface{}{
					map[string]interface{}{"slot": 1234, "err": map[string]interface{}{"InstructionError": []interface{}{}}},
				},
			}, nil
		}
		return nil, fmt.Errorf("unexpected method %s", method)
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	_, err := d.SendTransaction(context.Background(), "dHg=")
	if !errors.Is(err, ErrTransactionRejected) {
		t.Errorf("SendTransaction() = %v, want ErrTransactionRejected", err)
	}
}

func TestSolanaTokenAccountBalance(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		if method != "getTokenAccountBalance" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{"amount": "987654321"},
		}, nil
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	amount, err := d.TokenAccountBalance(context.Background(), onCurveAddress())
	if err != nil {
		t.Fatalf("TokenAccountBalance() error: %v", err)
	}
	if amount.String() != "987654321" {
		t.Errorf("amount = %s, want 987654321", amount)
	}
}

func TestSolanaPing(t *testing.T) {
	srv := mockRPC(t, func(method string, params []json.RawMessage) (interface{}, error) {
		if method != "getHealth" {
			return nil, fmt.Errorf("unexpected method %s", method)
		}
		return "ok", nil
	})
	defer srv.Close()

	d := NewSolanaDriver(solTestChain(srv.URL), logging.Default())
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}
