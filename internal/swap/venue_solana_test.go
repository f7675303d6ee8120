package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/logging"
)

var (
	rayToken  = registry.TokenDescriptor{Symbol: "RAY", ChainID: "solana", Address: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Decimals: 6}
	solUSDC   = registry.TokenDescriptor{Symbol: "USDC", ChainID: "solana", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}
	srmToken  = registry.TokenDescriptor{Symbol: "SRM", ChainID: "solana", Address: "SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt", Decimals: 6}
	testPools = []PoolParams{
		{Pair: "RAY/USDC", Address: "pool-ray-usdc", BaseVault: "vault-ray", QuoteVault: "vault-usdc"},
	}
)

// fakeVaults serves fixed vault balances.
type fakeVaults struct {
	balances map[string]*big.Int
	err      error
}

func (f *fakeVaults) TokenAccountBalance(ctx context.Context, account string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.balances[account]
	if !ok {
		return nil, errors.New("unknown account")
	}
	return b, nil
}

func testSolanaVenue(t *testing.T, vaults vaultReader) *SolanaVenue {
	t.Helper()
	venue, err := NewSolanaVenue("solana", VenueParams{
		Name:          "Raydium",
		Router:        "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
		Fee:           "0.3%",
		SettleSeconds: 20,
	}, testPools, vaults, logging.New(&logging.Config{Level: "error"}))
	if err != nil {
		t.Fatalf("NewSolanaVenue() error: %v", err)
	}
	return venue
}

func TestSolanaVenueQuote(t *testing.T) {
	// 1M RAY against 2M USDC, both in 6-decimal raw units.
	vaults := &fakeVaults{balances: map[string]*big.Int{
		"vault-ray":  big.NewInt(1_000_000_000_000),
		"vault-usdc": big.NewInt(2_000_000_000_000),
	}}
	venue := testSolanaVenue(t, vaults)

	leg, err := venue.Quote(context.Background(), dec("1000"), []registry.TokenDescriptor{rayToken, solUSDC})
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}

	// Spot rate is 2 USDC per RAY; fee and slippage pull the output below
	// 2000 but a 0.1% pool share should stay close.
	if leg.Output.GreaterThanOrEqual(dec("2000")) {
		t.Errorf("Output = %s, want < 2000", leg.Output)
	}
	if leg.Output.LessThan(dec("1980")) {
		t.Errorf("Output = %s, want > 1980", leg.Output)
	}
	if !leg.PriceImpactPct.IsPositive() {
		t.Errorf("PriceImpactPct = %s, want > 0", leg.PriceImpactPct)
	}
}

func TestSolanaVenueQuoteReversed(t *testing.T) {
	vaults := &fakeVaults{balances: map[string]*big.Int{
		"vault-ray":  big.NewInt(1_000_000_000_000),
		"vault-usdc": big.NewInt(2_000_000_000_000),
	}}
	venue := testSolanaVenue(t, vaults)

	// USDC -> RAY uses the same pool with reserves flipped.
	leg, err := venue.Quote(context.Background(), dec("2000"), []registry.TokenDescriptor{solUSDC, rayToken})
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if leg.Output.GreaterThanOrEqual(dec("1000")) {
		t.Errorf("Output = %s, want < 1000", leg.Output)
	}
	if leg.Output.LessThan(dec("990")) {
		t.Errorf("Output = %s, want > 990", leg.Output)
	}
}

func TestSolanaVenueQuoteNoPool(t *testing.T) {
	venue := testSolanaVenue(t, &fakeVaults{})

	_, err := venue.Quote(context.Background(), dec("10"), []registry.TokenDescriptor{srmToken, rayToken})
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Errorf("Quote() = %v, want ErrUnsupportedPair", err)
	}

	_, err = venue.Quote(context.Background(), dec("10"), []registry.TokenDescriptor{rayToken, solUSDC, srmToken})
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Errorf("Quote() with 3-hop path = %v, want ErrUnsupportedPair", err)
	}
}

func TestSolanaVenueQuoteEmptyPool(t *testing.T) {
	vaults := &fakeVaults{balances: map[string]*big.Int{
		"vault-ray":  big.NewInt(0),
		"vault-usdc": big.NewInt(2_000_000_000_000),
	}}
	venue := testSolanaVenue(t, vaults)

	_, err := venue.Quote(context.Background(), dec("10"), []registry.TokenDescriptor{rayToken, solUSDC})
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Errorf("Quote() on empty pool = %v, want ErrUnsupportedPair", err)
	}
}

func TestSolanaVenueBuildSwap(t *testing.T) {
	venue := testSolanaVenue(t, &fakeVaults{})
	deadline := time.Now().Add(20 * time.Minute)

	req, err := venue.BuildSwap(context.Background(), dec("1000"), dec("1980"),
		[]registry.TokenDescriptor{rayToken, solUSDC},
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", deadline)
	if err != nil {
		t.Fatalf("BuildSwap() error: %v", err)
	}

	if req.ChainID != "solana" || req.To != "pool-ray-usdc" {
		t.Errorf("req = %s/%s", req.ChainID, req.To)
	}

	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	var instr swapInstruction
	if err := json.Unmarshal(raw, &instr); err != nil {
		t.Fatalf("unmarshal instruction: %v", err)
	}

	if instr.Pool != "pool-ray-usdc" {
		t.Errorf("Pool = %s", instr.Pool)
	}
	if instr.AmountIn != "1000000000" {
		t.Errorf("AmountIn = %s, want 1000000000", instr.AmountIn)
	}
	if instr.MinOut != "1980000000" {
		t.Errorf("MinOut = %s, want 1980000000", instr.MinOut)
	}
	if len(instr.Path) != 2 || instr.Path[0] != "RAY" || instr.Path[1] != "USDC" {
		t.Errorf("Path = %v", instr.Path)
	}
}
