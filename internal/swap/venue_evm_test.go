package swap

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/bottlechain/chaincore/internal/driver"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/logging"
)

const (
	testRouter  = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	testWrapped = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

var (
	linkToken = registry.TokenDescriptor{Symbol: "LINK", ChainID: "ethereum", Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Decimals: 18}
	usdcToken = registry.TokenDescriptor{Symbol: "USDC", ChainID: "ethereum", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6}
	ethNative = registry.TokenDescriptor{Symbol: "ETH", ChainID: "ethereum", Address: registry.NativeAddress, Decimals: 18}
)

// queueCaller replays canned eth_call responses in order and records calls.
type queueCaller struct {
	responses [][]byte
	calls     []string
	to        []string
}

func (c *queueCaller) CallContract(ctx context.Context, to string, data string) ([]byte, error) {
	c.calls = append(c.calls, data)
	c.to = append(c.to, to)
	if len(c.responses) == 0 {
		return nil, errors.New("no response queued")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

// amountsOutResponse encodes a uint256[] return value.
func amountsOutResponse(amounts ...*big.Int) []byte {
	out := driver.AmountWord(big.NewInt(32))
	out = append(out, driver.AmountWord(big.NewInt(int64(len(amounts))))...)
	for _, a := range amounts {
		out = append(out, driver.AmountWord(a)...)
	}
	return out
}

func testEVMVenue(caller *queueCaller) *EVMVenue {
	return NewEVMVenue("ethereum", VenueParams{
		Name:          "Uniswap V2",
		Router:        testRouter,
		Fee:           "0.3%",
		WrappedNative: testWrapped,
		SettleSeconds: 300,
	}, caller, logging.New(&logging.Config{Level: "error"}))
}

func TestEVMVenueQuote(t *testing.T) {
	oneLink := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	probeIn := new(big.Int).Div(oneLink, big.NewInt(1000))

	caller := &queueCaller{responses: [][]byte{
		amountsOutResponse(oneLink, big.NewInt(2_985_000_000)),
		amountsOutResponse(probeIn, big.NewInt(3_000_000)),
	}}
	venue := testEVMVenue(caller)

	leg, err := venue.Quote(context.Background(), dec("1"), []registry.TokenDescriptor{linkToken, usdcToken})
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}

	if !leg.Output.Equal(dec("2985")) {
		t.Errorf("Output = %s, want 2985", leg.Output)
	}
	// Marginal rate 3e-9, realized rate 2.985e-9.
	if !leg.PriceImpactPct.Equal(dec("0.5")) {
		t.Errorf("PriceImpactPct = %s, want 0.5", leg.PriceImpactPct)
	}

	if len(caller.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(caller.calls))
	}
	if !strings.HasPrefix(caller.calls[0], selGetAmountsOut) {
		t.Errorf("call data = %s...", caller.calls[0][:10])
	}
	if caller.to[0] != testRouter {
		t.Errorf("call to = %s, want router", caller.to[0])
	}
}

func TestEVMVenueQuoteMalformedResponse(t *testing.T) {
	caller := &queueCaller{responses: [][]byte{{0x01, 0x02}}}
	venue := testEVMVenue(caller)

	_, err := venue.Quote(context.Background(), dec("1"), []registry.TokenDescriptor{linkToken, usdcToken})
	if !errors.Is(err, driver.ErrRPC) {
		t.Errorf("Quote() = %v, want ErrRPC", err)
	}
}

func TestEVMVenueBuildSwap(t *testing.T) {
	venue := testEVMVenue(&queueCaller{})
	recipient := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	deadline := time.Now().Add(20 * time.Minute)

	req, err := venue.BuildSwap(context.Background(), dec("1"), dec("2955"),
		[]registry.TokenDescriptor{linkToken, usdcToken}, recipient, deadline)
	if err != nil {
		t.Fatalf("BuildSwap() error: %v", err)
	}

	if req.ChainID != "ethereum" || req.To != testRouter {
		t.Errorf("req = %s/%s", req.ChainID, req.To)
	}
	if !strings.HasPrefix(req.Data, selSwapExactTokensForTokens) {
		t.Errorf("data selector = %s", req.Data[:10])
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(req.Data, selSwapExactTokensForTokens))
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(raw) != 32*7 {
		t.Fatalf("data words = %d, want 7", len(raw)/32)
	}

	oneLink := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := new(big.Int).SetBytes(driver.WordAt(raw, 0)); got.Cmp(oneLink) != 0 {
		t.Errorf("amountIn word = %s, want 1e18", got)
	}
	if got := new(big.Int).SetBytes(driver.WordAt(raw, 1)); got.Cmp(big.NewInt(2_955_000_000)) != 0 {
		t.Errorf("minOut word = %s, want 2955e6", got)
	}
	if got := new(big.Int).SetBytes(driver.WordAt(raw, 2)); got.Int64() != 160 {
		t.Errorf("path offset = %s, want 160", got)
	}
	if got := new(big.Int).SetBytes(driver.WordAt(raw, 4)); got.Int64() != deadline.Unix() {
		t.Errorf("deadline word = %s, want %d", got, deadline.Unix())
	}
	if got := new(big.Int).SetBytes(driver.WordAt(raw, 5)); got.Int64() != 2 {
		t.Errorf("path length = %s, want 2", got)
	}
}

func TestEVMVenueNativeRoutesThroughWrapped(t *testing.T) {
	venue := testEVMVenue(&queueCaller{})

	req, err := venue.BuildSwap(context.Background(), dec("1"), dec("2900"),
		[]registry.TokenDescriptor{ethNative, usdcToken},
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("BuildSwap() error: %v", err)
	}

	wrapped := strings.ToLower(strings.TrimPrefix(testWrapped, "0x"))
	if !strings.Contains(strings.ToLower(req.Data), wrapped) {
		t.Error("native input should route through the wrapped token")
	}

	bare := *venue
	bare.params.WrappedNative = ""
	_, err = bare.BuildSwap(context.Background(), dec("1"), dec("2900"),
		[]registry.TokenDescriptor{ethNative, usdcToken},
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", time.Now().Add(time.Minute))
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Errorf("BuildSwap() without wrapped native = %v, want ErrUnsupportedPair", err)
	}
}
