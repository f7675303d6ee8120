package registry

import "testing"

func testChains() []ChainDescriptor {
	return []ChainDescriptor{
		{ID: "ethereum", Name: "Ethereum", Family: FamilyEVM, RPCURL: "http://rpc", ChainID: 1, NativeSymbol: "ETH", NativeDecimals: 18},
		{ID: "solana", Name: "Solana", Family: FamilySolana, RPCURL: "http://rpc", NativeSymbol: "SOL", NativeDecimals: 9},
	}
}

func testTokens() []TokenDescriptor {
	return []TokenDescriptor{
		{Symbol: "USDC", Name: "USD Coin", ChainID: "ethereum", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDC", Name: "USD Coin", ChainID: "solana", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(testChains(), testTokens()); err != nil {
		t.Fatalf("New() error: %v", err)
	}

	dup := append(testChains(), ChainDescriptor{ID: "ethereum", Family: FamilyEVM, NativeSymbol: "ETH"})
	if _, err := New(dup, nil); err == nil {
		t.Error("New() should reject duplicate chain ids")
	}

	bad := []ChainDescriptor{{ID: "x", Family: "cosmos", NativeSymbol: "X"}}
	if _, err := New(bad, nil); err == nil {
		t.Error("New() should reject unknown family")
	}

	orphan := []TokenDescriptor{{Symbol: "FOO", ChainID: "nope"}}
	if _, err := New(testChains(), orphan); err == nil {
		t.Error("New() should reject token on unknown chain")
	}
}

func TestChainLookup(t *testing.T) {
	r, _ := New(testChains(), testTokens())

	c, ok := r.Chain("ethereum")
	if !ok || c.Family != FamilyEVM {
		t.Errorf("Chain(ethereum) = %+v, %v", c, ok)
	}

	if _, ok := r.Chain("dogecoin"); ok {
		t.Error("Chain(dogecoin) should not exist")
	}

	ids := r.ChainIDs()
	if len(ids) != 2 || ids[0] != "ethereum" || ids[1] != "solana" {
		t.Errorf("ChainIDs() = %v, want configuration order", ids)
	}
}

func TestTokenLookup(t *testing.T) {
	r, _ := New(testChains(), testTokens())

	tok, ok := r.Token("ethereum", "usdc")
	if !ok || tok.Decimals != 6 {
		t.Errorf("Token(ethereum, usdc) = %+v, %v", tok, ok)
	}

	tok, ok = r.TokenByAddress("solana", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	if !ok || tok.Symbol != "USDC" {
		t.Errorf("TokenByAddress = %+v, %v", tok, ok)
	}

	if _, ok := r.Token("ethereum", "DOGE"); ok {
		t.Error("Token(ethereum, DOGE) should not exist")
	}
}

func TestNativeToken(t *testing.T) {
	r, _ := New(testChains(), testTokens())

	tok, ok := r.NativeToken("solana")
	if !ok {
		t.Fatal("NativeToken(solana) missing")
	}
	if tok.Symbol != "SOL" || tok.Decimals != 9 || !tok.IsNative() {
		t.Errorf("NativeToken(solana) = %+v", tok)
	}
}

func TestSupportedSymbols(t *testing.T) {
	r, _ := New(testChains(), testTokens())

	syms := r.SupportedSymbols()
	want := []string{"ETH", "USDC", "SOL"}
	if len(syms) != len(want) {
		t.Fatalf("SupportedSymbols() = %v, want %v", syms, want)
	}
	for i := range want {
		if syms[i] != want[i] {
			t.Errorf("SupportedSymbols()[%d] = %s, want %s", i, syms[i], want[i])
		}
	}
}

func TestTokensForChainIsCopy(t *testing.T) {
	r, _ := New(testChains(), testTokens())

	a := r.TokensForChain("ethereum")
	a[0].Symbol = "MUTATED"

	b := r.TokensForChain("ethereum")
	if b[0].Symbol != "USDC" {
		t.Error("TokensForChain should return a copy")
	}
}
