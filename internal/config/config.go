// Package config provides centralized configuration for the chaincore daemon.
// Chain descriptors, token lists, venue addresses and feed sources are all
// defined here; no hardcoded values should exist elsewhere in the codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bottlechain/chaincore/internal/registry"
	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration.
type Config struct {
	// Chains lists the supported chains.
	Chains []registry.ChainDescriptor `yaml:"chains"`

	// Tokens lists the supported tokens per chain.
	Tokens []registry.TokenDescriptor `yaml:"tokens"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// API settings for the JSON-RPC server.
	API APIConfig `yaml:"api"`

	// Storage settings.
	Storage StorageConfig `yaml:"storage"`

	// PriceFeed settings.
	PriceFeed PriceFeedConfig `yaml:"price_feed"`

	// Monitor settings for chain reachability checks.
	Monitor MonitorConfig `yaml:"monitor"`

	// Swap settings: per-chain venues and the bridge.
	Swap SwapConfig `yaml:"swap"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// APIConfig holds JSON-RPC server settings.
type APIConfig struct {
	// ListenAddr is the host:port the RPC server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// EnableWebsocket enables the websocket price-tick stream.
	EnableWebsocket bool `yaml:"enable_websocket"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// PriceFeedConfig holds price feed settings.
type PriceFeedConfig struct {
	// PollInterval is the refresh cadence for all tracked symbols.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MarketDataURL is the base URL of the market-data HTTP API.
	MarketDataURL string `yaml:"market_data_url"`

	// Tokens configures the price source for each tracked symbol.
	Tokens []PriceTokenConfig `yaml:"tokens"`
}

// PriceTokenConfig selects the price source for one symbol. Source priority:
// OracleFeed if set, then MarketKey, then the synthetic fallback.
type PriceTokenConfig struct {
	// Symbol is the token symbol the quote is published under.
	Symbol string `yaml:"symbol"`

	// Chain is the chain id whose RPC serves the oracle read.
	Chain string `yaml:"chain"`

	// OracleFeed is the on-chain price feed contract address, if any.
	OracleFeed string `yaml:"oracle_feed,omitempty"`

	// MarketKey is the market-data API lookup key, if any.
	MarketKey string `yaml:"market_key,omitempty"`
}

// MonitorConfig holds chain reachability monitor settings.
type MonitorConfig struct {
	// Interval between reachability sweeps.
	Interval time.Duration `yaml:"interval"`

	// CheckTimeout bounds each individual chain check.
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// VenueConfig describes the swap venue on one chain.
type VenueConfig struct {
	// Name is the venue's display name, e.g. "Uniswap V2".
	Name string `yaml:"name"`

	// Router is the router contract or AMM program address.
	Router string `yaml:"router"`

	// Fee is the venue's fee as a display string, e.g. "0.3%".
	Fee string `yaml:"fee"`

	// WrappedNative is the wrapped native token address used to route
	// native-asset swaps (EVM venues only).
	WrappedNative string `yaml:"wrapped_native,omitempty"`

	// SettleSeconds is the estimated settlement time for a swap.
	SettleSeconds int `yaml:"settle_seconds"`

	// Pools lists the AMM pools with on-chain reserve vaults
	// (Solana venues only).
	Pools []PoolConfig `yaml:"pools,omitempty"`
}

// PoolConfig describes one AMM pool and its reserve vault accounts.
type PoolConfig struct {
	// Pair is "BASE/QUOTE" by token symbol, e.g. "RAY/USDC".
	Pair string `yaml:"pair"`

	// Address is the pool account address.
	Address string `yaml:"address"`

	// BaseVault holds the base-side reserves.
	BaseVault string `yaml:"base_vault"`

	// QuoteVault holds the quote-side reserves.
	QuoteVault string `yaml:"quote_vault"`
}

// BridgeConfig describes the cross-chain bridge asset.
type BridgeConfig struct {
	// Asset is the symbol funds move through between chains.
	Asset string `yaml:"asset"`

	// Fee is the bridge fee as a display string.
	Fee string `yaml:"fee"`

	// SettleSeconds is the fixed bridge settlement estimate.
	SettleSeconds int `yaml:"settle_seconds"`
}

// SwapConfig holds swap router settings.
type SwapConfig struct {
	// Venues maps chain id to that chain's swap venue.
	Venues map[string]VenueConfig `yaml:"venues"`

	// Bridge is the cross-chain bridge configuration.
	Bridge BridgeConfig `yaml:"bridge"`
}

// DefaultConfig returns a Config with the built-in chain and token tables.
func DefaultConfig() *Config {
	return &Config{
		Chains: []registry.ChainDescriptor{
			{
				ID:             "bottle-chain",
				Name:           "Bottle Chain",
				Family:         registry.FamilyCustom,
				RPCURL:         "https://rpc.bottlechain.org",
				ChainID:        7117,
				NativeSymbol:   "BTL",
				NativeDecimals: 18,
				ExplorerURL:    "https://scan.bottlechain.org",
				IndexerURL:     "https://scan.bottlechain.org/api",
			},
			{
				ID:             "ethereum",
				Name:           "Ethereum",
				Family:         registry.FamilyEVM,
				RPCURL:         "https://eth.llamarpc.com",
				ChainID:        1,
				NativeSymbol:   "ETH",
				NativeDecimals: 18,
				ExplorerURL:    "https://etherscan.io",
				IndexerURL:     "https://api.etherscan.io/api",
			},
			{
				ID:             "binance",
				Name:           "BNB Smart Chain",
				Family:         registry.FamilyEVM,
				RPCURL:         "https://bsc-dataseed.binance.org",
				ChainID:        56,
				NativeSymbol:   "BNB",
				NativeDecimals: 18,
				ExplorerURL:    "https://bscscan.com",
				IndexerURL:     "https://api.bscscan.com/api",
			},
			{
				ID:             "solana",
				Name:           "Solana",
				Family:         registry.FamilySolana,
				RPCURL:         "https://api.mainnet-beta.solana.com",
				NativeSymbol:   "SOL",
				NativeDecimals: 9,
				ExplorerURL:    "https://solscan.io",
			},
		},
		Tokens: []registry.TokenDescriptor{
			// Bottle Chain
			{Symbol: "USDT", Name: "Tether USD", ChainID: "bottle-chain", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
			{Symbol: "USDC", Name: "USD Coin", ChainID: "bottle-chain", Address: "0x8965349fb649A33a30cbFDa057D8eC2C48AbE2A2", Decimals: 18},

			// Ethereum
			{Symbol: "USDT", Name: "Tether USD", ChainID: "ethereum", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
			{Symbol: "USDC", Name: "USD Coin", ChainID: "ethereum", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
			{Symbol: "WBTC", Name: "Wrapped Bitcoin", ChainID: "ethereum", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
			{Symbol: "LINK", Name: "Chainlink", ChainID: "ethereum", Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Decimals: 18},

			// BNB Smart Chain
			{Symbol: "CAKE", Name: "PancakeSwap", ChainID: "binance", Address: "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82", Decimals: 18},
			{Symbol: "BUSD", Name: "Binance USD", ChainID: "binance", Address: "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56", Decimals: 18},
			{Symbol: "USDC", Name: "USD Coin", ChainID: "binance", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},

			// Solana
			{Symbol: "RAY", Name: "Raydium", ChainID: "solana", Address: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Decimals: 6},
			{Symbol: "SRM", Name: "Serum", ChainID: "solana", Address: "SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt", Decimals: 6},
			{Symbol: "USDC", Name: "USD Coin", ChainID: "solana", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		API: APIConfig{
			ListenAddr:      "127.0.0.1:8910",
			EnableWebsocket: true,
		},
		Storage: StorageConfig{
			DataDir: "~/.chaincore",
		},
		PriceFeed: PriceFeedConfig{
			PollInterval:  10 * time.Second,
			MarketDataURL: "https://api.coingecko.com",
			Tokens: []PriceTokenConfig{
				{Symbol: "BTL", Chain: "bottle-chain"},
				{Symbol: "ETH", Chain: "ethereum", OracleFeed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", MarketKey: "ethereum"},
				{Symbol: "WBTC", Chain: "ethereum", OracleFeed: "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c", MarketKey: "wrapped-bitcoin"},
				{Symbol: "LINK", Chain: "ethereum", OracleFeed: "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c", MarketKey: "chainlink"},
				{Symbol: "BNB", Chain: "binance", OracleFeed: "0x0567F2323251f0Aab15c8dFb1967E4e8A7D42aeE", MarketKey: "binancecoin"},
				{Symbol: "CAKE", Chain: "binance", MarketKey: "pancakeswap-token"},
				{Symbol: "BUSD", Chain: "binance", MarketKey: "binance-usd"},
				{Symbol: "SOL", Chain: "solana", MarketKey: "solana"},
				{Symbol: "RAY", Chain: "solana", MarketKey: "raydium"},
				{Symbol: "SRM", Chain: "solana", MarketKey: "serum"},
				{Symbol: "USDT", Chain: "ethereum", MarketKey: "tether"},
				{Symbol: "USDC", Chain: "ethereum", MarketKey: "usd-coin"},
			},
		},
		Monitor: MonitorConfig{
			Interval:     30 * time.Second,
			CheckTimeout: 10 * time.Second,
		},
		Swap: SwapConfig{
			Venues: map[string]VenueConfig{
				"bottle-chain": {
					Name:          "BottleSwap",
					Router:        "0x3C7b05cc4Bf8F4aFA5a6De46DbDF5F78f02A1B09",
					Fee:           "0.3%",
					WrappedNative: "0xD1a8f3688c8C9c7b1f0a9e5D2cD7bE8Ba1fD31A7",
					SettleSeconds: 300,
				},
				"ethereum": {
					Name:          "Uniswap V2",
					Router:        "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
					Fee:           "0.3%",
					WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
					SettleSeconds: 300,
				},
				"binance": {
					Name:          "PancakeSwap",
					Router:        "0x10ED43C718714eb63d5aA57B78B54704E256024E",
					Fee:           "0.25%",
					WrappedNative: "0xbb4CdB9CBd36B01bD1cBaEF60aF814a3f6F0Ee75",
					SettleSeconds: 300,
				},
				"solana": {
					Name:          "Raydium",
					Router:        "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
					Fee:           "0.3%",
					SettleSeconds: 20,
					Pools: []PoolConfig{
						{
							Pair:       "RAY/USDC",
							Address:    "6UmmUiYoBjSrhakAobJw8BvkmJtDVxaeBtbt7rxWo1mg",
							BaseVault:  "FdmKUE4UMiJYFK5ogCngHzShuVKrFXBamPWcewDr31th",
							QuoteVault: "Eqrhxd7bDUCH3MepKmdVkgwazXRzY6iHhEoBpY7yAohk",
						},
						{
							Pair:       "SOL/USDC",
							Address:    "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2",
							BaseVault:  "DQyrAcCrDXQ7NeoqGgDCZwBvWDcYmFCjSb9JtteuvPpz",
							QuoteVault: "HLmqeL62xR1QoZ1HKKbXRrdN1p3phKpxRMb2VVopvBBz",
						},
						{
							Pair:       "SRM/USDC",
							Address:    "8tzS7SkUZyHPQY7gLqsMCXZ5EDCgjESUHcB17tiR1h3Z",
							BaseVault:  "GVV4ZT9pccwy9d17STafFDuiSqFbXuRTdvKQ1zJX6ttX",
							QuoteVault: "HYSAu42BFejBS77jZAZdNAWa3iVcbSRJSzp3wtqCbWwv",
						},
					},
				},
			},
			Bridge: BridgeConfig{
				Asset:         "USDC",
				Fee:           "0.1%",
				SettleSeconds: 900,
			},
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# chaincore daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// Registry builds a registry from the configured chain and token tables.
func (c *Config) Registry() (*registry.Registry, error) {
	return registry.New(c.Chains, c.Tokens)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
