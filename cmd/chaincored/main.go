// Package main provides the chaincored daemon - the multi-chain asset layer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bottlechain/chaincore/internal/chains"
	"github.com/bottlechain/chaincore/internal/config"
	"github.com/bottlechain/chaincore/internal/driver"
	"github.com/bottlechain/chaincore/internal/pricefeed"
	"github.com/bottlechain/chaincore/internal/rpc"
	"github.com/bottlechain/chaincore/internal/storage"
	"github.com/bottlechain/chaincore/internal/swap"
	"github.com/bottlechain/chaincore/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.chaincore", "Data directory")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Initial logging, replaced once the config level is known.
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("chaincored %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over the config file.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	cfg.Storage.DataDir = *dataDir

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := cfg.Registry()
	if err != nil {
		log.Fatal("Invalid chain configuration", "error", err)
	}

	dataPath := expandPath(cfg.Storage.DataDir)
	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", dataPath)

	svc := chains.NewService(reg, log)
	defer svc.Close()
	svc.StartMonitor(ctx, chains.MonitorConfig{
		Interval:     cfg.Monitor.Interval,
		CheckTimeout: cfg.Monitor.CheckTimeout,
	})
	log.Info("Chain service initialized", "chains", len(cfg.Chains))

	feed := pricefeed.New(feedConfig(cfg), svc, log)
	feed.Start(ctx)
	defer feed.Stop()
	log.Info("Price feed started", "symbols", len(cfg.PriceFeed.Tokens), "interval", cfg.PriceFeed.PollInterval)

	router, err := buildRouter(cfg, svc, store, log)
	if err != nil {
		log.Fatal("Failed to build swap router", "error", err)
	}

	if partials, err := router.ListPartial(); err == nil && len(partials) > 0 {
		log.Warn("Partially completed swaps need recovery", "count", len(partials))
	}

	rpcServer := rpc.NewServer(svc, feed, router, log)
	if err := rpcServer.Start(cfg.API.ListenAddr, rpc.Options{EnableWebsocket: cfg.API.EnableWebsocket}); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

// feedConfig maps the daemon config to the price feed's config.
func feedConfig(cfg *config.Config) pricefeed.Config {
	tokens := make([]pricefeed.TokenConfig, len(cfg.PriceFeed.Tokens))
	for i, t := range cfg.PriceFeed.Tokens {
		tokens[i] = pricefeed.TokenConfig{
			Symbol:     t.Symbol,
			Chain:      t.Chain,
			OracleFeed: t.OracleFeed,
			MarketKey:  t.MarketKey,
		}
	}
	return pricefeed.Config{
		Tokens:        tokens,
		PollInterval:  cfg.PriceFeed.PollInterval,
		MarketDataURL: cfg.PriceFeed.MarketDataURL,
	}
}

// buildRouter wires per-chain venues and the bridge from config. Chains
// without a venue entry simply cannot swap.
func buildRouter(cfg *config.Config, svc *chains.Service, store *storage.Storage, log *logging.Logger) (*swap.Router, error) {
	venues := make(map[string]swap.Venue, len(cfg.Swap.Venues))
	for chainID, vc := range cfg.Swap.Venues {
		venue, err := buildVenue(chainID, vc, svc, log)
		if err != nil {
			return nil, err
		}
		venues[chainID] = venue
	}

	bridge, err := swap.NewFeeBridge(swap.BridgeParams{
		Asset:         cfg.Swap.Bridge.Asset,
		Fee:           cfg.Swap.Bridge.Fee,
		SettleSeconds: cfg.Swap.Bridge.SettleSeconds,
	}, log)
	if err != nil {
		return nil, err
	}

	// No key custody in the daemon: execution requires an external signer.
	return swap.NewRouter(svc, store, swap.UnconfiguredSigner(), bridge, venues, log), nil
}

func buildVenue(chainID string, vc config.VenueConfig, svc *chains.Service, log *logging.Logger) (swap.Venue, error) {
	d, err := svc.Driver(chainID)
	if err != nil {
		return nil, err
	}

	params := swap.VenueParams{
		Name:          vc.Name,
		Router:        vc.Router,
		Fee:           vc.Fee,
		WrappedNative: vc.WrappedNative,
		SettleSeconds: vc.SettleSeconds,
	}

	switch drv := d.(type) {
	case *driver.EVMDriver:
		return swap.NewEVMVenue(chainID, params, drv, log), nil
	case *driver.SolanaDriver:
		pools := make([]swap.PoolParams, len(vc.Pools))
		for i, p := range vc.Pools {
			pools[i] = swap.PoolParams{
				Pair:       p.Pair,
				Address:    p.Address,
				BaseVault:  p.BaseVault,
				QuoteVault: p.QuoteVault,
			}
		}
		return swap.NewSolanaVenue(chainID, params, pools, drv, log)
	default:
		return nil, fmt.Errorf("no venue support for chain %s", chainID)
	}
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Info("  chaincore daemon")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", cfg.API.ListenAddr)
	if cfg.API.EnableWebsocket {
		log.Infof("  WS:  ws://%s/ws", cfg.API.ListenAddr)
	}
	log.Info("")
	log.Infof("  Chains: %d | Tokens: %d | Tracked prices: %d",
		len(cfg.Chains), len(cfg.Tokens), len(cfg.PriceFeed.Tokens))
	log.Infof("  Data dir: %s", expandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
