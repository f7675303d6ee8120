// Package chains is the chain abstraction layer. It routes family-independent
// operations to lazily constructed, cached drivers and tracks per-chain
// reachability.
package chains

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bottlechain/chaincore/internal/driver"
	"github.com/bottlechain/chaincore/internal/registry"
	"github.com/bottlechain/chaincore/pkg/logging"
	"github.com/google/uuid"
)

// DriverFactory constructs a driver for a chain descriptor. Tests substitute
// their own factory to avoid real nodes.
type DriverFactory func(chain registry.ChainDescriptor, log *logging.Logger) (driver.Driver, error)

// defaultFactory selects the driver by chain family. Custom chains expose an
// EVM RPC surface and are served by the EVM driver.
func defaultFactory(chain registry.ChainDescriptor, log *logging.Logger) (driver.Driver, error) {
	switch chain.Family {
	case registry.FamilyEVM, registry.FamilyCustom:
		return driver.NewEVMDriver(chain, log), nil
	case registry.FamilySolana:
		return driver.NewSolanaDriver(chain, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown family %q", driver.ErrNoProvider, chain.Family)
	}
}

// Service routes operations to per-chain drivers.
type Service struct {
	reg     *registry.Registry
	log     *logging.Logger
	factory DriverFactory

	mu      sync.Mutex
	drivers map[string]driver.Driver

	subMu      sync.Mutex
	statusSubs []*StatusSubscription

	monitor *monitor
}

// StatusSubscription is a registered reachability callback. Cancelling
// removes exactly this entry.
type StatusSubscription struct {
	id  uuid.UUID
	svc *Service
	fn  func(ChainStatus)
}

// Cancel removes the subscription from its service.
func (s *StatusSubscription) Cancel() {
	s.svc.unsubscribeStatus(s)
}

// Option configures a Service.
type Option func(*Service)

// WithDriverFactory overrides how drivers are constructed.
func WithDriverFactory(f DriverFactory) Option {
	return func(s *Service) {
		s.factory = f
	}
}

// NewService creates a chain abstraction service over a registry.
func NewService(reg *registry.Registry, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		reg:     reg,
		log:     log.Component("chains"),
		factory: defaultFactory,
		drivers: make(map[string]driver.Driver),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitor = newMonitor(s)
	return s
}

// Registry returns the registry the service routes over.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// Driver returns the driver for a chain id, constructing and caching it on
// first use.
func (s *Service) Driver(chainID string) (driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.drivers[chainID]; ok {
		return d, nil
	}

	chain, ok := s.reg.Chain(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoProvider, chainID)
	}

	d, err := s.factory(chain, s.log)
	if err != nil {
		return nil, err
	}
	s.drivers[chainID] = d
	s.log.Debug("driver constructed", "chain", chainID, "family", chain.Family)
	return d, nil
}

// resolveToken maps a token symbol to its descriptor on a chain. An empty
// symbol or the chain's native symbol selects the native asset (nil).
func (s *Service) resolveToken(chainID, symbol string) (*registry.TokenDescriptor, error) {
	chain, ok := s.reg.Chain(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoProvider, chainID)
	}
	if symbol == "" || strings.EqualFold(symbol, chain.NativeSymbol) {
		return nil, nil
	}

	token, ok := s.reg.Token(chainID, symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", driver.ErrTokenNotFound, symbol, chainID)
	}
	return &token, nil
}

// GetBalance reads the balance of one asset on one chain. An empty token
// symbol means the native asset.
func (s *Service) GetBalance(ctx context.Context, chainID, address, tokenSymbol string) (*driver.Balance, error) {
	d, err := s.Driver(chainID)
	if err != nil {
		return nil, err
	}
	token, err := s.resolveToken(chainID, tokenSymbol)
	if err != nil {
		return nil, err
	}
	return d.GetBalance(ctx, address, token)
}

// GetTokenInfo reads token metadata, filling name and symbol from the
// registry when the chain itself does not carry them.
func (s *Service) GetTokenInfo(ctx context.Context, chainID, tokenAddress string) (*driver.TokenInfo, error) {
	d, err := s.Driver(chainID)
	if err != nil {
		return nil, err
	}

	info, err := d.GetTokenInfo(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	if info.Name == "" || info.Symbol == "" {
		if known, ok := s.reg.TokenByAddress(chainID, tokenAddress); ok {
			if info.Name == "" {
				info.Name = known.Name
			}
			if info.Symbol == "" {
				info.Symbol = known.Symbol
			}
		}
	}
	return info, nil
}

// GetTransactionHistory returns recent transactions for an address.
func (s *Service) GetTransactionHistory(ctx context.Context, chainID, address string) ([]driver.TxRecord, error) {
	d, err := s.Driver(chainID)
	if err != nil {
		return nil, err
	}
	return d.GetTransactionHistory(ctx, address)
}

// SendTransaction broadcasts a signed payload and blocks to confirmation.
func (s *Service) SendTransaction(ctx context.Context, chainID, signedPayload string) (*driver.Confirmation, error) {
	d, err := s.Driver(chainID)
	if err != nil {
		return nil, err
	}
	return d.SendTransaction(ctx, signedPayload)
}

// ValidateAddress checks address shape for a chain's family.
func (s *Service) ValidateAddress(chainID, address string) error {
	d, err := s.Driver(chainID)
	if err != nil {
		return err
	}
	return d.ValidateAddress(address)
}

// SubscribeStatus registers a callback invoked whenever a chain's
// reachability flips. The monitor's first sweep reports every chain.
func (s *Service) SubscribeStatus(fn func(ChainStatus)) *StatusSubscription {
	sub := &StatusSubscription{id: uuid.New(), svc: s, fn: fn}

	s.subMu.Lock()
	s.statusSubs = append(s.statusSubs, sub)
	s.subMu.Unlock()
	return sub
}

func (s *Service) unsubscribeStatus(sub *StatusSubscription) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, entry := range s.statusSubs {
		if entry.id == sub.id {
			s.statusSubs = append(s.statusSubs[:i], s.statusSubs[i+1:]...)
			return
		}
	}
}

// notifyStatus delivers one status change to subscribers in registration
// order.
func (s *Service) notifyStatus(st ChainStatus) {
	s.subMu.Lock()
	subs := make([]*StatusSubscription, len(s.statusSubs))
	copy(subs, s.statusSubs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(st)
	}
}

// StartMonitor begins periodic reachability sweeps. See monitor.go.
func (s *Service) StartMonitor(ctx context.Context, cfg MonitorConfig) {
	s.monitor.start(ctx, cfg)
}

// Status returns the latest reachability snapshot, keyed by chain id.
func (s *Service) Status() map[string]ChainStatus {
	return s.monitor.snapshot()
}

// Close stops the monitor and closes all constructed drivers.
func (s *Service) Close() error {
	s.monitor.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.drivers {
		if err := d.Close(); err != nil {
			s.log.Warn("driver close failed", "chain", id, "error", err)
		}
	}
	s.drivers = make(map[string]driver.Driver)
	return nil
}
