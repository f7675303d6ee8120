package chains

import (
	"context"
	"sync"
	"time"
)

// MonitorConfig bounds the reachability sweep cadence and each chain check.
type MonitorConfig struct {
	Interval     time.Duration
	CheckTimeout time.Duration
}

// ChainStatus is one chain's latest reachability result.
type ChainStatus struct {
	ChainID   string    `json:"chain_id"`
	Reachable bool      `json:"reachable"`
	CheckedAt time.Time `json:"checked_at"`
	Err       string    `json:"error,omitempty"`
}

// monitor sweeps every chain on a fixed interval. Each sweep fans out one
// goroutine per chain with an individual timeout, so a hung node cannot
// starve the other checks, and swaps the whole status table at once.
type monitor struct {
	svc *Service

	mu     sync.RWMutex
	status map[string]ChainStatus

	cancel context.CancelFunc
	done   chan struct{}
}

func newMonitor(svc *Service) *monitor {
	return &monitor{
		svc:    svc,
		status: make(map[string]ChainStatus),
	}
}

func (m *monitor) start(ctx context.Context, cfg MonitorConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		m.sweep(ctx, cfg.CheckTimeout)

		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx, cfg.CheckTimeout)
			}
		}
	}()
}

func (m *monitor) sweep(ctx context.Context, checkTimeout time.Duration) {
	ids := m.svc.reg.ChainIDs()

	results := make([]ChainStatus, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = m.check(ctx, id, checkTimeout)
		}(i, id)
	}
	wg.Wait()

	next := make(map[string]ChainStatus, len(results))
	for _, st := range results {
		next[st.ChainID] = st
		if !st.Reachable {
			m.svc.log.Warn("chain unreachable", "chain", st.ChainID, "error", st.Err)
		}
	}

	m.mu.Lock()
	prev := m.status
	m.status = next
	m.mu.Unlock()

	// Subscribers hear about flips only; the first sweep reports every
	// chain.
	for _, st := range results {
		old, seen := prev[st.ChainID]
		if !seen || old.Reachable != st.Reachable {
			m.svc.notifyStatus(st)
		}
	}
}

func (m *monitor) check(ctx context.Context, chainID string, timeout time.Duration) ChainStatus {
	st := ChainStatus{ChainID: chainID, CheckedAt: time.Now()}

	d, err := m.svc.Driver(chainID)
	if err != nil {
		st.Err = err.Error()
		return st
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.Ping(checkCtx); err != nil {
		st.Err = err.Error()
		return st
	}
	st.Reachable = true
	return st
}

// snapshot returns a copy of the status table.
func (m *monitor) snapshot() map[string]ChainStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ChainStatus, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

func (m *monitor) stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}
}
