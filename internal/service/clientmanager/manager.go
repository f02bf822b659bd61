// Package clientmanager owns the set of backend sessions and runs the
// per-backend lifecycle state machine (§4.2), generalizing the host
// repository's UpstreamManager (exponential-backoff reconnect, per-process
// health goroutine) from a fixed stdio-subprocess model to the three
// backend transports and the Pending/Initializing/Ready/Degraded/Failed/
// ShuttingDown phase machine this module's backends go through.
package clientmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// Default backoff and retry parameters, grounded on the host repository's
// UpstreamManager defaults.
const (
	DefaultBackoffBase  = time.Second
	DefaultBackoffCap   = 60 * time.Second
	DefaultMaxRetries   = 10
	DefaultStopDeadline = 30 * time.Second
)

// Config configures a Manager.
type Config struct {
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxRetries   int
	StopDeadline time.Duration
}

func (c Config) resolve() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.StopDeadline <= 0 {
		c.StopDeadline = DefaultStopDeadline
	}
	return c
}

// slot holds the runtime state for a single backend, serializing all of
// that backend's phase transitions behind mu (§4.2 "per-backend
// coordination primitive").
type slot struct {
	mu sync.Mutex

	descriptor *backend.Descriptor
	status     backend.StatusRecord
	session    backend.Session
	catalog    map[capability.Kind][]backend.RawCapability

	// generation increments on every (re)connect attempt. A goroutine
	// captures its generation before it sleeps or blocks; on waking it
	// compares against the slot's current generation and abandons its
	// work if they no longer match (the slot was stopped or reconnected
	// out from under it) instead of fighting a newer attempt.
	generation  uint64
	retryCount  int
	cancelRetry context.CancelFunc
}

// Manager holds backend-name → session + status record (§4.2).
type Manager struct {
	cfg    Config
	logger *slog.Logger

	factories map[backend.Transport]backend.Factory

	mu    sync.RWMutex
	slots map[string]*slot
	order []string // backend names, sorted — deterministic global-op order

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	// OnRouteChange is invoked after any transition that adds, removes, or
	// refreshes a backend's routable capabilities. Wired by the gateway
	// facade to registry.Rebuild with a BuildFunc over Catalogs().
	OnRouteChange func()
}

// New builds a Manager for descriptors, none of which are started yet.
// Call StartAll to begin connecting.
func New(descriptors []*backend.Descriptor, factories map[backend.Transport]backend.Factory, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	names := make([]string, 0, len(descriptors))
	slots := make(map[string]*slot, len(descriptors))
	for _, d := range descriptors {
		slots[d.Name] = &slot{
			descriptor: d,
			status:     backend.StatusRecord{Name: d.Name, Phase: backend.PhasePending},
		}
		names = append(names, d.Name)
	}
	sort.Strings(names)

	return &Manager{
		cfg:       cfg.resolve(),
		logger:    logger,
		factories: factories,
		slots:     slots,
		order:     names,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartAll launches every descriptor's initialization concurrently (§4.2).
// It returns once every backend's first connect attempt has settled (into
// Ready or Failed-with-retry-scheduled), or ctx is done, whichever comes
// first; a connect attempt that is still retrying in the background when
// ctx expires keeps running.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			m.connect(name)
		}(name)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Session returns the live session for name if its backend is currently
// Ready or Degraded, or nil otherwise (§4.2 "returns the live session for
// routing, or None if the backend is not currently Ready/Degraded").
func (m *Manager) Session(name string) backend.Session {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Phase.Routable() {
		return nil
	}
	return s.session
}

// Snapshot returns a point-in-time copy of every backend's status record,
// in deterministic (name) order, for the management surface (§4.2).
func (m *Manager) Snapshot() []backend.StatusRecord {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	slots := make([]*slot, len(names))
	for i, n := range names {
		slots[i] = m.slots[n]
	}
	m.mu.RUnlock()

	out := make([]backend.StatusRecord, len(slots))
	for i, s := range slots {
		s.mu.Lock()
		out[i] = s.status.Clone()
		s.mu.Unlock()
	}
	return out
}

// Reconnect atomically transitions name's session to ShuttingDown, closes
// it, discards it, and starts a fresh Pending→Initializing cycle (§4.2).
// Every call runs its own teardown and reconnect; concurrent calls for the
// same name are not merged into one cycle. Each teardown bumps the slot's
// generation, so only the newest attempt's session is kept.
func (m *Manager) Reconnect(name string) error {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("clientmanager: backend %q is not managed", name)
	}

	m.teardown(s, backend.PhaseShuttingDown)
	m.connect(name)
	return nil
}

// Fail tears down name's session and transitions it to Failed with reason,
// then schedules a reconnect with backoff. Called by the health monitor
// when a backend's consecutive-failure count crosses failed_threshold
// (§4.6 "instruct the client manager to tear the session down").
func (m *Manager) Fail(name, reason string) error {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("clientmanager: backend %q is not managed", name)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	sess := s.session
	s.session = nil
	s.status.Phase = backend.PhaseFailed
	s.status.LastError = reason
	s.status.SetCondition(backend.Condition{
		Type: "Healthy", Status: false,
		Reason: "HealthProbeFailed", Message: reason, Timestamp: time.Now(),
	})
	s.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			m.logger.Warn("error closing failed backend session", "backend", name, "error", err)
		}
	}
	m.triggerRouteChange()
	m.scheduleRetry(s, gen)
	return nil
}

// Degrade marks name's backend Degraded without tearing down its session
// (§4.6 "still routable — its routes remain in the map").
func (m *Manager) Degrade(name, reason string) error {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("clientmanager: backend %q is not managed", name)
	}

	s.mu.Lock()
	if s.status.Phase == backend.PhaseReady {
		s.status.Phase = backend.PhaseDegraded
	}
	s.status.SetCondition(backend.Condition{
		Type: "Healthy", Status: false,
		Reason: "HealthProbeDegraded", Message: reason, Timestamp: time.Now(),
	})
	s.mu.Unlock()
	return nil
}

// ReportHealthy restores a Degraded backend to Ready after a successful
// probe and records the observed latency (§4.6 "Success → phase remains
// Ready").
func (m *Manager) ReportHealthy(name string, latency time.Duration) error {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("clientmanager: backend %q is not managed", name)
	}

	s.mu.Lock()
	if s.status.Phase == backend.PhaseDegraded {
		s.status.Phase = backend.PhaseReady
	}
	s.status.LastLatency = latency
	s.status.SetCondition(backend.Condition{
		Type: "Healthy", Status: true,
		Reason: "HealthProbeSucceeded", Timestamp: time.Now(),
	})
	s.mu.Unlock()
	return nil
}

// StopAll gracefully shuts down every backend in reverse insertion order,
// within cfg.StopDeadline (§4.2).
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	names := append([]string(nil), m.order...)
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		for i := len(names) - 1; i >= 0; i-- {
			m.mu.RLock()
			s := m.slots[names[i]]
			m.mu.RUnlock()
			m.teardown(s, backend.PhaseShuttingDown)
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(m.cfg.StopDeadline):
		return fmt.Errorf("clientmanager: stop_all exceeded %s deadline", m.cfg.StopDeadline)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown closes s's session if any, cancels a pending retry, and sets
// the phase to finalPhase. It bumps the generation so any in-flight
// connect/retry goroutine for this slot abandons its work.
func (m *Manager) teardown(s *slot, finalPhase backend.Phase) {
	s.mu.Lock()
	s.generation++
	s.retryCount = 0
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	sess := s.session
	s.session = nil
	s.status.Phase = finalPhase
	wasRoutable := false
	s.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			m.logger.Warn("error closing backend session", "backend", s.descriptor.Name, "error", err)
		}
		wasRoutable = true
	}
	if wasRoutable {
		m.triggerRouteChange()
	}
}

func (m *Manager) triggerRouteChange() {
	if m.OnRouteChange != nil {
		m.OnRouteChange()
	}
}
