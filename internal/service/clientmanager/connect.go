package clientmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

var allKinds = []capability.Kind{capability.KindTool, capability.KindResource, capability.KindPrompt}

// connect drives one backend's descriptor through Pending→Initializing and
// on to Ready or Failed, fetching its capability catalog on success. On
// failure it schedules a retry with exponential backoff, grounded on the
// host repository's UpstreamManager.attemptConnect/scheduleRetry.
func (m *Manager) connect(name string) {
	m.mu.RLock()
	s, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	d := s.descriptor
	s.generation++
	gen := s.generation
	s.status.Phase = backend.PhaseInitializing
	s.mu.Unlock()

	factory, ok := m.factories[d.Transport]
	if !ok {
		m.fail(s, gen, fmt.Sprintf("no session factory registered for transport %q", d.Transport))
		return
	}

	session, err := factory(d)
	if err != nil {
		m.fail(s, gen, fmt.Sprintf("create session: %v", err))
		return
	}

	timeouts := d.Timeouts.Resolve()
	initCtx, cancel := context.WithTimeout(m.ctx, timeouts.Init)
	info, err := session.Initialize(initCtx)
	cancel()
	if err != nil {
		_ = session.Close()
		m.fail(s, gen, fmt.Sprintf("initialize: %v", err))
		return
	}

	s.mu.Lock()
	if s.generation != gen {
		// A newer reconnect or teardown raced us; our session is stale.
		s.mu.Unlock()
		_ = session.Close()
		return
	}
	s.session = session
	s.status.Phase = backend.PhaseReady
	s.status.LastError = ""
	s.retryCount = 0
	s.status.SetCondition(backend.Condition{
		Type: "Initialized", Status: true,
		Reason: "HandshakeComplete", Message: info.Name + " " + info.Version,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	m.logger.Info("backend ready", "backend", d.Name, "server", info.Name, "version", info.Version)

	m.fetchCapabilities(s, gen)
	m.triggerRouteChange()
}

// fetchCapabilities pulls the raw catalog for every kind and records the
// counts. A fetch failure here does not fail the backend — it stays Ready
// with whatever catalog it had (empty on first fetch); the health monitor,
// not the capability fetch, decides liveness.
func (m *Manager) fetchCapabilities(s *slot, gen uint64) {
	s.mu.Lock()
	d := s.descriptor
	session := s.session
	s.mu.Unlock()
	if session == nil {
		return
	}

	timeouts := d.Timeouts.Resolve()
	counts := backend.CapabilityCounts{}
	catalog := make(map[capability.Kind][]backend.RawCapability, len(allKinds))
	for _, kind := range allKinds {
		ctx, cancel := context.WithTimeout(m.ctx, timeouts.CapFetch)
		raw, err := session.ListCapabilities(ctx, kind)
		cancel()
		if err != nil {
			m.logger.Warn("capability fetch failed", "backend", d.Name, "kind", kind, "error", err)
			continue
		}
		catalog[kind] = raw
		switch kind {
		case capability.KindTool:
			counts.Tools = len(raw)
		case capability.KindResource:
			counts.Resources = len(raw)
		case capability.KindPrompt:
			counts.Prompts = len(raw)
		}
	}

	s.mu.Lock()
	if s.generation == gen {
		s.status.Capabilities = counts
		s.catalog = catalog
	}
	s.mu.Unlock()
}

// fail records a failed connect attempt and schedules a retry.
func (m *Manager) fail(s *slot, gen uint64, reason string) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.status.Phase = backend.PhaseFailed
	s.status.LastError = reason
	s.status.SetCondition(backend.Condition{
		Type: "Initialized", Status: false,
		Reason: "ConnectFailed", Message: reason, Timestamp: time.Now(),
	})
	name := s.descriptor.Name
	s.mu.Unlock()

	m.logger.Error("backend connect failed", "backend", name, "reason", reason)
	m.scheduleRetry(s, gen)
}

// scheduleRetry schedules a reconnection attempt with exponential backoff
// (base * 2^retryCount, capped), grounded on the host repository's
// UpstreamManager.calcBackoffDelay/scheduleRetry.
func (m *Manager) scheduleRetry(s *slot, gen uint64) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	if s.retryCount >= m.cfg.MaxRetries {
		s.status.LastError = fmt.Sprintf("max retries (%d) exceeded", m.cfg.MaxRetries)
		name := s.descriptor.Name
		s.mu.Unlock()
		m.logger.Error("max retries exceeded, giving up", "backend", name, "retries", m.cfg.MaxRetries)
		return
	}

	delay := m.backoffDelay(s.retryCount)
	s.retryCount++
	retryCtx, retryCancel := context.WithCancel(m.ctx)
	s.cancelRetry = retryCancel
	name := s.descriptor.Name
	attempt := s.retryCount
	s.mu.Unlock()

	m.logger.Info("scheduling backend reconnect", "backend", name, "attempt", attempt, "delay", delay)

	go func() {
		select {
		case <-time.After(delay):
		case <-retryCtx.Done():
			return
		}

		s.mu.Lock()
		stale := s.generation != gen
		s.mu.Unlock()
		if stale {
			return
		}
		m.connect(name)
	}()
}

func (m *Manager) backoffDelay(retryCount int) time.Duration {
	delay := m.cfg.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay > m.cfg.BackoffCap {
			return m.cfg.BackoffCap
		}
	}
	if delay > m.cfg.BackoffCap {
		return m.cfg.BackoffCap
	}
	return delay
}
