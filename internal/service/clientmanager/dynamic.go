package clientmanager

import (
	"fmt"
	"sort"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// AddBackend registers a new descriptor and starts its connect cycle in
// the background. Returns an error if name is already managed or the
// manager has been stopped. Used by the reload coordinator's "added" set
// (§4.11).
func (m *Manager) AddBackend(d *backend.Descriptor) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("clientmanager: manager is stopped")
	}
	if _, exists := m.slots[d.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("clientmanager: backend %q is already managed", d.Name)
	}
	m.slots[d.Name] = &slot{
		descriptor: d,
		status:     backend.StatusRecord{Name: d.Name, Phase: backend.PhasePending},
	}
	m.order = append(m.order, d.Name)
	sort.Strings(m.order)
	m.mu.Unlock()

	go m.connect(d.Name)
	return nil
}

// RemoveBackend tears down name's session, if any, and drops it from the
// managed set entirely. Used by the reload coordinator's "removed" set
// (§4.11). Unlike Fail/Degrade, a removed backend is gone — Session and
// Snapshot stop reporting it at all, not just as unroutable.
func (m *Manager) RemoveBackend(name string) error {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("clientmanager: backend %q is not managed", name)
	}
	delete(m.slots, name)
	m.order = removeName(m.order, name)
	m.mu.Unlock()

	m.teardown(s, backend.PhaseShuttingDown)
	return nil
}

// Replace swaps an existing backend's descriptor for d (same name) and
// restarts its connect cycle against the new descriptor. Used by the
// reload coordinator's "changed" set (§4.11): move to ShuttingDown, then
// start fresh, without the name ever leaving the managed set (so a
// concurrent Session/Snapshot call never observes it as absent).
func (m *Manager) Replace(d *backend.Descriptor) error {
	m.mu.RLock()
	s, ok := m.slots[d.Name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("clientmanager: backend %q is not managed", d.Name)
	}

	m.teardown(s, backend.PhaseShuttingDown)

	s.mu.Lock()
	s.descriptor = d
	s.catalog = nil
	s.mu.Unlock()

	go m.connect(d.Name)
	return nil
}

// Names returns the managed backend names in deterministic order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func removeName(names []string, target string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}
