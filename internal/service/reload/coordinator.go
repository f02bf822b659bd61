// Package reload implements the reload coordinator (§4.11): diffing a new
// descriptor set against the currently active one by name and content
// hash, transitioning added/removed/changed backends through the client
// manager, and triggering exactly one route-map rebuild once every
// transition has settled.
package reload

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/service/clientmanager"
)

// DefaultDeadline bounds how long Reload waits for transitioned backends
// to settle before giving up and reporting whatever state they're in.
const DefaultDeadline = 60 * time.Second

// DefaultSettlePollInterval is how often Reload polls the client
// manager's snapshot while waiting for transitioned backends to settle.
const DefaultSettlePollInterval = 25 * time.Millisecond

// Config configures a Coordinator.
type Config struct {
	Deadline          time.Duration
	SettlePollInterval time.Duration
}

func (c Config) resolve() Config {
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.SettlePollInterval <= 0 {
		c.SettlePollInterval = DefaultSettlePollInterval
	}
	return c
}

// Report summarizes one Reload call (§4.11 step 9).
type Report struct {
	Added   []string          `json:"added"`
	Removed []string          `json:"removed"`
	Changed []string          `json:"changed"`
	Errors  map[string]string `json:"errors"`
}

// Coordinator serializes reload operations against each other — never
// against ordinary request traffic, which the client manager, registry,
// and health monitor continue servicing throughout (§4.11).
type Coordinator struct {
	manager  *clientmanager.Manager
	registry *capability.Registry
	conflict capability.ConflictConfig
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex // the global reload lock; held for the duration of one Reload call
	current map[string]*backend.Descriptor
}

// New builds a Coordinator whose notion of "currently active" starts from
// initial — typically the descriptor set the client manager was
// constructed with.
func New(manager *clientmanager.Manager, registry *capability.Registry, conflict capability.ConflictConfig, initial []*backend.Descriptor, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	current := make(map[string]*backend.Descriptor, len(initial))
	for _, d := range initial {
		current[d.Name] = d
	}
	return &Coordinator{
		manager:  manager,
		registry: registry,
		conflict: conflict,
		cfg:      cfg.resolve(),
		logger:   logger,
		current:  current,
	}
}

// Reload diffs next against the currently active descriptor set, applies
// the added/removed/changed transitions, waits for them to settle, and
// triggers one route-map rebuild (§4.11). Only one Reload runs at a time;
// a second caller blocks until the first returns.
func (c *Coordinator) Reload(ctx context.Context, next []*backend.Descriptor) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	added, removed, changed := diff(c.current, next)

	report := &Report{Errors: make(map[string]string)}
	var reportMu sync.Mutex
	recordErr := func(name string, err error) {
		if err == nil {
			return
		}
		reportMu.Lock()
		report.Errors[name] = err.Error()
		reportMu.Unlock()
	}

	transitioned := make([]string, 0, len(added)+len(changed))
	for _, d := range added {
		transitioned = append(transitioned, d.Name)
	}
	for _, d := range changed {
		transitioned = append(transitioned, d.Name)
	}

	var wg sync.WaitGroup
	for _, name := range removed {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			recordErr(name, c.manager.RemoveBackend(name))
		}()
	}
	for _, d := range added {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			recordErr(d.Name, c.manager.AddBackend(d))
		}()
	}
	for _, d := range changed {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			recordErr(d.Name, c.manager.Replace(d))
		}()
	}
	wg.Wait()

	c.waitForSettled(ctx, transitioned)

	if err := c.registry.Rebuild(func() (capability.BuildResult, error) {
		return capability.Build(c.manager.Catalogs(), c.conflict)
	}); err != nil {
		report.Errors["route_map_rebuild"] = err.Error()
	}

	newCurrent := make(map[string]*backend.Descriptor, len(next))
	for _, d := range next {
		newCurrent[d.Name] = d
	}
	c.current = newCurrent

	report.Added = namesOf(added)
	report.Removed = append([]string(nil), removed...)
	report.Changed = namesOf(changed)
	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	sort.Strings(report.Changed)
	return report
}

// waitForSettled polls the client manager until every name in names has
// reached Ready, Degraded, or Failed, or the deadline elapses, whichever
// comes first (§4.11 step 7).
func (c *Coordinator) waitForSettled(ctx context.Context, names []string) {
	if len(names) == 0 {
		return
	}
	pending := make(map[string]bool, len(names))
	for _, n := range names {
		pending[n] = true
	}

	deadline := time.Now().Add(c.cfg.Deadline)
	ticker := time.NewTicker(c.cfg.SettlePollInterval)
	defer ticker.Stop()

	settle := func() {
		for _, rec := range c.manager.Snapshot() {
			if !pending[rec.Name] {
				continue
			}
			switch rec.Phase {
			case backend.PhaseReady, backend.PhaseDegraded, backend.PhaseFailed:
				delete(pending, rec.Name)
			}
		}
	}

	settle()
	for len(pending) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settle()
		}
	}
	if len(pending) > 0 {
		stuck := make([]string, 0, len(pending))
		for n := range pending {
			stuck = append(stuck, n)
		}
		sort.Strings(stuck)
		c.logger.Warn("reload deadline elapsed with backends unsettled", "backends", stuck)
	}
}

// diff splits next into added, removed, and changed relative to current,
// comparing descriptors by name and by ComputeContentHash (§4.11 step 3).
func diff(current map[string]*backend.Descriptor, next []*backend.Descriptor) (added []*backend.Descriptor, removed []string, changed []*backend.Descriptor) {
	seen := make(map[string]bool, len(next))
	for _, d := range next {
		seen[d.Name] = true
		old, existed := current[d.Name]
		switch {
		case !existed:
			added = append(added, d)
		case old.ComputeContentHash() != d.ComputeContentHash():
			changed = append(changed, d)
		}
	}
	for name := range current {
		if !seen[name] {
			removed = append(removed, name)
		}
	}
	return added, removed, changed
}

func namesOf(descriptors []*backend.Descriptor) []string {
	out := make([]string, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.Name
	}
	return out
}
