// Package health runs the periodic liveness probe against every Ready or
// Degraded backend and drives the Degraded/Failed transitions the client
// manager's phase machine can't decide on its own (§4.6).
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/service/clientmanager"
)

// Default probe parameters, grounded on the health-monitor defaults this
// module specifies: a 30s probe interval, a one-strike Degraded threshold,
// a three-strike Failed threshold, and a 5s slow-latency threshold.
const (
	DefaultInterval         = 30 * time.Second
	DefaultDegradedThreshold = 1
	DefaultFailedThreshold   = 3
	DefaultLatencyThreshold  = 5 * time.Second
	DefaultSlowThreshold     = 3
	DefaultProbeTimeout      = 10 * time.Second
)

// Config configures a Monitor.
type Config struct {
	Interval          time.Duration
	DegradedThreshold int
	FailedThreshold   int
	LatencyThreshold  time.Duration
	SlowThreshold     int
	ProbeTimeout      time.Duration
}

func (c Config) resolve() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = DefaultDegradedThreshold
	}
	if c.FailedThreshold <= 0 {
		c.FailedThreshold = DefaultFailedThreshold
	}
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = DefaultLatencyThreshold
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return c
}

// Monitor owns the rolling consecutive-failure and consecutive-slow
// counters for every backend it probes. It holds no reference to a
// backend's session directly — every probe goes through the client
// manager, which is the only thing allowed to hand out or tear down a
// session.
type Monitor struct {
	manager *clientmanager.Manager
	cfg     Config
	logger  *slog.Logger

	mu            sync.Mutex
	failureCounts map[string]int
	slowCounts    map[string]int
}

// New builds a Monitor probing the backends manager currently tracks.
func New(manager *clientmanager.Manager, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		manager:       manager,
		cfg:           cfg.resolve(),
		logger:        logger,
		failureCounts: make(map[string]int),
		slowCounts:    make(map[string]int),
	}
}

// Run probes every routable backend on a fixed interval until ctx is
// done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll fires one ping per Ready/Degraded backend concurrently and
// waits for them all to settle before returning, so two ticks never
// overlap their probes for the same backend.
func (m *Monitor) probeAll(ctx context.Context) {
	snapshot := m.manager.Snapshot()

	var wg sync.WaitGroup
	for _, rec := range snapshot {
		if !rec.Phase.Routable() {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			m.probe(ctx, name)
		}(rec.Name)
	}
	wg.Wait()
}

// probe pings one backend and records the outcome. A backend with no
// live session (it was torn down between Snapshot and this probe) is
// silently skipped; the next tick will pick it up again once it
// reconnects.
func (m *Monitor) probe(ctx context.Context, name string) {
	session := m.manager.Session(name)
	if session == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	start := time.Now()
	err := session.Ping(probeCtx)
	cancel()
	latency := time.Since(start)

	if err != nil {
		m.recordFailure(name, fmt.Sprintf("ping failed: %v", err))
		return
	}
	m.recordSuccess(name, latency)
}

// recordFailure increments name's consecutive-failure counter and
// escalates to Degraded or Failed once it crosses the configured
// thresholds (§4.6).
func (m *Monitor) recordFailure(name, reason string) {
	m.mu.Lock()
	m.failureCounts[name]++
	count := m.failureCounts[name]
	m.slowCounts[name] = 0
	m.mu.Unlock()

	switch {
	case count >= m.cfg.FailedThreshold:
		m.mu.Lock()
		delete(m.failureCounts, name)
		delete(m.slowCounts, name)
		m.mu.Unlock()
		if err := m.manager.Fail(name, reason); err != nil {
			m.logger.Warn("health monitor: fail transition rejected", "backend", name, "error", err)
		}
	case count >= m.cfg.DegradedThreshold:
		if err := m.manager.Degrade(name, reason); err != nil {
			m.logger.Warn("health monitor: degrade transition rejected", "backend", name, "error", err)
		}
	}
}

// recordSuccess resets name's failure counter and evaluates the separate
// slow-latency counter, which degrades a backend that is technically
// answering but consistently slow (§4.6).
func (m *Monitor) recordSuccess(name string, latency time.Duration) {
	m.mu.Lock()
	m.failureCounts[name] = 0
	slow := false
	if latency > m.cfg.LatencyThreshold {
		m.slowCounts[name]++
		slow = m.slowCounts[name] >= m.cfg.SlowThreshold
	} else {
		m.slowCounts[name] = 0
	}
	m.mu.Unlock()

	if slow {
		if err := m.manager.Degrade(name, fmt.Sprintf(
			"latency %s exceeded %s threshold for %d consecutive probes",
			latency, m.cfg.LatencyThreshold, m.cfg.SlowThreshold,
		)); err != nil {
			m.logger.Warn("health monitor: degrade transition rejected", "backend", name, "error", err)
		}
		return
	}
	if err := m.manager.ReportHealthy(name, latency); err != nil {
		m.logger.Warn("health monitor: report-healthy rejected", "backend", name, "error", err)
	}
}
