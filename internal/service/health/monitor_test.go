package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/service/clientmanager"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type pingSession struct {
	mu      sync.Mutex
	pingErr error
	delay   time.Duration
}

func (p *pingSession) Initialize(ctx context.Context) (backend.ServerInfo, error) {
	return backend.ServerInfo{Name: "fake"}, nil
}

func (p *pingSession) ListCapabilities(ctx context.Context, kind capability.Kind) ([]backend.RawCapability, error) {
	return nil, nil
}

func (p *pingSession) Call(ctx context.Context, method, name string, args json.RawMessage) (backend.CallResult, error) {
	return backend.CallResult{}, nil
}

func (p *pingSession) Ping(ctx context.Context) error {
	p.mu.Lock()
	err, delay := p.pingErr, p.delay
	p.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *pingSession) Close() error { return nil }

func (p *pingSession) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingErr = err
}

func newManagerWithSession(t *testing.T, name string, sess backend.Session) (*clientmanager.Manager, *pingSession) {
	t.Helper()
	fake, ok := sess.(*pingSession)
	if !ok {
		t.Fatalf("expected *pingSession")
	}
	factory := map[backend.Transport]backend.Factory{
		backend.TransportStdio: func(d *backend.Descriptor) (backend.Session, error) {
			return fake, nil
		},
	}
	m := clientmanager.New([]*backend.Descriptor{{
		Name:      name,
		Transport: backend.TransportStdio,
		Connect:   backend.Connect{Command: "true"},
	}}, factory, clientmanager.Config{}, testLogger())
	m.StartAll(context.Background())
	return m, fake
}

func waitForPhase(t *testing.T, m *clientmanager.Manager, name string, want backend.Phase, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, rec := range m.Snapshot() {
			if rec.Name == name && rec.Phase == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("backend %q did not reach phase %v within %s", name, want, timeout)
}

func TestMonitor_SuccessKeepsReady(t *testing.T) {
	t.Parallel()

	m, _ := newManagerWithSession(t, "alpha", &pingSession{})
	mon := New(m, Config{DegradedThreshold: 1, FailedThreshold: 3}, testLogger())

	mon.probeAll(context.Background())

	snap := m.Snapshot()
	if snap[0].Phase != backend.PhaseReady {
		t.Fatalf("Phase = %v, want Ready", snap[0].Phase)
	}
	if snap[0].LastLatency < 0 {
		t.Errorf("LastLatency = %s, want non-negative", snap[0].LastLatency)
	}
}

func TestMonitor_OneFailureDegrades(t *testing.T) {
	t.Parallel()

	fake := &pingSession{pingErr: errors.New("timeout")}
	m, _ := newManagerWithSession(t, "alpha", fake)
	mon := New(m, Config{DegradedThreshold: 1, FailedThreshold: 3}, testLogger())

	mon.probeAll(context.Background())

	snap := m.Snapshot()
	if snap[0].Phase != backend.PhaseDegraded {
		t.Fatalf("Phase after one failure = %v, want Degraded", snap[0].Phase)
	}
}

func TestMonitor_ThreeFailuresFails(t *testing.T) {
	t.Parallel()

	fake := &pingSession{pingErr: errors.New("timeout")}
	m, _ := newManagerWithSession(t, "alpha", fake)
	mon := New(m, Config{DegradedThreshold: 1, FailedThreshold: 3}, testLogger())

	mon.probeAll(context.Background())
	mon.probeAll(context.Background())
	mon.probeAll(context.Background())

	waitForPhase(t, m, "alpha", backend.PhaseFailed, time.Second)
}

func TestMonitor_RecoveryReturnsToReady(t *testing.T) {
	t.Parallel()

	fake := &pingSession{pingErr: errors.New("timeout")}
	m, _ := newManagerWithSession(t, "alpha", fake)
	mon := New(m, Config{DegradedThreshold: 1, FailedThreshold: 3}, testLogger())

	mon.probeAll(context.Background())
	if m.Snapshot()[0].Phase != backend.PhaseDegraded {
		t.Fatalf("expected Degraded after failure")
	}

	fake.setErr(nil)
	mon.probeAll(context.Background())

	if m.Snapshot()[0].Phase != backend.PhaseReady {
		t.Fatalf("Phase after recovery = %v, want Ready", m.Snapshot()[0].Phase)
	}
}

func TestMonitor_SlowLatencyDegradesAfterThreeConsecutive(t *testing.T) {
	t.Parallel()

	fake := &pingSession{delay: 20 * time.Millisecond}
	m, _ := newManagerWithSession(t, "alpha", fake)
	mon := New(m, Config{
		DegradedThreshold: 1,
		FailedThreshold:   3,
		LatencyThreshold:  time.Millisecond,
		SlowThreshold:     3,
		ProbeTimeout:      time.Second,
	}, testLogger())

	mon.probeAll(context.Background())
	if m.Snapshot()[0].Phase != backend.PhaseReady {
		t.Fatalf("one slow probe should not degrade yet, got %v", m.Snapshot()[0].Phase)
	}
	mon.probeAll(context.Background())
	mon.probeAll(context.Background())

	if m.Snapshot()[0].Phase != backend.PhaseDegraded {
		t.Fatalf("Phase after three slow probes = %v, want Degraded", m.Snapshot()[0].Phase)
	}
}

func TestMonitor_SkipsUnmanagedOrTornDownBackend(t *testing.T) {
	t.Parallel()

	m, _ := newManagerWithSession(t, "alpha", &pingSession{})
	mon := New(m, Config{}, testLogger())

	_ = m.Fail("alpha", "manual teardown for test")
	// probing a Failed backend should be a no-op, not a panic.
	mon.probeAll(context.Background())
}
