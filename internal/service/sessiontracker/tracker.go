// Package sessiontracker creates and evicts upstream MCP client sessions
// (§4.12), freezing a route map snapshot per session at creation time.
package sessiontracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
	"github.com/diaz3618/mcp-sentinel/internal/domain/session"
)

// DefaultTTL is the inactivity timeout applied when Config.TTL is zero.
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is how often the background sweep runs when
// Config.SweepInterval is zero.
const DefaultSweepInterval = time.Minute

// Config configures a Tracker.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Tracker creates a session record on first authenticated request and
// evicts idle sessions on a background sweep.
type Tracker struct {
	store    session.Store
	registry *capability.Registry
	logger   *slog.Logger

	ttl           time.Duration
	sweepInterval time.Duration
}

// New builds a Tracker backed by store, freezing snapshots from registry.
func New(store session.Store, registry *capability.Registry, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Tracker{
		store:         store,
		registry:      registry,
		logger:        logger,
		ttl:           ttl,
		sweepInterval: interval,
	}
}

// Resolve returns the existing session for id if it has not expired,
// touching its LastActivity. If id is unknown, it creates a new session
// for id owned by caller, freezing the registry's currently published
// snapshot. A session ID collision from two concurrent first-requests is
// resolved by the store: the loser of Create's race falls back to Get.
func (t *Tracker) Resolve(ctx context.Context, id string, caller identity.Identity) (*session.Session, error) {
	now := time.Now()

	sess, err := t.store.Get(ctx, id)
	if err == nil {
		if sess.IsExpired(now, t.ttl) {
			_ = t.store.Delete(ctx, id)
		} else {
			_ = t.store.Touch(ctx, id, now)
			sess.Touch(now)
			return sess, nil
		}
	}

	sess = &session.Session{
		ID:           id,
		Identity:     caller,
		Snapshot:     t.registry.Current(),
		CreatedAt:    now,
		LastActivity: now,
	}
	if createErr := t.store.Create(ctx, sess); createErr != nil {
		if createErr == session.ErrSessionExists {
			return t.store.Get(ctx, id)
		}
		return nil, createErr
	}
	return sess, nil
}

// Delete removes a session, for explicit client-initiated teardown.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	return t.store.Delete(ctx, id)
}

// Run sweeps expired sessions on Config.SweepInterval until ctx is
// cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			evicted := t.store.Sweep(ctx, func(s *session.Session) bool {
				return s.IsExpired(now, t.ttl)
			})
			if evicted > 0 {
				t.logger.Debug("session sweep evicted idle sessions", "count", evicted)
			}
		}
	}
}
