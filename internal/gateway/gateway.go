// Package gateway wires every service package into one runnable
// aggregation gateway: the client manager, capability registry,
// authorization engine, middleware chain, routing terminal, health
// monitor, reload coordinator, and session tracker (§4).
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/diaz3618/mcp-sentinel/internal/adapter/outbound/audit"
	mcpadapter "github.com/diaz3618/mcp-sentinel/internal/adapter/outbound/mcp"
	"github.com/diaz3618/mcp-sentinel/internal/adapter/outbound/memory"
	"github.com/diaz3618/mcp-sentinel/internal/config"
	domainauth "github.com/diaz3618/mcp-sentinel/internal/domain/auth"
	domainaudit "github.com/diaz3618/mcp-sentinel/internal/domain/audit"
	"github.com/diaz3618/mcp-sentinel/internal/domain/authz"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
	"github.com/diaz3618/mcp-sentinel/internal/domain/middleware"
	"github.com/diaz3618/mcp-sentinel/internal/domain/session"
	"github.com/diaz3618/mcp-sentinel/internal/service/clientmanager"
	"github.com/diaz3618/mcp-sentinel/internal/service/health"
	"github.com/diaz3618/mcp-sentinel/internal/service/reload"
	"github.com/diaz3618/mcp-sentinel/internal/service/routing"
	"github.com/diaz3618/mcp-sentinel/internal/service/sessiontracker"
)

// Gateway owns every long-lived service this module runs and exposes the
// single entrypoint — Handle — the inbound transports call into after
// decoding a request (§4).
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	Manager    *clientmanager.Manager
	Registry   *capability.Registry
	AuthzEngine *authz.Engine
	AuditSink  domainaudit.Sink
	Health     *health.Monitor
	Reload     *reload.Coordinator
	Sessions   *sessiontracker.Tracker
	Terminal   *routing.Terminal

	handler middleware.Handler

	closeSink func() error

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New builds every service the gateway needs from cfg, but does not start
// any background goroutine or backend connection — call Start for that.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	descriptors, err := cfg.ToDescriptors()
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve backend descriptors: %w", err)
	}

	sink, err := audit.NewFileSink(audit.FileSinkConfig{
		Dir:           cfg.Audit.Dir,
		RetentionDays: cfg.Audit.RetentionDays,
		MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		CacheSize:     cfg.Audit.BufferSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: open audit sink: %w", err)
	}

	authProvider, err := buildAuthProvider(ctx, cfg.IncomingAuth)
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("gateway: build incoming auth provider: %w", err)
	}

	authzEngine, err := authz.NewEngine(cfg.Authorization.AuthorizationDomain())
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("gateway: compile authorization policies: %w", err)
	}

	registry := capability.NewRegistry(logger)
	registry.OnDropped = func(d capability.DroppedCapability) {
		sink.Append(context.Background(), domainaudit.Event{
			Timestamp: time.Now(),
			Kind:      domainaudit.KindCapabilityDropped,
			Detail: map[string]any{
				"capability_kind": string(d.Kind),
				"exposed_name":    d.ExposedName,
				"winner_backend":  d.WinnerBackend,
				"loser_backend":   d.LoserBackend,
			},
		})
	}

	factories := mcpadapter.Factories(logger)
	manager := clientmanager.New(descriptors, factories, cfg.ClientManager.ClientManagerDomain(), logger)

	conflictCfg := cfg.Conflict.ConflictDomain()
	manager.OnRouteChange = func() {
		if err := registry.Rebuild(func() (capability.BuildResult, error) {
			return capability.Build(manager.Catalogs(), conflictCfg)
		}); err != nil {
			logger.Error("route map rebuild failed", "error", err)
		}
	}

	terminal := routing.New(registry, manager)

	metrics := middleware.NewMetrics(reg)
	handler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Auth(authProvider),
		middleware.Authz(authzEngine),
		middleware.Telemetry(metrics),
		middleware.Audit(sink),
	)(terminal.Handle)

	healthMonitor := health.New(manager, cfg.Health.HealthDomain(), logger)

	reloadCoordinator := reload.New(manager, registry, conflictCfg, descriptors, cfg.Reload.ReloadDomain(), logger)

	sessionStore := memory.NewSessionStore()
	sessions := sessiontracker.New(sessionStore, registry, cfg.Session.SessionDomain(), logger)

	g := &Gateway{
		cfg:         cfg,
		logger:      logger,
		Manager:     manager,
		Registry:    registry,
		AuthzEngine: authzEngine,
		AuditSink:   sink,
		Health:      healthMonitor,
		Reload:      reloadCoordinator,
		Sessions:    sessions,
		Terminal:    terminal,
		handler:     handler,
		closeSink:   sink.Close,
	}
	return g, nil
}

// Start connects every backend, runs the first route-map build, and
// launches the health monitor and session sweeper in the background.
// It returns once every backend's first connect attempt has settled.
func (g *Gateway) Start(ctx context.Context) {
	g.runCtx, g.runCancel = context.WithCancel(context.Background())

	g.Manager.StartAll(ctx)

	conflictCfg := g.cfg.Conflict.ConflictDomain()
	if err := g.Registry.Rebuild(func() (capability.BuildResult, error) {
		return capability.Build(g.Manager.Catalogs(), conflictCfg)
	}); err != nil {
		g.logger.Error("initial route map build failed", "error", err)
	}

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.Health.Run(g.runCtx)
	}()
	go func() {
		defer g.wg.Done()
		g.Sessions.Run(g.runCtx)
	}()
}

// Stop gracefully tears down every backend, stops the background
// goroutines, and flushes the audit sink.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.runCancel != nil {
		g.runCancel()
	}
	g.wg.Wait()

	err := g.Manager.StopAll(ctx)
	if closeErr := g.closeSink(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Handle processes one decoded request through the middleware chain and
// the routing terminal (§4.7, §4.8). NewRequestID should be used by
// transport adapters to populate req.RequestID before calling Handle.
func (g *Gateway) Handle(ctx context.Context, req middleware.Request) middleware.Response {
	return g.handler(ctx, req)
}

// NewRequestID generates a request ID for a freshly-decoded request.
func NewRequestID() string {
	return uuid.NewString()
}

// ReloadConfig re-reads the on-disk configuration, resolves it to a
// descriptor set, and drives the reload coordinator's diff-and-apply cycle
// (§4.11, §6 reload()).
func (g *Gateway) ReloadConfig(ctx context.Context) (*reload.Report, error) {
	next, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("gateway: reload: %w", err)
	}
	next.SetDevDefaults()
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: reload: invalid configuration: %w", err)
	}
	descriptors, err := next.ToDescriptors()
	if err != nil {
		return nil, fmt.Errorf("gateway: reload: %w", err)
	}
	report := g.Reload.Reload(ctx, descriptors)
	g.cfg = next
	return report, nil
}

// ResolveSession returns the upstream session for id, creating one frozen
// at the registry's current snapshot if id is unknown (§4.12).
func (g *Gateway) ResolveSession(ctx context.Context, id string, caller identity.Identity) (*session.Session, error) {
	return g.Sessions.Resolve(ctx, id, caller)
}

func buildAuthProvider(ctx context.Context, cfg config.IncomingAuthConfig) (domainauth.Provider, error) {
	switch cfg.Mode {
	case "", "anonymous":
		return domainauth.AnonymousProvider{}, nil
	case "static":
		tokens, err := cfg.StaticTokensDomain()
		if err != nil {
			return nil, err
		}
		ptrs := make([]*domainauth.StaticToken, len(tokens))
		for i := range tokens {
			ptrs[i] = &tokens[i]
		}
		store := memory.NewTokenStore(ptrs)
		return domainauth.NewStaticProvider(store), nil
	case "jwt":
		return domainauth.NewJWTProvider(ctx, domainauth.JWTProviderConfig{
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			JWKSURL:    cfg.JWT.JWKSURL,
			RolesClaim: cfg.JWT.RolesClaim,
		})
	default:
		return nil, fmt.Errorf("gateway: unknown incoming_auth.mode %q", cfg.Mode)
	}
}
