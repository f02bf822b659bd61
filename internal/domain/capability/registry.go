package capability

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is the immutable value published by Registry.Rebuild. Readers
// obtain one with an atomic load and never block (Invariant 3).
type Snapshot struct {
	Routes  map[Kind]map[string]RouteEntry
	Catalog []Record
	BuiltAt time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Routes: map[Kind]map[string]RouteEntry{
			KindTool: {}, KindResource: {}, KindPrompt: {},
		},
		BuiltAt: time.Now(),
	}
}

// BuildFunc produces a BuildResult from whatever inputs are current at
// call time — the client manager's per-backend catalogs plus the
// deployment's conflict-resolution configuration. Registry calls it on
// its own goroutine during Rebuild, never holding a caller-supplied lock.
type BuildFunc func() (BuildResult, error)

// Registry holds the currently published route map and flat catalog
// (§4.5), published through an atomic pointer swap. Readers never block:
// Resolve does not allocate, and List allocates only the slice it returns.
// Writers (Rebuild) are coalesced:
// a rebuild already in flight absorbs any request that arrives while it
// runs into exactly one follow-up rebuild.
type Registry struct {
	snapshot atomic.Pointer[Snapshot]

	mu          sync.Mutex // guards rebuilding/pending only, never the hot read path
	rebuilding  bool
	pending     bool

	logger *slog.Logger

	// OnDropped, when set, is invoked once per dropped capability after
	// each successful rebuild. The registry itself only ever writes to
	// the operator log (below); OnDropped is how the audit recorder
	// (a distinct, typed channel per §9) learns about capability_dropped
	// events without the registry depending on the audit package.
	OnDropped func(DroppedCapability)
}

// NewRegistry creates a Registry with an empty published snapshot.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	r.snapshot.Store(emptySnapshot())
	return r
}

// Resolve performs a single-lookup read against the published snapshot.
// Never blocks, never allocates (Invariant 3, §4.5).
func (r *Registry) Resolve(kind Kind, exposedName string) (RouteEntry, bool) {
	snap := r.snapshot.Load()
	entry, ok := snap.Routes[kind][exposedName]
	return entry, ok
}

// List returns the catalog entries of kind that pass filter (nil filter
// matches everything), drawn from the currently published snapshot.
func (r *Registry) List(kind Kind, filter func(Record) bool) []Record {
	snap := r.snapshot.Load()
	out := make([]Record, 0, len(snap.Catalog))
	for _, rec := range snap.Catalog {
		if rec.Kind != kind {
			continue
		}
		if filter != nil && !filter(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Current returns the currently published snapshot, for session-tracker
// per-session freezing (§4.12) and the management capabilities_snapshot
// surface (§6).
func (r *Registry) Current() *Snapshot {
	return r.snapshot.Load()
}

// Rebuild runs build, and on success installs the result via an atomic
// pointer swap. If a rebuild is already running when Rebuild is called, the
// new request is folded into a single follow-up rebuild that runs
// immediately after the in-flight one completes, rather than running two
// concurrent builds (§4.5 "coalesces rebuild requests").
func (r *Registry) Rebuild(build BuildFunc) error {
	r.mu.Lock()
	if r.rebuilding {
		r.pending = true
		r.mu.Unlock()
		return nil
	}
	r.rebuilding = true
	r.mu.Unlock()

	err := r.runOnce(build)

	for {
		r.mu.Lock()
		if !r.pending {
			r.rebuilding = false
			r.mu.Unlock()
			return err
		}
		r.pending = false
		r.mu.Unlock()

		err = r.runOnce(build)
	}
}

func (r *Registry) runOnce(build BuildFunc) error {
	result, err := build()
	if err != nil {
		r.logger.Error("route map rebuild aborted", "error", err)
		return err
	}

	snap := &Snapshot{Routes: result.Routes, Catalog: result.Catalog, BuiltAt: time.Now()}
	r.snapshot.Store(snap)

	for _, d := range result.Dropped {
		r.logger.Warn("capability dropped by conflict resolver",
			"kind", d.Kind, "exposed_name", d.ExposedName,
			"winner_backend", d.WinnerBackend, "loser_backend", d.LoserBackend)
		if r.OnDropped != nil {
			r.OnDropped(d)
		}
	}
	return nil
}
