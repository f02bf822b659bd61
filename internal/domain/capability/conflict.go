package capability

import "fmt"

// Strategy names the conflict-resolution policy the route-map build uses
// when two backends expose the same name for the same kind (§4.4).
type Strategy string

const (
	StrategyFirstWins Strategy = "first-wins"
	StrategyPrefix    Strategy = "prefix"
	StrategyPriority  Strategy = "priority"
	StrategyError     Strategy = "error"
)

// ValidStrategy reports whether s is one of the four named strategies. A
// configuration naming "manual" or anything else is rejected at load time
// by this check, never reaching the conflict resolver.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyFirstWins, StrategyPrefix, StrategyPriority, StrategyError:
		return true
	default:
		return false
	}
}

// ConflictConfig selects and parameterizes the resolution strategy.
type ConflictConfig struct {
	Strategy      Strategy
	Separator     string // used by prefix and priority's fallback rename; default "_"
	PriorityOrder []string
}

func (c ConflictConfig) separator() string {
	if c.Separator == "" {
		return "_"
	}
	return c.Separator
}

// ConflictError is returned by Build under StrategyError when any
// collision is found; the build is aborted and no partial map is
// published (§4.4).
type ConflictError struct {
	Kind           Kind
	ExposedName    string
	ExistingBackend string
	NewBackend     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("capability conflict: %s %q already registered by %q, %q also claims it",
		e.Kind, e.ExposedName, e.ExistingBackend, e.NewBackend)
}

// DroppedCapability is emitted for audit whenever a strategy discards a
// losing entry outright. first-wins and prefix drop the later entry on a
// collision. priority drops the incumbent when a later backend outranks
// it, and drops an outranked newcomer whose prefixed name is also taken;
// an outranked newcomer otherwise stays under its prefixed name.
type DroppedCapability struct {
	Kind            Kind
	ExposedName     string
	WinnerBackend   string
	LoserBackend    string
}

// BackendCatalog is one backend's filtered-and-renamed capability list,
// in the insertion order the client manager's descriptor set declares.
type BackendCatalog struct {
	Backend string
	Records []Record
}

// BuildResult is the output of Build: per-kind route maps, a flat catalog
// for list queries, and the dropped-capability events to audit.
type BuildResult struct {
	Routes  map[Kind]map[string]RouteEntry
	Catalog []Record
	Dropped []DroppedCapability
}

// Build merges the per-backend catalogs into a single route map per kind,
// per cfg.Strategy. Backends are processed in the order given; all four
// strategies tie-break equal-priority collisions in that same order
// (§4.4 "Tie-breaks").
func Build(backends []BackendCatalog, cfg ConflictConfig) (BuildResult, error) {
	priority := map[string]int{}
	for i, name := range cfg.PriorityOrder {
		priority[name] = i
	}
	unlistedPriority := len(cfg.PriorityOrder)

	routes := map[Kind]map[string]RouteEntry{
		KindTool: {}, KindResource: {}, KindPrompt: {},
	}
	// winnerBackend[kind][exposedName] tracks which backend currently
	// holds the route, for priority's replace decision.
	winnerBackend := map[Kind]map[string]string{
		KindTool: {}, KindResource: {}, KindPrompt: {},
	}
	var catalog []Record
	var dropped []DroppedCapability

	for _, bc := range backends {
		for _, rec := range bc.Records {
			rec.Backend = bc.Backend
			exposed := rec.ExposedName

			switch cfg.Strategy {
			case StrategyPrefix:
				exposed = bc.Backend + cfg.separator() + exposed
				rec.ExposedName = exposed
			}

			existing, collision := routes[rec.Kind][exposed]
			if !collision {
				routes[rec.Kind][exposed] = RouteEntry{Backend: rec.Backend, OriginalName: rec.OriginalName, Kind: rec.Kind}
				winnerBackend[rec.Kind][exposed] = rec.Backend
				catalog = append(catalog, rec)
				continue
			}

			switch cfg.Strategy {
			case StrategyError:
				return BuildResult{}, &ConflictError{
					Kind: rec.Kind, ExposedName: exposed,
					ExistingBackend: existing.Backend, NewBackend: rec.Backend,
				}

			case StrategyFirstWins, StrategyPrefix:
				dropped = append(dropped, DroppedCapability{
					Kind: rec.Kind, ExposedName: exposed,
					WinnerBackend: existing.Backend, LoserBackend: rec.Backend,
				})

			case StrategyPriority:
				newPri := priorityOf(priority, rec.Backend, unlistedPriority)
				existingPri := priorityOf(priority, existing.Backend, unlistedPriority)
				if newPri < existingPri {
					// New backend outranks the incumbent: replace.
					routes[rec.Kind][exposed] = RouteEntry{Backend: rec.Backend, OriginalName: rec.OriginalName, Kind: rec.Kind}
					winnerBackend[rec.Kind][exposed] = rec.Backend
					catalog = replaceInCatalog(catalog, rec.Kind, exposed, rec)
					dropped = append(dropped, DroppedCapability{
						Kind: rec.Kind, ExposedName: exposed,
						WinnerBackend: rec.Backend, LoserBackend: existing.Backend,
					})
					continue
				}
				// Incumbent wins; rename the new entry with a prefix so
				// it is not silently dropped.
				prefixed := rec.Backend + cfg.separator() + exposed
				rec.ExposedName = prefixed
				if _, taken := routes[rec.Kind][prefixed]; !taken {
					routes[rec.Kind][prefixed] = RouteEntry{Backend: rec.Backend, OriginalName: rec.OriginalName, Kind: rec.Kind}
					catalog = append(catalog, rec)
				} else {
					dropped = append(dropped, DroppedCapability{
						Kind: rec.Kind, ExposedName: prefixed,
						WinnerBackend: existing.Backend, LoserBackend: rec.Backend,
					})
				}
			}
		}
	}

	return BuildResult{Routes: routes, Catalog: catalog, Dropped: dropped}, nil
}

func priorityOf(priority map[string]int, backend string, unlisted int) int {
	if p, ok := priority[backend]; ok {
		return p
	}
	return unlisted
}

func replaceInCatalog(catalog []Record, kind Kind, exposed string, replacement Record) []Record {
	for i, r := range catalog {
		if r.Kind == kind && r.ExposedName == exposed {
			catalog[i] = replacement
			return catalog
		}
	}
	return append(catalog, replacement)
}
