package clientmanager

import (
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// Catalogs returns the filtered-and-renamed capability catalog for every
// Ready or Degraded backend, in deterministic (name) order, ready to feed
// capability.Build (§4.3, §4.5). A backend's catalog is empty until its
// first successful capability fetch.
func (m *Manager) Catalogs() []capability.BackendCatalog {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	out := make([]capability.BackendCatalog, 0, len(names))
	for _, name := range names {
		m.mu.RLock()
		s := m.slots[name]
		m.mu.RUnlock()

		s.mu.Lock()
		if !s.status.Phase.Routable() {
			s.mu.Unlock()
			continue
		}
		d := s.descriptor
		raw := s.catalog
		s.mu.Unlock()

		out = append(out, capability.BackendCatalog{
			Backend: name,
			Records: buildRecords(d, raw),
		})
	}
	return out
}

// buildRecords converts one backend's raw per-kind catalog into filtered,
// renamed capability.Record values (§4.3).
func buildRecords(d *backend.Descriptor, raw map[capability.Kind][]backend.RawCapability) []capability.Record {
	var out []capability.Record
	for kind, items := range raw {
		records := make([]capability.Record, len(items))
		for i, item := range items {
			records[i] = capability.Record{
				ExposedName:  item.Name,
				OriginalName: item.Name,
				Kind:         kind,
				Backend:      d.Name,
				Description:  item.Description,
				Metadata:     item.Metadata,
			}
		}

		if rules, ok := d.Filters[kind]; ok {
			records = capability.ApplyFilter(records, capability.Filter{Allow: rules.Allow, Deny: rules.Deny})
		}

		// tool_overrides only ever names tool capabilities (§4.3).
		if kind == capability.KindTool && len(d.Overrides) > 0 {
			renames := capability.RenameMap{}
			for origName, ov := range d.Overrides {
				renames[origName] = capability.Override{Name: ov.Name, Description: ov.Description}
			}
			records = renames.Apply(records)
		}

		out = append(out, records...)
	}
	return out
}
