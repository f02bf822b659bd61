package capability

// Override is one entry of a descriptor's tool_overrides map: the
// replacement exposed name and/or description for one original capability
// name (§4.3). A zero Name leaves the exposed name unchanged; a zero
// Description leaves the description unchanged.
type Override struct {
	Name        string
	Description string
}

// RenameMap holds per-backend rename overrides, keyed by original name.
type RenameMap map[string]Override

// Active reports whether any override is configured.
func (m RenameMap) Active() bool { return len(m) > 0 }

// Apply rewrites each record's ExposedName/Description per the configured
// override for its OriginalName, leaving records without an override
// untouched. The OriginalName is always preserved so routing can reverse
// the rename later.
func (m RenameMap) Apply(records []Record) []Record {
	if !m.Active() {
		return records
	}
	out := make([]Record, len(records))
	for i, r := range records {
		if ov, ok := m[r.OriginalName]; ok {
			if ov.Name != "" {
				r.ExposedName = ov.Name
			}
			if ov.Description != "" {
				r.Description = ov.Description
			}
		}
		out[i] = r
	}
	return out
}
