package backend

import "sort"

// GroupIndex tracks backend-name → group-label membership, derived from
// the descriptor set. It supplements the core's descriptor model with the
// server-group bookkeeping the management surface uses to answer
// "list backends in group X" queries; it is rebuilt whenever the client
// manager's descriptor set changes and holds no state of its own beyond
// that derivation.
type GroupIndex struct {
	byGroup map[string][]string
	byName  map[string]string
}

// BuildGroupIndex derives a GroupIndex from a descriptor set.
func BuildGroupIndex(descriptors []*Descriptor) *GroupIndex {
	idx := &GroupIndex{
		byGroup: make(map[string][]string),
		byName:  make(map[string]string),
	}
	for _, d := range descriptors {
		g := d.GroupOrDefault()
		idx.byName[d.Name] = g
		idx.byGroup[g] = append(idx.byGroup[g], d.Name)
	}
	for _, names := range idx.byGroup {
		sort.Strings(names)
	}
	return idx
}

// Groups returns the sorted list of distinct group labels.
func (idx *GroupIndex) Groups() []string {
	out := make([]string, 0, len(idx.byGroup))
	for g := range idx.byGroup {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// GroupOf returns the group a backend belongs to, or DefaultGroup if the
// backend is unknown to this index.
func (idx *GroupIndex) GroupOf(name string) string {
	if g, ok := idx.byName[name]; ok {
		return g
	}
	return DefaultGroup
}

// Members returns the sorted backend names in a group.
func (idx *GroupIndex) Members(group string) []string {
	out := idx.byGroup[group]
	return append([]string(nil), out...)
}

// Summary returns {group: [backend names]} for every group, for the
// management API.
func (idx *GroupIndex) Summary() map[string][]string {
	out := make(map[string][]string, len(idx.byGroup))
	for g, names := range idx.byGroup {
		out[g] = append([]string(nil), names...)
	}
	return out
}
