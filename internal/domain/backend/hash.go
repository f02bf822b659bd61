package backend

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// ComputeContentHash digests every field the reload coordinator must treat
// as "this backend changed" (§4.11 "changed" set), grounded on the host
// repository's computeCacheKey pattern: a running xxhash.Digest fed
// deterministically-ordered fields with explicit separators, map keys
// sorted before hashing so field order never affects the result.
func (d *Descriptor) ComputeContentHash() uint64 {
	h := xxhash.New()

	writeField(h, string(d.Transport))
	writeField(h, d.Connect.Command)
	writeField(h, strings.Join(d.Connect.Args, "\x1f"))
	writeSortedMap(h, d.Connect.Env)
	writeField(h, d.Connect.URL)
	writeSortedMap(h, d.Connect.Headers)

	writeField(h, string(d.Auth.Kind))
	writeSortedMap(h, d.Auth.Headers)
	writeField(h, d.Auth.TokenURL)
	writeField(h, d.Auth.ClientID)
	writeField(h, d.Auth.ClientSecret)
	writeField(h, strings.Join(d.Auth.Scopes, "\x1f"))

	writeField(h, d.Group)

	kinds := make([]capability.Kind, 0, len(d.Filters))
	for k := range d.Filters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		rules := d.Filters[k]
		writeField(h, string(k))
		writeField(h, strings.Join(rules.Allow, "\x1f"))
		writeField(h, strings.Join(rules.Deny, "\x1f"))
	}

	names := make([]string, 0, len(d.Overrides))
	for n := range d.Overrides {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		ov := d.Overrides[n]
		writeField(h, n)
		writeField(h, ov.Name)
		writeField(h, ov.Description)
	}

	writeField(h, d.Timeouts.Init.String())
	writeField(h, d.Timeouts.CapFetch.String())
	writeField(h, d.Timeouts.StartupDelay.String())

	return h.Sum64()
}

func writeField(h *xxhash.Digest, s string) {
	_, _ = h.WriteString(s)
	_, _ = h.Write([]byte{0})
}

func writeSortedMap(h *xxhash.Digest, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(h, k)
		writeField(h, m[k])
	}
}
