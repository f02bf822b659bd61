package capability

import "testing"

func TestFilter_Allowed(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		in   string
		want bool
	}{
		{"no filters configured", Filter{}, "search", true},
		{"deny wins over allow", Filter{Allow: []string{"*"}, Deny: []string{"search"}}, "search", false},
		{"allow glob matches", Filter{Allow: []string{"search*"}}, "search_docs", true},
		{"allow glob does not match", Filter{Allow: []string{"search*"}}, "delete_docs", false},
		{"deny glob matches unrelated to allow", Filter{Allow: []string{"*"}, Deny: []string{"delete*"}}, "delete_all", false},
		{"malformed pattern is a non-match, not an error", Filter{Allow: []string{"["}}, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Allowed(tt.in); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilter_Active(t *testing.T) {
	if (Filter{}).Active() {
		t.Error("empty Filter should not be Active")
	}
	if !(Filter{Allow: []string{"a"}}).Active() {
		t.Error("Filter with Allow should be Active")
	}
	if !(Filter{Deny: []string{"a"}}).Active() {
		t.Error("Filter with Deny should be Active")
	}
}

func TestApplyFilter_PreservesOrderAndDropsDenied(t *testing.T) {
	raw := []Record{
		{OriginalName: "search", Kind: KindTool},
		{OriginalName: "delete", Kind: KindTool},
		{OriginalName: "list", Kind: KindTool},
	}
	f := Filter{Deny: []string{"delete"}}
	got := ApplyFilter(raw, f)
	if len(got) != 2 || got[0].OriginalName != "search" || got[1].OriginalName != "list" {
		t.Fatalf("ApplyFilter = %+v, want [search list]", got)
	}
}

func TestApplyFilter_InactiveFilterReturnsInputUnchanged(t *testing.T) {
	raw := []Record{{OriginalName: "search", Kind: KindTool}}
	got := ApplyFilter(raw, Filter{})
	if len(got) != 1 || got[0].OriginalName != "search" {
		t.Fatalf("ApplyFilter with inactive filter = %+v, want input unchanged", got)
	}
}
