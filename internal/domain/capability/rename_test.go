package capability

import "testing"

func TestRenameMap_Apply(t *testing.T) {
	m := RenameMap{
		"search": {Name: "docs_search", Description: "Search the docs"},
		"delete": {Description: "Delete an entry"},
	}
	records := []Record{
		{OriginalName: "search", ExposedName: "search", Kind: KindTool},
		{OriginalName: "delete", ExposedName: "delete", Kind: KindTool, Description: "old desc"},
		{OriginalName: "list", ExposedName: "list", Kind: KindTool},
	}

	got := m.Apply(records)

	if got[0].ExposedName != "docs_search" || got[0].Description != "Search the docs" {
		t.Errorf("search override = %+v", got[0])
	}
	if got[1].ExposedName != "delete" || got[1].Description != "Delete an entry" {
		t.Errorf("delete override left ExposedName unchanged and Description overridden, got %+v", got[1])
	}
	if got[2].ExposedName != "list" || got[2].OriginalName != "list" {
		t.Errorf("unmatched record should pass through unchanged, got %+v", got[2])
	}
}

func TestRenameMap_ApplyPreservesOriginalName(t *testing.T) {
	m := RenameMap{"search": {Name: "docs_search"}}
	records := []Record{{OriginalName: "search", ExposedName: "search", Kind: KindTool}}

	got := m.Apply(records)

	if got[0].OriginalName != "search" {
		t.Errorf("OriginalName = %q, want %q (routing must reverse the rename)", got[0].OriginalName, "search")
	}
}

func TestRenameMap_InactiveReturnsInputUnchanged(t *testing.T) {
	records := []Record{{OriginalName: "search", ExposedName: "search", Kind: KindTool}}
	got := RenameMap{}.Apply(records)
	if len(got) != 1 || got[0].ExposedName != "search" {
		t.Fatalf("Apply with no overrides = %+v, want input unchanged", got)
	}
}
