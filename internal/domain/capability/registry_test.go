package capability

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRegistry_StartsWithEmptySnapshot(t *testing.T) {
	r := NewRegistry(discardLogger())
	snap := r.Current()
	if snap == nil {
		t.Fatal("Current returned nil")
	}
	if len(snap.Catalog) != 0 {
		t.Errorf("initial Catalog = %+v, want empty", snap.Catalog)
	}
	if _, ok := r.Resolve(KindTool, "anything"); ok {
		t.Error("Resolve against an empty registry should miss")
	}
}

func TestRegistry_RebuildPublishesSnapshot(t *testing.T) {
	r := NewRegistry(discardLogger())

	err := r.Rebuild(func() (BuildResult, error) {
		return BuildResult{
			Routes: map[Kind]map[string]RouteEntry{
				KindTool: {"search": {Backend: "docs", OriginalName: "search", Kind: KindTool}},
			},
			Catalog: []Record{{ExposedName: "search", OriginalName: "search", Kind: KindTool, Backend: "docs"}},
		}, nil
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	entry, ok := r.Resolve(KindTool, "search")
	if !ok || entry.Backend != "docs" {
		t.Errorf("Resolve(search) = %+v, %v, want docs backend", entry, ok)
	}
	if got := r.List(KindTool, nil); len(got) != 1 {
		t.Errorf("List(KindTool) = %+v, want 1 record", got)
	}
}

func TestRegistry_List_FiltersByKindAndPredicate(t *testing.T) {
	r := NewRegistry(discardLogger())
	_ = r.Rebuild(func() (BuildResult, error) {
		return BuildResult{
			Routes: map[Kind]map[string]RouteEntry{KindTool: {}, KindResource: {}},
			Catalog: []Record{
				{ExposedName: "search", Kind: KindTool, Backend: "docs"},
				{ExposedName: "fetch", Kind: KindTool, Backend: "other"},
				{ExposedName: "readme", Kind: KindResource, Backend: "docs"},
			},
		}, nil
	})

	tools := r.List(KindTool, nil)
	if len(tools) != 2 {
		t.Fatalf("List(KindTool) = %+v, want 2", tools)
	}

	docsOnly := r.List(KindTool, func(rec Record) bool { return rec.Backend == "docs" })
	if len(docsOnly) != 1 || docsOnly[0].ExposedName != "search" {
		t.Fatalf("List(KindTool, backend=docs) = %+v, want [search]", docsOnly)
	}
}

func TestRegistry_RebuildFailureLeavesPriorSnapshotPublished(t *testing.T) {
	r := NewRegistry(discardLogger())
	_ = r.Rebuild(func() (BuildResult, error) {
		return BuildResult{
			Routes:  map[Kind]map[string]RouteEntry{KindTool: {"search": {Backend: "docs"}}},
			Catalog: []Record{{ExposedName: "search", Kind: KindTool, Backend: "docs"}},
		}, nil
	})

	wantErr := errors.New("build exploded")
	err := r.Rebuild(func() (BuildResult, error) {
		return BuildResult{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Rebuild error = %v, want %v", err, wantErr)
	}

	if _, ok := r.Resolve(KindTool, "search"); !ok {
		t.Error("a failed rebuild must not tear down the previously published snapshot")
	}
}

func TestRegistry_OnDroppedFiresPerDroppedCapability(t *testing.T) {
	r := NewRegistry(discardLogger())

	var dropped []DroppedCapability
	r.OnDropped = func(d DroppedCapability) { dropped = append(dropped, d) }

	_ = r.Rebuild(func() (BuildResult, error) {
		return BuildResult{
			Routes: map[Kind]map[string]RouteEntry{KindTool: {}},
			Dropped: []DroppedCapability{
				{Kind: KindTool, ExposedName: "search", WinnerBackend: "alpha", LoserBackend: "beta"},
			},
		}, nil
	})

	if len(dropped) != 1 || dropped[0].LoserBackend != "beta" {
		t.Fatalf("OnDropped calls = %+v, want one entry with LoserBackend=beta", dropped)
	}
}
