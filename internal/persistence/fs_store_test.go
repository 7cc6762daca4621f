package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

func TestFSCheckpointStoreMarkListClear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFSCheckpointStore failed: %v", err)
	}

	if err := store.MarkDone("extract"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	// MarkDone is idempotent.
	if err := store.MarkDone("extract"); err != nil {
		t.Fatalf("second MarkDone failed: %v", err)
	}
	if err := store.MarkDone("transform"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "extract.done")); err != nil {
		t.Fatalf("marker file missing: %v", err)
	}

	done, err := store.IsDone("extract")
	if err != nil || !done {
		t.Fatalf("IsDone = (%v, %v), want (true, nil)", done, err)
	}
	done, err = store.IsDone("load")
	if err != nil || done {
		t.Fatalf("IsDone = (%v, %v), want (false, nil)", done, err)
	}

	listed, err := store.ListDone()
	if err != nil {
		t.Fatalf("ListDone failed: %v", err)
	}
	want := map[string]struct{}{"extract": {}, "transform": {}}
	if !reflect.DeepEqual(listed, want) {
		t.Fatalf("ListDone = %v, want %v", listed, want)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	listed, err = store.ListDone()
	if err != nil {
		t.Fatalf("ListDone after Clear failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("ListDone after Clear = %v, want empty", listed)
	}
	// The namespace directory itself survives.
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("checkpoint dir removed by Clear: %v", err)
	}
}

func TestFSStateStoreDocRoundTrip(t *testing.T) {
	store, err := NewFSStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStateStore failed: %v", err)
	}

	doc := []byte(`{"city":"Lisbon"}`)
	if err := store.Save("extract", api.DocPayload(doc)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exists, err := store.Exists("extract")
	if err != nil || !exists {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", exists, err)
	}

	got, err := store.Load("extract")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got.Doc) != string(doc) {
		t.Fatalf("Load doc = %s, want %s", got.Doc, doc)
	}
}

func TestFSStateStoreTablesRoundTrip(t *testing.T) {
	store, err := NewFSStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStateStore failed: %v", err)
	}

	temps := api.NewTable("name", "temp_c")
	_ = temps.Append("Lisbon", "21.5")
	_ = temps.Append("Oslo", "-3")

	payload := api.TablePayload(map[string]*api.Table{"temps": temps})
	if err := store.Save("transform", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load("transform")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	table := got.Tables["temps"]
	if table == nil {
		t.Fatalf("Load lacks table temps: %v", got.Tables)
	}
	if !reflect.DeepEqual(table.Columns, temps.Columns) || !reflect.DeepEqual(table.Rows, temps.Rows) {
		t.Fatalf("table = %+v, want %+v", table, temps)
	}
}

func TestFSStateStoreSaveReplacesStaleArtifacts(t *testing.T) {
	store, err := NewFSStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStateStore failed: %v", err)
	}

	first := api.NewTable("a")
	_ = first.Append("1")
	second := api.NewTable("b")
	_ = second.Append("2")

	if err := store.Save("step", api.TablePayload(map[string]*api.Table{"old": first})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save("step", api.TablePayload(map[string]*api.Table{"new": second})); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := store.Load("step")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, stale := got.Tables["old"]; stale {
		t.Fatalf("stale artifact survived re-save: %v", got.Tables)
	}
	if _, ok := got.Tables["new"]; !ok {
		t.Fatalf("new artifact missing: %v", got.Tables)
	}
}

func TestFSStateStoreLoadMissingStep(t *testing.T) {
	store, err := NewFSStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStateStore failed: %v", err)
	}

	if _, err := store.Load("nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load error = %v, want ErrStateNotFound", err)
	}
	exists, err := store.Exists("nope")
	if err != nil || exists {
		t.Fatalf("Exists = (%v, %v), want (false, nil)", exists, err)
	}
}

func TestFSMetadataStoreAppendsHistory(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSMetadataStore(dir)
	if err != nil {
		t.Fatalf("NewFSMetadataStore failed: %v", err)
	}

	start := time.Now()
	first := api.NewStepMetadata("extract", api.StatusCompleted, start, start.Add(time.Second), nil, nil, nil)
	second := api.NewStepMetadata("extract", api.StatusFailed, start, start.Add(2*time.Second), nil, nil, errors.New("boom"))

	if err := store.Append("extract", first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append("extract", second); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	history, err := store.History("extract")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	if history[0].Status != api.StatusCompleted || history[1].Status != api.StatusFailed {
		t.Fatalf("history statuses = %s, %s", history[0].Status, history[1].Status)
	}
	if history[1].Error == "" {
		t.Fatalf("failure entry lost its error")
	}

	if _, err := os.Stat(filepath.Join(dir, "extract", "metadata.json")); err != nil {
		t.Fatalf("metadata file missing: %v", err)
	}
}

func TestRunIDPersistsAcrossLoads(t *testing.T) {
	root := t.TempDir()

	id, err := LoadOrCreateRunID(root)
	if err != nil {
		t.Fatalf("LoadOrCreateRunID failed: %v", err)
	}
	if id == "" {
		t.Fatalf("empty run id")
	}

	again, err := LoadOrCreateRunID(root)
	if err != nil {
		t.Fatalf("second LoadOrCreateRunID failed: %v", err)
	}
	if again != id {
		t.Fatalf("run id changed across loads: %s then %s", id, again)
	}

	if err := ResetRunID(root); err != nil {
		t.Fatalf("ResetRunID failed: %v", err)
	}
	// Resetting an already-clean root is fine.
	if err := ResetRunID(root); err != nil {
		t.Fatalf("second ResetRunID failed: %v", err)
	}

	fresh, err := LoadOrCreateRunID(root)
	if err != nil {
		t.Fatalf("LoadOrCreateRunID after reset failed: %v", err)
	}
	if fresh == id {
		t.Fatalf("run id not reset")
	}
}
