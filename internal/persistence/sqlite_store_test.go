package persistence

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/stepflow/pkg/api"
)

func newTestRunStore(t *testing.T) *SQLiteRunStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewSQLiteRunStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore failed: %v", err)
	}

	return store
}

func TestSQLiteRunStoreSaveGetUpdate(t *testing.T) {
	store := newTestRunStore(t)

	rec := &api.RunRecord{
		ID:          "run-1",
		Pipeline:    "weather-etl",
		Status:      api.StatusRunning,
		CurrentStep: "extract",
		StartedAt:   time.Now(),
	}

	if err := store.SaveRun(rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Pipeline != "weather-etl" || got.Status != api.StatusRunning {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.FinishedAt.IsZero() {
		t.Fatalf("FinishedAt should be zero for a running record, got %v", got.FinishedAt)
	}

	rec.Status = api.StatusFailed
	rec.CurrentStep = "transform"
	rec.FinishedAt = time.Now()
	rec.Err = errors.New("handler blew up")
	if err := store.UpdateRun(rec); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err = store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun after update failed: %v", err)
	}
	if got.Status != api.StatusFailed || got.CurrentStep != "transform" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Err == nil || got.Err.Error() != "handler blew up" {
		t.Fatalf("error not preserved: %v", got.Err)
	}
	if got.FinishedAt.IsZero() {
		t.Fatalf("FinishedAt lost on update")
	}
}

func TestSQLiteRunStoreNotFound(t *testing.T) {
	store := newTestRunStore(t)

	if _, err := store.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("GetRun error = %v, want ErrRunNotFound", err)
	}

	rec := &api.RunRecord{ID: "missing", Pipeline: "p", Status: api.StatusRunning, StartedAt: time.Now()}
	if err := store.UpdateRun(rec); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("UpdateRun error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteRunStoreListFilters(t *testing.T) {
	store := newTestRunStore(t)

	base := time.Now()
	records := []*api.RunRecord{
		{ID: "a", Pipeline: "weather-etl", Status: api.StatusCompleted, StartedAt: base},
		{ID: "b", Pipeline: "weather-etl", Status: api.StatusFailed, StartedAt: base.Add(time.Second)},
		{ID: "c", Pipeline: "other", Status: api.StatusCompleted, StartedAt: base.Add(2 * time.Second)},
	}
	for _, r := range records {
		if err := store.SaveRun(r); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", r.ID, err)
		}
	}

	all, err := store.ListRuns(RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListRuns returned %d records, want 3", len(all))
	}
	// Ordered by start time.
	if all[0].ID != "a" || all[2].ID != "c" {
		t.Fatalf("unexpected order: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	byPipeline, err := store.ListRuns(RunFilter{Pipeline: "weather-etl"})
	if err != nil {
		t.Fatalf("ListRuns by pipeline failed: %v", err)
	}
	if len(byPipeline) != 2 {
		t.Fatalf("pipeline filter returned %d records, want 2", len(byPipeline))
	}

	failed, err := store.ListRuns(RunFilter{Pipeline: "weather-etl", Status: api.StatusFailed})
	if err != nil {
		t.Fatalf("ListRuns by status failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("status filter returned %+v", failed)
	}
}
