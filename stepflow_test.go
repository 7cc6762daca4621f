package stepflow

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func docHandler(tag string) HandlerFunc {
	return func(_ context.Context, _ Payload, _ StepConfig, _ *slog.Logger) (Payload, error) {
		return DocPayload([]byte(tag)), nil
	}
}

func TestBuilderProducesOrderedDefinition(t *testing.T) {
	t.Parallel()

	pipe := New("weather-etl").
		Step("extract", docHandler("a")).
		StepWithDeps("transform", docHandler("b"), "extract").
		StepWithRetry("load", docHandler("c"), Retry(3).WithConstantBackoff(time.Second).Policy())

	def, handlers := pipe.Definition()
	require.NoError(t, def.Validate())
	require.Equal(t, "weather-etl", pipe.Name())
	require.Equal(t, []string{"extract", "transform", "load"}, def.StepNames())
	require.Len(t, handlers, 3)

	transform, ok := def.Step("transform")
	require.True(t, ok)
	require.Equal(t, []string{"extract"}, transform.DependsOn)

	load, ok := def.Step("load")
	require.True(t, ok)
	require.NotNil(t, load.Retry)
	require.Equal(t, 3, load.Retry.MaxAttempts)
}

func TestBuilderPanicsOnBadSteps(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		New("p").Step("", docHandler("x"))
	})
	require.Panics(t, func() {
		New("p").Step("ok", nil)
	})
}

func TestInMemoryOrchestratorRunsPipeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var order []string
	record := func(name string) HandlerFunc {
		return func(_ context.Context, input Payload, _ StepConfig, _ *slog.Logger) (Payload, error) {
			order = append(order, name)
			return DocPayload(append(input.Doc, []byte(name+";")...)), nil
		}
	}

	pipe := New("chained").
		Step("one", record("one")).
		Step("two", record("two")).
		Step("three", record("three"))

	orc, err := NewInMemoryOrchestrator(pipe, Options{})
	require.NoError(t, err)

	res, err := Run(ctx, orc)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, order)
	require.Equal(t, []string{"one", "two", "three"}, res.Executed)
	require.Equal(t, "one;two;three;", string(res.Data["three"].Doc))

	// Cleanup dropped the working namespace, so a second invocation runs
	// the full pipeline again.
	order = nil
	_, err = Run(ctx, orc)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, order)
}

func TestFSOrchestratorResumesAfterFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()

	fail := true
	calls := map[string]int{}
	step := func(name string, failing bool) HandlerFunc {
		return func(_ context.Context, input Payload, _ StepConfig, _ *slog.Logger) (Payload, error) {
			calls[name]++
			if failing && fail {
				return Payload{}, errors.New("transient outage")
			}
			return DocPayload([]byte(name)), nil
		}
	}

	pipe := New("resumable").
		Step("extract", step("extract", false)).
		StepWithDeps("transform", step("transform", true), "extract").
		StepWithDeps("load", step("load", false), "transform")

	orc, err := NewFSOrchestrator(pipe, root, Options{})
	require.NoError(t, err)

	_, err = orc.Run(ctx, RunOptions{})
	require.Error(t, err)
	failedAt, ok := FailedStepName(err)
	require.True(t, ok)
	require.Equal(t, "transform", failedAt)

	// The run identity survives the failure on disk.
	idBytes, err := os.ReadFile(filepath.Join(root, "run.id"))
	require.NoError(t, err)
	failedRunID := strings.TrimSpace(string(idBytes))
	require.NotEmpty(t, failedRunID)

	fail = false
	res, err := orc.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, failedRunID, res.RunID, "resume must reuse the persisted run id")
	require.Equal(t, []string{"transform", "load"}, res.Executed)
	require.Equal(t, 1, calls["extract"], "completed step must not re-run")

	// Success resets the namespace, including the run id.
	_, err = os.Stat(filepath.Join(root, "run.id"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFSOrchestratorRecordsRunHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()

	db, err := sql.Open("sqlite", filepath.Join(root, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pipe := New("audited").Step("only", docHandler("done"))

	orc, err := NewFSOrchestrator(pipe, root, Options{HistoryDB: db})
	require.NoError(t, err)

	res, err := Run(ctx, orc)
	require.NoError(t, err)

	rec, err := GetRun(db, res.RunID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, rec.Status)
	require.Equal(t, "audited", rec.Pipeline)

	runs, err := ListRuns(db, RunFilter{Pipeline: "audited", Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestTargetStepStopsEarly(t *testing.T) {
	t.Parallel()

	pipe := New("partial").
		Step("extract", docHandler("a")).
		Step("transform", docHandler("b")).
		Step("load", docHandler("c"))

	orc, err := NewInMemoryOrchestrator(pipe, Options{})
	require.NoError(t, err)

	res, err := orc.Run(context.Background(), RunOptions{TargetStep: "transform"})
	require.NoError(t, err)
	require.Equal(t, []string{"extract", "transform"}, res.Executed)
}

func TestFanOutReExport(t *testing.T) {
	t.Parallel()

	items := map[string]int{"a": 1, "b": 2}
	results, err := FanOut(context.Background(), items, 2, func(_ context.Context, _ string, v int) (string, error) {
		return strings.Repeat("x", v), nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "x", "b": "xx"}, results)
}
