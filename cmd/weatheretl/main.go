// Command weatheretl runs the resumable weather ETL pipeline.
//
// The pipeline is declared in a YAML configuration file (execution order,
// resume dependencies, per-step parameters) and executes against a
// filesystem run namespace, so an interrupted run picks up where it left
// off on the next invocation.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/petrijr/stepflow"
	"github.com/petrijr/stepflow/internal/config"
	"github.com/petrijr/stepflow/internal/weather"
	"github.com/petrijr/stepflow/pkg/api"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the pipeline configuration file")
	target := flag.String("target", "", "run only up to this step")
	failedStep := flag.String("failed-step", "", "restart from the step after this one, ignoring checkpoints")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *target, *failedStep); err != nil {
		if step, ok := api.FailedStep(err); ok {
			logger.Error("pipeline failed", slog.String("step", step), slog.Any("error", err))
		} else {
			logger.Error("pipeline failed", slog.Any("error", err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, target, failedStep string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded",
		slog.String("path", configPath),
		slog.String("app", cfg.App.Name),
	)

	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.MetricsDir(), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+filepath.Join(cfg.MetricsDir(), "history.db"))
	if err != nil {
		return fmt.Errorf("open run history database: %w", err)
	}
	defer db.Close()

	metrics := &stepflow.BasicMetrics{}
	orc, err := stepflow.NewFSOrchestrator(pipe, cfg.NamespaceRoot(), stepflow.Options{
		Observer:    metrics,
		Logger:      logger,
		StepConfigs: stepParams(cfg),
		HistoryDB:   db,
		Layout: stepflow.Layout{
			CheckpointDir: cfg.Paths.Checkpoint.Dir,
			StateDir:      cfg.Paths.State.Dir,
			MetricsDir:    cfg.Paths.Metrics.Dir,
		},
	})
	if err != nil {
		return err
	}

	res, err := orc.Run(ctx, stepflow.RunOptions{
		TargetStep: target,
		FailedStep: failedStep,
	})
	if err != nil {
		return err
	}

	logger.Info("pipeline completed",
		slog.String("run_id", res.RunID),
		slog.String("steps", strings.Join(res.Executed, ", ")),
		slog.Any("metrics", metrics.Snapshot()),
	)
	return nil
}

// buildPipeline assembles the pipeline from the configured execution
// order, attaching each step's resume dependencies.
func buildPipeline(cfg *config.Config) (*stepflow.PipelineBuilder, error) {
	handlers := weather.Handlers()
	pipe := stepflow.New(cfg.App.Name)
	for _, step := range cfg.Steps.ExecutionOrder {
		h, ok := handlers[step]
		if !ok {
			return nil, fmt.Errorf("no handler for configured step %q", step)
		}
		if deps := cfg.Steps.Dependencies[step]; len(deps) > 0 {
			pipe.StepWithDeps(step, h, deps...)
		} else {
			pipe.Step(step, h)
		}
	}
	return pipe, nil
}

// stepParams merges each step's configured parameters with the resolved
// input and output locations every handler may need.
func stepParams(cfg *config.Config) map[string]api.StepConfig {
	params := make(map[string]api.StepConfig, len(cfg.Steps.ExecutionOrder))
	for _, step := range cfg.Steps.ExecutionOrder {
		p := cfg.StepParams(step)
		p["input"] = cfg.InputFile()
		p["output"] = cfg.OutputDir()
		params[step] = p
	}
	return params
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
