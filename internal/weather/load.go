package weather

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/pkg/api"
)

// TableLoadSummary names the load step's output artifact: one row per
// exported file with its row count.
const TableLoadSummary = "load_summary"

// csvExports maps output file names to the analysis artifact they carry.
var csvExports = map[string]string{
	"max_temp.csv":                TableMaxTemp,
	"aggregated_temp.csv":         TableAggregatedTemp,
	"forecasted_current_temp.csv": TableForecastedCurrent,
	"current_weather.csv":         TableCurrent,
	"forecast_weather.csv":        TableForecast,
	"location.csv":                TableLocation,
}

// ExecuteLoad exports the analysis tables as CSV files into the step's
// configured output directory and returns a summary table of what was
// written.
func ExecuteLoad(_ context.Context, input api.Payload, cfg api.StepConfig, logger *slog.Logger) (api.Payload, error) {
	dir := cfg.String("output", "")
	if dir == "" {
		return api.Payload{}, fmt.Errorf("load: no output directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return api.Payload{}, fmt.Errorf("load: create output directory: %w", err)
	}

	names := make([]string, 0, len(csvExports))
	for name := range csvExports {
		names = append(names, name)
	}
	sort.Strings(names)

	summary := api.NewTable("file", "rows")
	for _, name := range names {
		t := input.Tables[csvExports[name]]
		if t == nil {
			return api.Payload{}, fmt.Errorf("load: missing artifact %s in input payload", csvExports[name])
		}
		data, err := persistence.EncodeTable(t)
		if err != nil {
			return api.Payload{}, fmt.Errorf("load: encode %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return api.Payload{}, fmt.Errorf("load: write %s: %w", name, err)
		}
		logger.Debug("exported table", slog.String("file", path), slog.Int("rows", t.NumRows()))
		summary.Rows = append(summary.Rows, []string{name, strconv.Itoa(t.NumRows())})
	}

	logger.Info("data export completed",
		slog.String("output", dir),
		slog.Int("files", len(names)),
	)

	return api.TablePayload(map[string]*api.Table{TableLoadSummary: summary}), nil
}
