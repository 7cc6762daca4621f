package weather

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/pkg/api"
)

// Artifact names produced by the quality-check step.
const (
	TableLocation = "location_df"
	TableCurrent  = "current_df"
	TableForecast = "forecast_df"
)

// ExecuteDQChecks profiles and validates the raw tables. Every cell is
// normalized first (numbers rounded to two decimals, strings trimmed and
// upper-cased), then rows failing range or consistency checks are split
// off and quarantined as CSV files under <output>/sandbox. Only the
// surviving rows flow on to analysis.
func ExecuteDQChecks(_ context.Context, input api.Payload, cfg api.StepConfig, logger *slog.Logger) (api.Payload, error) {
	rawCurrent := input.Tables[TableRawCurrent]
	rawForecast := input.Tables[TableRawForecast]
	rawLocation := input.Tables[TableRawLocation]
	if rawCurrent == nil || rawForecast == nil || rawLocation == nil {
		return api.Payload{}, fmt.Errorf("dq_checks: missing raw tables in input payload")
	}

	logger.Info("starting data quality checks",
		slog.Int("current_rows", rawCurrent.NumRows()),
		slog.Int("forecast_rows", rawForecast.NumRows()),
		slog.Int("location_rows", rawLocation.NumRows()),
	)

	current, currentFailed := splitByValidity(profileTable(rawCurrent), validCurrentRow)
	forecast, forecastFailed := splitByValidity(profileTable(rawForecast), validForecastRow)
	location, locationFailed := splitByValidity(profileTable(rawLocation), validLocationRow)

	failed := map[string]*api.Table{
		"current":  currentFailed,
		"forecast": forecastFailed,
		"location": locationFailed,
	}
	if dir := cfg.String("output", ""); dir != "" {
		if err := quarantineFailedRows(filepath.Join(dir, "sandbox"), failed); err != nil {
			return api.Payload{}, fmt.Errorf("dq_checks: quarantine failed rows: %w", err)
		}
	}
	for name, t := range failed {
		if t.NumRows() > 0 {
			logger.Warn("rows failed quality checks",
				slog.String("table", name),
				slog.Int("rows", t.NumRows()),
			)
		}
	}

	logger.Info("data quality checks completed",
		slog.Int("current_rows", current.NumRows()),
		slog.Int("forecast_rows", forecast.NumRows()),
		slog.Int("location_rows", location.NumRows()),
	)

	return api.TablePayload(map[string]*api.Table{
		TableCurrent:  current,
		TableForecast: forecast,
		TableLocation: location,
	}), nil
}

// profileTable normalizes every cell: numeric cells are rounded to two
// decimals, everything else is trimmed and upper-cased. Missing cells
// stay empty strings, the tabular equivalent of a zero fill.
func profileTable(t *api.Table) *api.Table {
	out := api.NewTable(t.Columns...)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = profileCell(cell)
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func profileCell(cell string) string {
	cell = strings.TrimSpace(cell)
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return strconv.FormatFloat(math.Round(f*100)/100, 'g', -1, 64)
	}
	return strings.ToUpper(cell)
}

// splitByValidity partitions a table's rows by the given predicate.
func splitByValidity(t *api.Table, valid func(t *api.Table, row int) bool) (passed, failed *api.Table) {
	passed = api.NewTable(t.Columns...)
	failed = api.NewTable(t.Columns...)
	for i, row := range t.Rows {
		if valid(t, i) {
			passed.Rows = append(passed.Rows, row)
		} else {
			failed.Rows = append(failed.Rows, row)
		}
	}
	return passed, failed
}

func validLocationRow(t *api.Table, row int) bool {
	if !floatBetween(t, row, "lat", -90, 90) || !floatBetween(t, row, "lon", -180, 180) {
		return false
	}
	for _, col := range []string{"name", "region", "country"} {
		v, err := t.Value(row, col)
		if err != nil || v == "" {
			return false
		}
	}
	return true
}

func validCurrentRow(t *api.Table, row int) bool {
	if !floatBetween(t, row, "temp_c", -50, 50) || !floatBetween(t, row, "temp_f", -58, 122) {
		return false
	}

	// Celsius and Fahrenheit readings must agree.
	tempC, errC := t.Float(row, "temp_c")
	tempF, errF := t.Float(row, "temp_f")
	if errC != nil || errF != nil {
		return false
	}
	if math.Abs((tempC*9/5+32)-tempF) > 0.1 {
		return false
	}

	isDay, err := t.Value(row, "is_day")
	if err != nil || (isDay != "0" && isDay != "1") {
		return false
	}
	return true
}

func validForecastRow(t *api.Table, row int) bool {
	return floatBetween(t, row, "day_maxtemp_c", 0, 50) &&
		floatBetween(t, row, "day_maxtemp_f", 32, 122) &&
		floatBetween(t, row, "day_mintemp_c", -50, 50) &&
		floatBetween(t, row, "day_mintemp_f", -58, 122) &&
		floatBetween(t, row, "day_avgtemp_c", -50, 50) &&
		floatBetween(t, row, "day_avghumidity", 0, 100) &&
		floatBetween(t, row, "day_totalprecip_mm", 0, math.MaxFloat64)
}

func floatBetween(t *api.Table, row int, column string, lo, hi float64) bool {
	f, err := t.Float(row, column)
	if err != nil {
		return false
	}
	return f >= lo && f <= hi
}

// quarantineFailedRows writes the rejected rows of each table as a CSV
// file under dir, one file per table.
func quarantineFailedRows(dir string, failed map[string]*api.Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, t := range failed {
		data, err := persistence.EncodeTable(t)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name+".csv"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
