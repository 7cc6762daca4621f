package weather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// Artifact names produced by the analyze step, alongside the pass-through
// location/current/forecast tables.
const (
	TableMaxTemp           = "max_temp_df"
	TableAggregatedTemp    = "aggregated_temp_df"
	TableForecastedCurrent = "forecasted_current_df"
)

// ExecuteAnalyze joins current and forecast readings per city and derives
// the temperature analyses: the day of maximum temperature per city,
// aggregated min/mean/max of the forecast averages, and the forecasted
// versus current temperature differences. The validated input tables are
// passed through unchanged for the load step.
func ExecuteAnalyze(_ context.Context, input api.Payload, _ api.StepConfig, logger *slog.Logger) (api.Payload, error) {
	current := input.Tables[TableCurrent]
	forecast := input.Tables[TableForecast]
	location := input.Tables[TableLocation]
	if current == nil || forecast == nil || location == nil {
		return api.Payload{}, fmt.Errorf("analyze: missing validated tables in input payload")
	}

	merged, err := joinCurrentForecast(current, forecast)
	if err != nil {
		return api.Payload{}, fmt.Errorf("analyze: join current and forecast: %w", err)
	}

	maxTemp, err := dayOfMaxTemperature(merged)
	if err != nil {
		return api.Payload{}, fmt.Errorf("analyze: day of max temperature: %w", err)
	}
	aggregated, err := aggregateTemperaturesPerCity(merged)
	if err != nil {
		return api.Payload{}, fmt.Errorf("analyze: aggregate temperatures: %w", err)
	}
	diffed, err := forecastedToCurrentDiff(merged)
	if err != nil {
		return api.Payload{}, fmt.Errorf("analyze: temperature differences: %w", err)
	}

	logger.Info("temperature analysis completed",
		slog.Int("cities", maxTemp.NumRows()),
		slog.Int("merged_rows", merged.NumRows()),
	)

	return api.TablePayload(map[string]*api.Table{
		TableLocation:          location,
		TableCurrent:           current,
		TableForecast:          forecast,
		TableMaxTemp:           maxTemp,
		TableAggregatedTemp:    aggregated,
		TableForecastedCurrent: diffed,
	}), nil
}

// joinCurrentForecast inner-joins the current table onto the forecast
// table by (name, country): one output row per forecast day, carrying the
// city's current reading alongside it.
func joinCurrentForecast(current, forecast *api.Table) (*api.Table, error) {
	type currentRow struct {
		cells []string
	}
	byCity := make(map[string]currentRow)
	for i, row := range current.Rows {
		name, err := current.Value(i, "name")
		if err != nil {
			return nil, err
		}
		country, err := current.Value(i, "country")
		if err != nil {
			return nil, err
		}
		byCity[name+"\x00"+country] = currentRow{cells: row}
	}

	columns := append([]string{}, current.Columns...)
	for _, c := range forecast.Columns {
		if c != "name" && c != "country" {
			columns = append(columns, c)
		}
	}
	out := api.NewTable(columns...)

	nameIdx := forecast.ColumnIndex("name")
	countryIdx := forecast.ColumnIndex("country")
	if nameIdx < 0 || countryIdx < 0 {
		return nil, fmt.Errorf("forecast table lacks join columns")
	}
	for _, row := range forecast.Rows {
		cur, ok := byCity[row[nameIdx]+"\x00"+row[countryIdx]]
		if !ok {
			continue
		}
		cells := append([]string{}, cur.cells...)
		for i, cell := range row {
			if i != nameIdx && i != countryIdx {
				cells = append(cells, cell)
			}
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// dayOfMaxTemperature picks, per city, the forecast row with the highest
// day_maxtemp_c and annotates it with the weekday name of its date.
func dayOfMaxTemperature(merged *api.Table) (*api.Table, error) {
	best := make(map[string]int)
	order := make([]string, 0)
	for i := range merged.Rows {
		name, err := merged.Value(i, "name")
		if err != nil {
			return nil, err
		}
		maxC, err := merged.Float(i, "day_maxtemp_c")
		if err != nil {
			return nil, err
		}
		j, seen := best[name]
		if !seen {
			best[name] = i
			order = append(order, name)
			continue
		}
		prev, err := merged.Float(j, "day_maxtemp_c")
		if err != nil {
			return nil, err
		}
		if maxC > prev {
			best[name] = i
		}
	}
	sort.Strings(order)

	out := api.NewTable("name", "region", "date", "day_maxtemp_c", "day_maxtemp_f", "day_name")
	for _, name := range order {
		i := best[name]
		cells := make([]string, 0, 6)
		for _, col := range []string{"name", "region", "date", "day_maxtemp_c", "day_maxtemp_f"} {
			v, err := merged.Value(i, col)
			if err != nil {
				return nil, err
			}
			cells = append(cells, v)
		}
		cells = append(cells, weekdayName(cells[2]))
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// weekdayName returns the weekday of a YYYY-MM-DD date, or "" when the
// date does not parse.
func weekdayName(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

// aggregateTemperaturesPerCity groups the merged rows by city and reports
// max, mean and min of the forecast average temperatures.
func aggregateTemperaturesPerCity(merged *api.Table) (*api.Table, error) {
	type agg struct {
		region, country        string
		sumC, minC, maxC       float64
		sumF, minF, maxF       float64
		n                      int
	}
	groups := make(map[string]*agg)
	order := make([]string, 0)
	for i := range merged.Rows {
		name, err := merged.Value(i, "name")
		if err != nil {
			return nil, err
		}
		avgC, err := merged.Float(i, "day_avgtemp_c")
		if err != nil {
			return nil, err
		}
		avgF, err := merged.Float(i, "day_avgtemp_f")
		if err != nil {
			return nil, err
		}
		g, ok := groups[name]
		if !ok {
			region, _ := merged.Value(i, "region")
			country, _ := merged.Value(i, "country")
			g = &agg{region: region, country: country, minC: avgC, maxC: avgC, minF: avgF, maxF: avgF}
			groups[name] = g
			order = append(order, name)
		}
		g.sumC += avgC
		g.sumF += avgF
		g.minC = min(g.minC, avgC)
		g.maxC = max(g.maxC, avgC)
		g.minF = min(g.minF, avgF)
		g.maxF = max(g.maxF, avgF)
		g.n++
	}
	sort.Strings(order)

	out := api.NewTable(
		"name", "region", "country",
		"day_avgtemp_c_max", "day_avgtemp_c_mean", "day_avgtemp_c_min",
		"day_avgtemp_f_max", "day_avgtemp_f_mean", "day_avgtemp_f_min",
	)
	for _, name := range order {
		g := groups[name]
		out.Rows = append(out.Rows, []string{
			name, g.region, g.country,
			api.FormatFloat(g.maxC),
			api.FormatFloat(g.sumC / float64(g.n)),
			api.FormatFloat(g.minC),
			api.FormatFloat(g.maxF),
			api.FormatFloat(g.sumF / float64(g.n)),
			api.FormatFloat(g.minF),
		})
	}
	return out, nil
}

// forecastedToCurrentDiff appends per-row differences between the
// forecast average and the current reading, in both scales.
func forecastedToCurrentDiff(merged *api.Table) (*api.Table, error) {
	columns := append(append([]string{}, merged.Columns...),
		"forecasted_celsius_diff", "forecasted_fahrenheit_diff")
	out := api.NewTable(columns...)
	for i, row := range merged.Rows {
		avgC, err := merged.Float(i, "day_avgtemp_c")
		if err != nil {
			return nil, err
		}
		tempC, err := merged.Float(i, "temp_c")
		if err != nil {
			return nil, err
		}
		avgF, err := merged.Float(i, "day_avgtemp_f")
		if err != nil {
			return nil, err
		}
		tempF, err := merged.Float(i, "temp_f")
		if err != nil {
			return nil, err
		}
		cells := append(append([]string{}, row...),
			api.FormatFloat(avgC-tempC),
			api.FormatFloat(avgF-tempF))
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}
