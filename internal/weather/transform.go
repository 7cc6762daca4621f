package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/petrijr/stepflow/pkg/api"
)

// Artifact names produced by the transform step.
const (
	TableRawLocation = "raw_location"
	TableRawCurrent  = "raw_current"
	TableRawForecast = "raw_forecast"
)

var locationColumns = []string{"name", "region", "country", "lat", "lon", "tz_id", "localtime"}

var currentColumns = []string{"name", "region", "country", "last_updated", "temp_c", "temp_f", "is_day", "condition_text"}

var forecastColumns = []string{
	"name", "country", "date",
	"day_maxtemp_c", "day_maxtemp_f",
	"day_mintemp_c", "day_mintemp_f",
	"day_avgtemp_c", "day_avgtemp_f",
	"day_avghumidity", "day_totalprecip_mm",
	"day_maxwind_kph", "day_uv",
}

// cityRows is one worker's output: the flattened rows for a single city.
type cityRows struct {
	location []string
	current  []string
	forecast [][]string
}

// ExecuteTransform fans out over the raw document's cities, flattening
// each into location, current and forecast rows, then combines the rows
// into the three raw tables. Worker count defaults to one per city; the
// "max_workers" step parameter caps it.
func ExecuteTransform(ctx context.Context, input api.Payload, cfg api.StepConfig, logger *slog.Logger) (api.Payload, error) {
	if len(input.Doc) == 0 {
		return api.Payload{}, fmt.Errorf("transform: no raw document in input payload")
	}

	var cities map[string]CityWeather
	if err := json.Unmarshal(input.Doc, &cities); err != nil {
		return api.Payload{}, fmt.Errorf("transform: parse raw document: %w", err)
	}

	workers := cfg.Int("max_workers", 0)
	logger.Debug("combining city weather data",
		slog.Int("cities", len(cities)),
		slog.Int("max_workers", workers),
	)

	results, err := api.FanOut(ctx, cities, workers, combineCityWeather)
	if err != nil {
		return api.Payload{}, err
	}

	// Deterministic row order regardless of completion order.
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	location := api.NewTable(locationColumns...)
	current := api.NewTable(currentColumns...)
	forecast := api.NewTable(forecastColumns...)
	for _, key := range keys {
		rows := results[key]
		location.Rows = append(location.Rows, rows.location)
		current.Rows = append(current.Rows, rows.current)
		forecast.Rows = append(forecast.Rows, rows.forecast...)
	}

	logger.Info("transform completed",
		slog.Int("locations", location.NumRows()),
		slog.Int("forecast_rows", forecast.NumRows()),
	)

	return api.TablePayload(map[string]*api.Table{
		TableRawLocation: location,
		TableRawCurrent:  current,
		TableRawForecast: forecast,
	}), nil
}

// combineCityWeather flattens one city's document into table rows. It is
// the fan-out worker body: it receives an immutable copy of its item and
// shares no state with its siblings.
func combineCityWeather(_ context.Context, key string, city CityWeather) (cityRows, error) {
	name, country := splitCityKey(key)
	if name == "" {
		name = city.Location.Name
	}
	if country == "" {
		country = city.Location.Country
	}
	region := city.Location.Region

	rows := cityRows{
		location: []string{
			name, region, country,
			api.FormatFloat(city.Location.Lat),
			api.FormatFloat(city.Location.Lon),
			city.Location.TzID,
			city.Location.Localtime,
		},
		current: []string{
			name, region, country,
			city.Current.LastUpdated,
			api.FormatFloat(city.Current.TempC),
			api.FormatFloat(city.Current.TempF),
			strconv.Itoa(city.Current.IsDay),
			city.Current.Condition.Text,
		},
	}

	days := city.ForecastDays()
	if len(days) == 0 {
		return cityRows{}, fmt.Errorf("no forecast entries")
	}
	for _, fd := range days {
		rows.forecast = append(rows.forecast, []string{
			name, country, fd.Date,
			api.FormatFloat(fd.Day.MaxTempC),
			api.FormatFloat(fd.Day.MaxTempF),
			api.FormatFloat(fd.Day.MinTempC),
			api.FormatFloat(fd.Day.MinTempF),
			api.FormatFloat(fd.Day.AvgTempC),
			api.FormatFloat(fd.Day.AvgTempF),
			api.FormatFloat(fd.Day.AvgHumidity),
			api.FormatFloat(fd.Day.TotalPrecipMM),
			api.FormatFloat(fd.Day.MaxWindKph),
			api.FormatFloat(fd.Day.UV),
		})
	}

	return rows, nil
}

// splitCityKey splits a "City, Country" document key.
func splitCityKey(key string) (name, country string) {
	parts := strings.SplitN(key, ",", 2)
	name = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		country = strings.TrimSpace(parts[1])
	}
	return name, country
}
