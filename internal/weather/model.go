// Package weather implements the weather ETL reference pipeline: the
// business-logic handlers (extract, transform, dq_checks, analyze, load)
// that run behind the stepflow orchestrator's step interface.
package weather

import "fmt"

// Condition describes the weather state, e.g. "Partly cloudy".
type Condition struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

// Location holds geographical and timezone information for one city.
type Location struct {
	Name           string  `json:"name"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TzID           string  `json:"tz_id"`
	LocaltimeEpoch int64   `json:"localtime_epoch"`
	Localtime      string  `json:"localtime"`
}

// CurrentWeather holds the current conditions for one city.
type CurrentWeather struct {
	LastUpdated string    `json:"last_updated"`
	TempC       float64   `json:"temp_c"`
	TempF       float64   `json:"temp_f"`
	IsDay       int       `json:"is_day"`
	Condition   Condition `json:"condition"`
}

// DayWeather holds daily metrics in metric and imperial units.
type DayWeather struct {
	MaxTempC      float64   `json:"maxtemp_c"`
	MaxTempF      float64   `json:"maxtemp_f"`
	MinTempC      float64   `json:"mintemp_c"`
	MinTempF      float64   `json:"mintemp_f"`
	AvgTempC      float64   `json:"avgtemp_c"`
	AvgTempF      float64   `json:"avgtemp_f"`
	MaxWindKph    float64   `json:"maxwind_kph"`
	TotalPrecipMM float64   `json:"totalprecip_mm"`
	AvgHumidity   float64   `json:"avghumidity"`
	Condition     Condition `json:"condition"`
	UV            float64   `json:"uv"`
}

// ForecastDay is the forecast for one date.
type ForecastDay struct {
	Date      string     `json:"date"`
	DateEpoch int64      `json:"date_epoch"`
	Day       DayWeather `json:"day"`
}

// CityWeather is the complete weather document for one city key
// ("City, Country").
type CityWeather struct {
	Location Location                 `json:"location"`
	Current  CurrentWeather           `json:"current"`
	Forecast map[string][]ForecastDay `json:"forecast"`
}

// Validate checks the structural completeness of a city document. Field
// range checks (temperature bounds and the like) are the dq_checks
// step's job; extraction only rejects documents it cannot work with.
func (w CityWeather) Validate() error {
	if w.Location.Name == "" {
		return fmt.Errorf("location name is empty")
	}
	if w.Location.Country == "" {
		return fmt.Errorf("location country is empty")
	}
	days, ok := w.Forecast["forecastday"]
	if !ok || len(days) == 0 {
		return fmt.Errorf("forecast has no forecastday entries")
	}
	for i, d := range days {
		if d.Date == "" {
			return fmt.Errorf("forecastday[%d] has no date", i)
		}
	}
	return nil
}

// ForecastDays returns the forecast entries in document order.
func (w CityWeather) ForecastDays() []ForecastDay {
	return w.Forecast["forecastday"]
}
