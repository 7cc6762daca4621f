package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/petrijr/stepflow/pkg/api"
)

// ExecuteExtract reads the weather JSON document named by the step's
// "input" parameter, validates every city entry, and emits the validated
// document as the pipeline's opaque raw artifact.
func ExecuteExtract(ctx context.Context, _ api.Payload, cfg api.StepConfig, logger *slog.Logger) (api.Payload, error) {
	path := cfg.String("input", "")
	if path == "" {
		return api.Payload{}, fmt.Errorf("extract: no input file configured")
	}

	logger.Debug("reading weather file", slog.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Payload{}, fmt.Errorf("read %s: %w", path, err)
	}

	var cities map[string]CityWeather
	if err := json.Unmarshal(data, &cities); err != nil {
		return api.Payload{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cities) == 0 {
		return api.Payload{}, fmt.Errorf("%s contains no city entries", path)
	}

	for key, city := range cities {
		if err := city.Validate(); err != nil {
			return api.Payload{}, fmt.Errorf("invalid entry %q: %w", key, err)
		}
	}

	// Re-marshal so the persisted raw artifact holds exactly the fields
	// the model understands, independent of source formatting.
	doc, err := json.Marshal(cities)
	if err != nil {
		return api.Payload{}, err
	}

	logger.Info("extracted weather data",
		slog.Int("cities", len(cities)),
		slog.Int("bytes", len(doc)),
	)
	return api.DocPayload(doc), nil
}
