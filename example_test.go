package stepflow_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/petrijr/stepflow"
)

func fetchGreeting(_ context.Context, _ stepflow.Payload, _ stepflow.StepConfig, _ *slog.Logger) (stepflow.Payload, error) {
	return stepflow.DocPayload([]byte("hello, pipelines")), nil
}

func shout(_ context.Context, input stepflow.Payload, _ stepflow.StepConfig, _ *slog.Logger) (stepflow.Payload, error) {
	return stepflow.DocPayload([]byte(strings.ToUpper(string(input.Doc)))), nil
}

// Example_pipelineBuilder demonstrates defining and running a simple
// pipeline with the PipelineBuilder API and in-memory stores.
func Example_pipelineBuilder() {
	ctx := context.Background()

	pipe := stepflow.New("greeting").
		Step("fetch", fetchGreeting).
		Step("shout", shout)

	orc, err := stepflow.NewInMemoryOrchestrator(pipe, stepflow.Options{})
	if err != nil {
		log.Fatal(err)
	}

	res, err := stepflow.Run(ctx, orc)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("executed %v\n", res.Executed)
	fmt.Printf("output: %s\n", res.Data["shout"].Doc)
	// Output:
	// executed [fetch shout]
	// output: HELLO, PIPELINES
}

// Example_fanOut demonstrates the bounded fan-out executor used inside
// step handlers that process many independent items.
func Example_fanOut() {
	ctx := context.Background()

	cities := map[string]float64{"lisbon": 21.5, "oslo": -3}
	fahrenheit, err := stepflow.FanOut(ctx, cities, 2, func(_ context.Context, _ string, c float64) (float64, error) {
		return c*9/5 + 32, nil
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("lisbon: %.1f\n", fahrenheit["lisbon"])
	fmt.Printf("oslo: %.1f\n", fahrenheit["oslo"])
	// Output:
	// lisbon: 70.7
	// oslo: 26.6
}
