package weather

import "github.com/petrijr/stepflow/pkg/api"

// Step names of the weather ETL pipeline, in execution order.
const (
	StepExtract   = "extract"
	StepTransform = "transform"
	StepDQChecks  = "dq_checks"
	StepAnalyze   = "analyze"
	StepLoad      = "load"
)

// Handlers maps each pipeline step name to its handler.
func Handlers() map[string]api.HandlerFunc {
	return map[string]api.HandlerFunc{
		StepExtract:   ExecuteExtract,
		StepTransform: ExecuteTransform,
		StepDQChecks:  ExecuteDQChecks,
		StepAnalyze:   ExecuteAnalyze,
		StepLoad:      ExecuteLoad,
	}
}
