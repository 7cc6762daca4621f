package api

import "time"

// StepMetadata is one append-only audit entry for a step execution.
// Entries accumulate per step across runs and resumes; they are never
// overwritten and survive end-of-run cleanup.
type StepMetadata struct {
	Step       string               `json:"step"`
	Status     Status               `json:"status"`
	StartTime  time.Time            `json:"start_time"`
	EndTime    time.Time            `json:"end_time"`
	DurationMS int64                `json:"duration_ms"`
	Inputs     []ArtifactDescriptor `json:"input_files"`
	Outputs    []ArtifactDescriptor `json:"output_files"`
	Error      string               `json:"error,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// NewStepMetadata builds a metadata entry for one execution of step.
// failErr may be nil for completed executions.
func NewStepMetadata(step string, status Status, start, end time.Time, inputs, outputs []ArtifactDescriptor, failErr error) StepMetadata {
	md := StepMetadata{
		Step:       step,
		Status:     status,
		StartTime:  start,
		EndTime:    end,
		DurationMS: end.Sub(start).Milliseconds(),
		Inputs:     inputs,
		Outputs:    outputs,
		Timestamp:  time.Now(),
	}
	if failErr != nil {
		md.Error = failErr.Error()
	}
	return md
}
