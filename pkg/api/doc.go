// Package api holds the public types of the stepflow orchestrator: the
// pipeline definition, the step handler contract, payloads and tabular
// artifacts, run metadata, typed errors, observers, and the bounded
// fan-out executor.
//
// Most users import the root stepflow package, which re-exports
// everything here.
package api
