// Package orchestrator sequences the build-validation pipeline.
//
// Phases run in a fixed order:
//   - Dependencies: go.mod parsing, require versions, `go list -m all`
//   - ProjectReferences: local replace targets and reference cycles
//   - Compilation: toolchain compatibility and `go build ./...` per module
//   - Docker: Dockerfile and compose analysis, optional build tests
//   - Environment: required variables and certificate expiry
//   - Testing: gated Unit, Integration and Component tiers plus error simulation
//   - Monitoring: writes the monitoring configuration
//
// After a validation phase fails, its errors are handed to the resolution
// registry before the next phase starts. Testing errors are reported only.
// The overall status is the escalation of every phase status, so it is never
// better than the worst phase.
//
// Example usage:
//
//	o, err := orchestrator.New(orchestrator.RequiredConfig{
//		Workspace: ws,
//		Runner:    exec.NewRunner(),
//	}, orchestrator.WithConfig(cfg))
//	result := o.Run(ctx, orchestrator.TargetAll)
package orchestrator
