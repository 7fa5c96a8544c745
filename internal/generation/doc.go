// Package generation defines the contract for submitting image generation
// jobs to an external service and waiting for their results. The orchestrator
// depends only on the Client interface here; concrete transports live under
// internal/platform.
package generation
