// Package service implements the generation orchestration layer: the quota
// ledger, the two-step pipeline, and the recovery sweeper.
package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// Callers check for these with errors.Is(); the API layer maps them to
// HTTP status codes and machine-readable error codes.
var (
	// ErrQuotaExhausted indicates the user has no usable quota for a new
	// generation: no subscription, an expired or inactive one, or a period
	// allowance already spent. API layer maps this to HTTP 402.
	ErrQuotaExhausted = errors.New("generation quota exhausted")

	// ErrConcurrentTask indicates the user already has a generation task in
	// flight. API layer maps this to HTTP 409 Conflict.
	ErrConcurrentTask = errors.New("user already has an active generation task")

	// ErrNoTemplates indicates no enabled poster template was available for
	// the compose step.
	ErrNoTemplates = errors.New("no enabled poster templates available")
)

// recoveredDetail is the error detail recorded on tasks the sweeper forces
// to failed. It is distinguishable from pipeline failures in logs and
// notifications.
const recoveredDetail = "recovered: exceeded processing ttl"
