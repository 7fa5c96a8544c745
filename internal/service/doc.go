// Package service contains the application layer of the generation
// orchestrator: the quota ledger, the two-step pipeline runner, the
// recovery sweeper that resolves tasks stranded by dead invocations, and
// the user provisioner.
package service
