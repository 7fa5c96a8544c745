// Package domain defines the core business entities of the generation
// orchestrator: subscriptions (the quota ledger rows), generation tasks
// (the durable pipeline state), poster templates, and the minimal user
// record. Entities validate themselves; persistence and orchestration live
// elsewhere.
package domain
