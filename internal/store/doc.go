// Package store defines the persistence interfaces the orchestrator core
// depends on, the DBTX abstraction shared by connections and transactions,
// sentinel errors for classification across implementations, and a
// transaction runner. Concrete implementations live under
// internal/platform/postgres.
package store
