// Package postgres contains the PostgreSQL implementations of the store
// interfaces. Quota mutations are single atomic UPDATE statements; task
// mutations are guarded by the processing status so terminal rows stay
// immutable; a partial unique index enforces at most one non-terminal task
// per user.
package postgres
