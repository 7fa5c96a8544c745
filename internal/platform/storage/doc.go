// Package storage persists generation artifacts in an S3-compatible bucket.
// Result URLs returned by the external generation service expire, so every
// artifact is re-homed into the bucket before its URL is recorded anywhere
// durable.
package storage
