// Package api provides HTTP handlers for the generation API: creating
// generations, registering users, reading quota status, and triggering
// the recovery sweep.
package api
