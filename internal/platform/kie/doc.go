// Package kie implements the generation.Client interface against the
// KIE.ai asynchronous job API.
package kie
