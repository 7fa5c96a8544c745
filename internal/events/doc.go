// Package events carries resolved-task notifications between the
// orchestration layer and delivery-side components. Emitters publish
// without knowing which handlers are registered, which keeps the pipeline
// free of messaging dependencies.
package events
