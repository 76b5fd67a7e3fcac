// Package cleanup collects paths to delete once a run has finished.
//
// Hooks register paths on the Cleaner owned by the pipeline. Runner contexts
// live in another process, so they record calls on a Deferred registrar; the
// calls travel back with the context result and are replayed on the Cleaner
// in the parent.
package cleanup
