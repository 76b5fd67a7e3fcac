// Package failure defines the error markers shared by the scheduler,
// dispatcher, executors, and controller, plus Wrap for attaching scope and
// operation context. Callers classify errors with errors.Is against the
// exported markers.
package failure
