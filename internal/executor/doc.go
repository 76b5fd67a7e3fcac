// Package executor tracks externally run jobs for one hook or runner
// invocation.
//
// An Executor owns the jobs submitted through it and nothing else: Wait and
// Terminate never reach jobs of another instance, and Close terminates and
// reaps whatever is still running when the invocation ends. Where a job runs
// is decided by a Backend (see the local, sge, and mock subpackages); every
// backend reports completion through a Handle and maps exit statuses the same
// way, so module code is backend agnostic.
package executor
