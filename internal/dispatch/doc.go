// Package dispatch fans samples out to runners and collects what comes back.
//
// Each runner partitions the samples (one group, one group per sample, or one
// group per value of a split attribute). Every (runner, partition) pair is a
// context with its own working directory, logger, and executor. Contexts run
// concurrently up to a worker bound, either as child processes that re-execute
// the binary (ProcessLauncher) or in goroutines (InlineLauncher). Samples
// cross the context boundary serialised, so a context never shares records
// with its parent or its siblings.
//
// A context that fails, panics, or dies fails every sample of its partition;
// siblings are unaffected. Records coming back are tagged with the runner
// outcome and concatenated; merging them is left to the merge package.
package dispatch
