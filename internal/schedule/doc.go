// Package schedule orders hooks from their declared before/after constraints.
//
// Constraints name other hooks of the same phase or use the All sentinel,
// which expands into an edge against every other hook except those that
// declare All in the same direction and those bound by an explicit
// constraint pointing the other way. Ordering uses Kahn's algorithm with a
// registration-order tie break, so results are deterministic, but callers
// must only rely on the declared constraints. Cycles and duplicate names are
// configuration errors reported before anything runs.
package schedule
