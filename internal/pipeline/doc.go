// Package pipeline drives one run: pre-hooks, parallel runner contexts, the
// merge of their observations, post-hooks, then output and cleanup
// bookkeeping.
//
// The Controller is a small state machine (Init, PreHooks, Dispatch, Merge,
// PostHooks, Done) with Failed reachable from every state. Hook ordering is
// resolved when the controller is built, so dependency cycles surface before
// any module runs. Sample-level failures never fail the run; only a failing
// pre-hook, a lost workspace lock, or an interruption do.
package pipeline
