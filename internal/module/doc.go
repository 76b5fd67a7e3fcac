// Package module describes the hooks and runners a pipeline is assembled
// from, the invocation they receive, and the registry that collects them.
//
// Every invocation gets its own Executor, Logger, and working directory. A
// module returns a replacement collection or nil to keep the one it was
// given; returning an error fails the invocation.
package module
