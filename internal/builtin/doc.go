// Package builtin provides the hooks and runners every pipeline gets:
// sample validation before dispatch, copying of declared outputs into the
// result directory, and modules backed by external scripts declared in the
// configuration file.
package builtin
