// Package merge reconciles observations of the same sample produced by
// different runner contexts.
//
// Records are grouped by sample identifier. For every attribute, equal values
// are kept as is; differing values are folded left to right with the reducer
// registered on the record type, and attributes without a reducer become a
// Tuple of every observed value in collection order. Per-runner outcome tags
// are unioned so the merged record still answers whether each runner
// processed it.
package merge
