// Package sample defines the record model shared by every pipeline module.
//
// A Sample is one observation of an input unit: a user-supplied identifier
// (not unique), an instance identifier assigned at creation, ordered files,
// open metadata, a failure reason, and per-runner outcome tags. Modules
// extend the record with typed attributes by contributing an Extension; the
// extensions are composed once into a RecordType, which validates that every
// attribute has a default, owns the merge reducers, and decodes attribute
// values back into their declared types when records cross a process
// boundary.
//
// Samples is the ordered collection passed between stages. Its views
// (Complete, Failed, WithFiles, ...) return new collections sharing the same
// records and never mutate the source.
package sample
