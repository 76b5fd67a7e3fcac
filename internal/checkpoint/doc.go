// Package checkpoint lets a runner skip work whose inputs did not change.
//
// A checkpoint is identified by a label. Its fingerprint covers the files of
// every sample in the context plus the outputs declared for that label, each
// hashed with xxhash over name, size, and modification time. Fingerprints are
// stored in a SQLite database inside the context working directory.
package checkpoint
