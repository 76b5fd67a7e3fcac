// Package config loads, normalizes, and validates samplepipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SAMPLEPIPE_TAG and SAMPLEPIPE_EXECUTOR. The Config type centralizes every
// knob the controller, dispatcher, and executors need, plus the free-form
// [modules.<name>] tables that pipeline modules read through Values.
//
// The configuration is read-only once loaded. Runner contexts that execute in
// a child process receive it re-encoded as TOML (Encode/Parse), so every
// context observes the same values.
package config
