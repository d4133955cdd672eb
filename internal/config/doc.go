// Package config loads, normalizes, and validates chordcast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CHORDCAST_OUTPUT. The Config type centralizes every knob the stream session
// and CLI need: where the named pipes live, the fixed encoder contract, queue
// and pacing parameters, and log output.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
