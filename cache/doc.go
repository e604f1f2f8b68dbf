// Package cache provides read/write access to dynpb's compiled schema
// cache.
//
// Compiling a proto tree is the dominant cost of most invocations, so
// Store keeps the serialized compiler output keyed by a digest of the
// source files. Load returns the stored bytes as long as every source is
// unchanged; any edit produces a different key and misses.
package cache
