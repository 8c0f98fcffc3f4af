// Package store keeps the school records in memory and persists them to the
// CSV checkpoint file. Every mutation that matters for resuming a run is
// written through with an atomic temp-file rename.
package store
