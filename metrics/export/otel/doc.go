// Package otel exports engine metrics through OpenTelemetry observable
// instruments: counters and histogram buckets are read from snapshots on
// each collection cycle rather than pushed per event.
package otel
