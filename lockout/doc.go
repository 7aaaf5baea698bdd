// Package lockout tracks consecutive failed login attempts per identifier
// and converts a run of failures into a timed account lock.
//
// State lives in the shared Redis store so that every process in the
// deployment observes the same counters. The failure path is a single Lua
// script, so two concurrent failed logins can never both observe attempt
// N-1 and miss the lock threshold.
package lockout
