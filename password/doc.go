// Package password provides the one-way credential hasher used by the
// authentication engine.
//
// Hashing is bcrypt with a configurable cost factor. Cost is chosen so that
// a single hash takes on the order of 100ms on reference hardware; because
// that work is CPU-bound, the hasher bounds the number of concurrent
// hash/verify operations with a weighted semaphore so that a burst of login
// traffic cannot starve unrelated request handling.
package password
