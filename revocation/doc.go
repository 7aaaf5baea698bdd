// Package revocation invalidates refresh tokens before their natural expiry.
//
// Tokens themselves are stateless, so revocation is a deny-list in the
// shared Redis store keyed by the SHA-256 of the token value. Entries carry
// a TTL no longer than the token's remaining lifetime, after which the
// token is rejected by its exp claim anyway and the entry is garbage.
package revocation
