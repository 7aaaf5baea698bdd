// Package token issues and parses the signed bearer tokens used for API
// access and session refresh.
//
// Both token kinds are JWTs carrying a typ claim that pins the token to a
// single use: an access token can never be presented for refresh and a
// refresh token can never authenticate a request. HS256 with a shared secret
// is the default; an Ed25519 keypair can be configured instead.
package token
