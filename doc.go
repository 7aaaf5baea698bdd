// Package logauth is the credential and session-security engine of the
// logware platform.
//
// The engine owns registration, login with failed-attempt lockout, TOTP
// two-factor enforcement, access/refresh token issuance with rotation and
// revocation, and the password-reset token lifecycle. It is deliberately
// router-agnostic: the httpapi package adapts it to HTTP, but any transport
// can drive it.
//
// Accounts persist through the caller-supplied [AccountStore]; shared
// security state (lockout counters, the refresh deny-list) lives in Redis
// so every process observes the same decisions.
//
// Construction goes through the builder:
//
//	engine, err := logauth.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithAccountStore(store).
//		Build()
//
// Engines are safe for concurrent use. Call Close on shutdown to flush the
// audit dispatcher.
package logauth
