// Package authgate is a multi-strategy authentication gateway: SMS code,
// email and password, and WeChat or Alipay account links, all ending in an
// HMAC-signed bearer token that can be revoked before it expires.
//
// An [Engine] is assembled once through [Builder.Build] and is safe for
// concurrent use. It keeps no request state in process; codes, lockout
// counters, revocations and OAuth state live in Redis, accounts in the
// configured [account.Store].
//
// # Architecture boundaries
//
// authgate is the public surface. Login strategies live in strategy/, the
// provider flow in oauth/, token handling in jwt/ and hashing in password/.
// Ephemeral state, throttles and the login log live under internal/ and
// are never exported.
//
// # Failure policy
//
// Revocation lookups and lockout bookkeeping fail open and log a warning;
// a Redis outage degrades throttling but never locks every user out. Code
// verification, OAuth state and registration throttling fail closed.
package authgate
