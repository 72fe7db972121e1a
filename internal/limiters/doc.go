// Package limiters provides the policy-level throttles of the gateway.
//
// # Limiters
//
//   - [Lockout]: consecutive login failures per principal with a timed lock.
//   - [AccountCreationLimiter]: per-IP throttle for registrations, built on internal/rate.
//
// All state lives in the ephemeral store. Keys:
//   - login:failed:<principal>: failure counter, TTL = lock duration + margin
//   - login:locked:<principal>: lock marker, TTL = lock duration
//
// # What this package must NOT do
//
//   - Decide how a lock is presented to the user; the engine formats errors.
//   - Keep counters in process memory.
package limiters
