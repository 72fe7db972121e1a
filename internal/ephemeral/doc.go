// Package ephemeral provides the TTL key/value store behind one-time codes,
// the token blacklist, failure counters, lock flags and rate windows.
//
// # Atomicity
//
// Each [Store] call maps to one Redis command, so operations on a single key
// are linearizable. Compositions such as [IncrementWithTTL] are not atomic as
// a whole; callers rely on INCR being the authoritative step.
//
// # What this package must NOT do
//
//   - Hold request state in process memory.
//   - Interpret the values it stores.
package ephemeral
