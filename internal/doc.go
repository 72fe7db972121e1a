// Package internal contains helpers that are private to authgate, chiefly
// secure random generation of one-time codes and OAuth state.
//
// # Sub-packages
//
//   - audit: async login-log dispatch (Dispatcher + Sink implementations)
//   - ephemeral: TTL key/value store on Redis
//   - limiters: login lockout and registration throttle
//   - rate: fixed-window counters
//   - revocation: token blacklist
//   - stores: single-use codes and OAuth state
//   - httpapi: HTTP boundary used by cmd/authgated
package internal
