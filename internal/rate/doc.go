// Package rate provides a fixed-window counter on the shared ephemeral store.
//
// # Window semantics
//
// INCR + conditional EXPIRE on the first hit. The window starts with the first
// request and does not slide. Key prefixes in use:
//   - "sms:rate:" counts SMS sends per phone
//   - "register:ip:" counts registrations per client IP
//
// # What this package must NOT do
//
//   - Keep counters in process memory; every instance must share one window.
//   - Implement login lockout (that lives in internal/limiters).
package rate
