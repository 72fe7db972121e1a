// Package stores provides short-lived, single-use records on the ephemeral
// store: SMS login codes, captcha answers and OAuth state values.
//
// # Design
//
// A record is verified by reading it, comparing in constant time, and then
// deleting it. Only the caller whose DELETE actually removed the key counts
// as verified, so a record can never be redeemed twice even when requests
// race.
//
// # What this package must NOT do
//
//   - Generate codes (see internal for random helpers).
//   - Enforce send rate limits.
//   - Log plaintext codes.
package stores
