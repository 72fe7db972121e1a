// Package middleware exposes HTTP guards built on authgate.Engine token
// validation.
//
// # Guards
//
//   - [Guard]: requires a valid, unrevoked bearer token.
//   - [RequireVerification]: Guard for credential changes, additionally
//     honoring Sensitive.MaxTokenAge.
//
// Both read the Authorization header, call the Engine, and store the claims
// and raw token in the request context. Rejections are written as the JSON
// envelope {"success":false,"message":...} with status 401.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
