// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification also accepts bcrypt hashes ($2a$, $2b$, $2y$) written by
// earlier account imports. Stored values that are neither are rejected;
// there is no plaintext comparison path.
//
// # What this package must NOT do
//
//   - Enforce password policy. Length rules belong to the engine.
//   - Log plaintext passwords.
package password
