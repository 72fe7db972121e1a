// Package sqlstore implements account.Store over database/sql with sqlx.
//
// Two dialects are supported: "sqlite" (modernc.org/sqlite, used for
// development and tests) and "postgres" (github.com/lib/pq). Uniqueness of
// name, email, phone and provider ids is enforced by the schema, and a
// violation is reported as *account.DuplicateError naming the column.
// Timestamps are stored as unix seconds.
package sqlstore
