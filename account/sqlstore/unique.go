package sqlstore

import (
	"errors"
	"strings"

	"github.com/MrEthical07/authgate/account"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pqUniqueViolation = "23505"

// classify turns a driver unique violation into *account.DuplicateError.
// It returns nil for every other error.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
			return nil
		}
		field, ok := sqliteField(sqliteErr.Error())
		if !ok {
			return nil
		}
		return &account.DuplicateError{Field: field, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pqUniqueViolation {
			return nil
		}
		return &account.DuplicateError{Field: constraintField(pqErr.Constraint), Err: err}
	}
	return nil
}

// sqliteField parses "UNIQUE constraint failed: users.email".
func sqliteField(msg string) (account.Field, bool) {
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	target := msg[i+len(marker):]
	if strings.HasPrefix(target, "social_links.") {
		return account.FieldLink, true
	}
	target = strings.TrimPrefix(target, "users.")
	if j := strings.IndexAny(target, ", )"); j >= 0 {
		target = target[:j]
	}
	return account.Field(target), target != ""
}

// constraintField maps a constraint such as users_email_key to its column.
func constraintField(constraint string) account.Field {
	if strings.HasPrefix(constraint, "social_links") {
		return account.FieldLink
	}
	name := strings.TrimSuffix(strings.TrimPrefix(constraint, "users_"), "_key")
	return account.Field(name)
}
