package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialects accepted by Open and New.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

const userColumns = `id, name, password_hash, email, phone, wechat_openid, alipay_user_id, created_at, updated_at`

func init() {
	// sqlx only knows the cgo driver name; modernc registers as "sqlite".
	sqlx.BindDriver(DialectSQLite, sqlx.QUESTION)
}

// columns is the closed set of user columns callers may look up or update.
var columns = map[account.Field]string{
	account.FieldID:           "id",
	account.FieldName:         "name",
	account.FieldEmail:        "email",
	account.FieldPhone:        "phone",
	account.FieldPasswordHash: "password_hash",
	account.FieldWechatOpenID: "wechat_openid",
	account.FieldAlipayUserID: "alipay_user_id",
}

// Store is the SQL account store. It is safe for concurrent use.
type Store struct {
	db      *sqlx.DB
	ext     sqlx.ExtContext
	dialect string
	now     func() time.Time
}

// Open connects to dsn with the given dialect and verifies the connection.
func Open(ctx context.Context, dialect, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	switch dialect {
	case DialectSQLite:
		if !strings.Contains(dsn, "foreign_keys") {
			dsn += sep(dsn) + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	db, err := sqlx.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(db, dialect), nil
}

// New wraps an existing handle.
func New(db *sqlx.DB, dialect string) *Store {
	return &Store{db: db, ext: db, dialect: dialect, now: time.Now}
}

// Migrate creates the users, social_links and login_logs tables if missing.
func (s *Store) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.ext.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// InTx runs fn inside a transaction. fn receives a Store bound to the
// transaction; returning an error rolls it back.
func (s *Store) InTx(ctx context.Context, fn func(tx account.Store) error) error {
	if _, nested := s.ext.(*sqlx.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	bound := &Store{db: s.db, ext: tx, dialect: s.dialect, now: s.now}
	if err := fn(bound); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type userRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	PasswordHash sql.NullString `db:"password_hash"`
	Email        sql.NullString `db:"email"`
	Phone        sql.NullString `db:"phone"`
	WechatOpenID sql.NullString `db:"wechat_openid"`
	AlipayUserID sql.NullString `db:"alipay_user_id"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

func (r userRow) toUser() *account.User {
	return &account.User{
		ID:           r.ID,
		Name:         r.Name,
		PasswordHash: r.PasswordHash.String,
		Email:        r.Email.String,
		Phone:        r.Phone.String,
		WechatOpenID: r.WechatOpenID.String,
		AlipayUserID: r.AlipayUserID.String,
		CreatedAt:    time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

// FindBy returns the user whose field equals value.
func (s *Store) FindBy(ctx context.Context, field account.Field, value string) (*account.User, error) {
	col, ok := columns[field]
	if !ok || field == account.FieldPasswordHash {
		return nil, fmt.Errorf("%w: %s", account.ErrUnknownField, field)
	}
	var arg any = value
	if field == account.FieldID {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, account.ErrNotFound
		}
		arg = id
	}

	var row userRow
	q := s.ext.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + col + ` = ?`)
	if err := sqlx.GetContext(ctx, s.ext, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("find user by %s: %w", field, err)
	}
	return row.toUser(), nil
}

// Create inserts u.
func (s *Store) Create(ctx context.Context, u *account.User) (*account.User, error) {
	if u == nil || strings.TrimSpace(u.Name) == "" {
		return nil, errors.New("user name is required")
	}
	now := s.now().Unix()
	q := s.ext.Rebind(`INSERT INTO users (name, password_hash, email, phone, wechat_openid, alipay_user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := s.ext.QueryRowxContext(ctx, q,
		u.Name,
		nullable(u.PasswordHash),
		nullable(u.Email),
		nullable(u.Phone),
		nullable(u.WechatOpenID),
		nullable(u.AlipayUserID),
		now, now,
	).Scan(&id)
	if err != nil {
		if dup := classify(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	created := *u
	created.ID = id
	created.CreatedAt = time.Unix(now, 0).UTC()
	created.UpdatedAt = created.CreatedAt
	return &created, nil
}

// UpdateField sets one column of the user with id. An empty value clears
// optional columns.
func (s *Store) UpdateField(ctx context.Context, id int64, field account.Field, value string) (int64, error) {
	col, ok := columns[field]
	if !ok || field == account.FieldID {
		return 0, fmt.Errorf("%w: %s", account.ErrUnknownField, field)
	}
	var arg any = nullable(value)
	if field == account.FieldName {
		arg = value
	}

	q := s.ext.Rebind(`UPDATE users SET ` + col + ` = ?, updated_at = ? WHERE id = ?`)
	res, err := s.ext.ExecContext(ctx, q, arg, s.now().Unix(), id)
	if err != nil {
		if dup := classify(err); dup != nil {
			return 0, dup
		}
		return 0, fmt.Errorf("update user %s: %w", field, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update user %s: %w", field, err)
	}
	return n, nil
}

type linkRow struct {
	ID             int64          `db:"id"`
	UserID         int64          `db:"user_id"`
	Platform       string         `db:"platform"`
	ProviderUserID string         `db:"provider_user_id"`
	UnionID        sql.NullString `db:"union_id"`
	CreatedAt      int64          `db:"created_at"`
}

// FindLink returns the link for the provider identity.
func (s *Store) FindLink(ctx context.Context, platform, providerUserID string) (*account.SocialLink, error) {
	var row linkRow
	q := s.ext.Rebind(`SELECT id, user_id, platform, provider_user_id, union_id, created_at
FROM social_links WHERE platform = ? AND provider_user_id = ?`)
	if err := sqlx.GetContext(ctx, s.ext, &row, q, platform, providerUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("find social link: %w", err)
	}
	return &account.SocialLink{
		ID:             row.ID,
		UserID:         row.UserID,
		Platform:       row.Platform,
		ProviderUserID: row.ProviderUserID,
		UnionID:        row.UnionID.String,
		CreatedAt:      time.Unix(row.CreatedAt, 0).UTC(),
	}, nil
}

// CreateLink inserts link.
func (s *Store) CreateLink(ctx context.Context, link *account.SocialLink) (*account.SocialLink, error) {
	if link == nil || link.UserID == 0 || link.Platform == "" || link.ProviderUserID == "" {
		return nil, errors.New("social link requires user, platform and provider user id")
	}
	now := s.now().Unix()
	q := s.ext.Rebind(`INSERT INTO social_links (user_id, platform, provider_user_id, union_id, created_at)
VALUES (?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := s.ext.QueryRowxContext(ctx, q, link.UserID, link.Platform, link.ProviderUserID, nullable(link.UnionID), now).Scan(&id)
	if err != nil {
		if dup := classify(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("create social link: %w", err)
	}
	created := *link
	created.ID = id
	created.CreatedAt = time.Unix(now, 0).UTC()
	return &created, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sep(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

var (
	_ account.Store      = (*Store)(nil)
	_ account.Transactor = (*Store)(nil)
)
