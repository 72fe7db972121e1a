package account

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Field names a lookup or update column of a User.
type Field string

const (
	FieldID           Field = "id"
	FieldName         Field = "name"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldPasswordHash Field = "password_hash"
	FieldWechatOpenID Field = "wechat_openid"
	FieldAlipayUserID Field = "alipay_user_id"

	// FieldLink names the (platform, provider user id) pair of a SocialLink
	// in a DuplicateError.
	FieldLink Field = "social_link"
)

// Supported OAuth platforms.
const (
	PlatformWechat = "wechat"
	PlatformAlipay = "alipay"
)

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate matches every DuplicateError.
	ErrDuplicate = errors.New("account field already in use")
	// ErrUnknownField is returned for a Field outside the supported set.
	ErrUnknownField = errors.New("unknown account field")
)

// DuplicateError reports a unique constraint violation on Field.
type DuplicateError struct {
	Field Field
	Err   error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicate, e.Field)
}

func (e *DuplicateError) Unwrap() error { return e.Err }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// IsDuplicate reports whether err is a DuplicateError on field.
func IsDuplicate(err error, field Field) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) && dup.Field == field
}

// User is an account record. Optional fields are empty strings when unset.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	Email        string
	Phone        string
	WechatOpenID string
	AlipayUserID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProviderID returns the provider-bound id of u for platform.
func (u *User) ProviderID(platform string) string {
	switch platform {
	case PlatformWechat:
		return u.WechatOpenID
	case PlatformAlipay:
		return u.AlipayUserID
	}
	return ""
}

// SocialLink binds a provider identity to a user.
type SocialLink struct {
	ID             int64
	UserID         int64
	Platform       string
	ProviderUserID string
	UnionID        string
	CreatedAt      time.Time
}

// ProviderField maps a platform to the User column holding its provider id.
func ProviderField(platform string) (Field, bool) {
	switch platform {
	case PlatformWechat:
		return FieldWechatOpenID, true
	case PlatformAlipay:
		return FieldAlipayUserID, true
	}
	return "", false
}

// Store is the relational account store. Implementations enforce uniqueness
// of name, email, phone and every provider id, and of (platform,
// provider user id) for links.
type Store interface {
	FindBy(ctx context.Context, field Field, value string) (*User, error)
	// Create inserts u and returns it with ID and timestamps set. A unique
	// violation is reported as *DuplicateError.
	Create(ctx context.Context, u *User) (*User, error)
	// UpdateField sets one column and returns the number of rows changed.
	UpdateField(ctx context.Context, id int64, field Field, value string) (int64, error)
	FindLink(ctx context.Context, platform, providerUserID string) (*SocialLink, error)
	CreateLink(ctx context.Context, link *SocialLink) (*SocialLink, error)
}

// Transactor is implemented by stores that can run several calls atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
}
