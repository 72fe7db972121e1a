package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
)

var (
	// ErrCodeNotFound means no code is stored, it expired, or a concurrent
	// request already redeemed it.
	ErrCodeNotFound = errors.New("code not found or expired")
	// ErrCodeMismatch means a code is stored but the guess differs.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrCodeBackend wraps ephemeral store failures.
	ErrCodeBackend = errors.New("code store unavailable")
)

// CodeStore holds one code per subject under prefix+subject+suffix.
type CodeStore struct {
	store  ephemeral.Store
	prefix string
	suffix string
	ttl    time.Duration
	// foldCase compares case-insensitively.
	foldCase bool
	// burnOnMismatch consumes the code on a wrong guess as well.
	burnOnMismatch bool
}

// NewSMSCodeStore stores SMS login codes at sms:code:<phone>. A mismatch
// leaves the code in place so the user can retry within its lifetime.
func NewSMSCodeStore(store ephemeral.Store, ttl time.Duration) *CodeStore {
	return &CodeStore{store: store, prefix: "sms:code:", ttl: ttl}
}

// NewCaptchaStore stores captcha answers at captcha:<sessionId>_captcha.
// Answers are compared case-insensitively and are burned by any attempt.
func NewCaptchaStore(store ephemeral.Store, ttl time.Duration) *CodeStore {
	return &CodeStore{
		store:          store,
		prefix:         "captcha:",
		suffix:         "_captcha",
		ttl:            ttl,
		foldCase:       true,
		burnOnMismatch: true,
	}
}

func (s *CodeStore) key(subject string) string {
	return s.prefix + subject + s.suffix
}

// Put stores code for subject, replacing any previous code.
func (s *CodeStore) Put(ctx context.Context, subject, code string) error {
	if err := s.store.Set(ctx, s.key(subject), s.fold(code), s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeBackend, err)
	}
	return nil
}

// Discard deletes the code of subject if any.
func (s *CodeStore) Discard(ctx context.Context, subject string) error {
	if _, err := s.store.Delete(ctx, s.key(subject)); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeBackend, err)
	}
	return nil
}

// Verify redeems code for subject. It returns ErrCodeNotFound when no code
// is stored or another request redeemed it first, and ErrCodeMismatch when
// the guess is wrong. The comparison and the removal are one atomic store
// operation, so a code written concurrently by a resend is never consumed
// by a guess at the previous one.
func (s *CodeStore) Verify(ctx context.Context, subject, code string) error {
	key := s.key(subject)
	if s.burnOnMismatch {
		stored, ok, err := s.store.Take(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCodeBackend, err)
		}
		if !ok {
			return ErrCodeNotFound
		}
		if subtle.ConstantTimeCompare([]byte(s.fold(stored)), []byte(s.fold(code))) != 1 {
			return ErrCodeMismatch
		}
		return nil
	}

	removed, found, err := s.store.DeleteIfEquals(ctx, key, s.fold(code))
	switch {
	case err != nil:
		return fmt.Errorf("%w: %v", ErrCodeBackend, err)
	case !found:
		return ErrCodeNotFound
	case !removed:
		return ErrCodeMismatch
	}
	return nil
}

func (s *CodeStore) fold(code string) string {
	if s.foldCase {
		return strings.ToLower(code)
	}
	return code
}
