package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
)

// Login type tags.
const (
	TypePhone  = "phone"
	TypeEmail  = "email"
	TypeWechat = account.PlatformWechat
	TypeAlipay = account.PlatformAlipay
)

// Request carries the raw login input. Principal is the phone, email or
// (for social logins, optionally) the authorization code; Credential is
// the SMS code, password or authorization code.
type Request struct {
	Principal  string
	Credential string
	ClientIP   string
}

// Strategy authenticates one login type.
type Strategy interface {
	Type() string
	Authenticate(ctx context.Context, req Request) (*account.User, error)
}

// Registry maps login types to strategies. It is immutable after
// construction.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry indexes strategies by Type. Duplicate or empty types are
// rejected.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if s == nil {
			return nil, errors.New("nil login strategy")
		}
		t := s.Type()
		if t == "" {
			return nil, errors.New("login strategy with empty type")
		}
		if _, dup := r.strategies[t]; dup {
			return nil, fmt.Errorf("duplicate login strategy %q", t)
		}
		r.strategies[t] = s
	}
	return r, nil
}

// Dispatch runs the strategy registered for loginType.
func (r *Registry) Dispatch(ctx context.Context, loginType string, req Request) (*account.User, error) {
	s, ok := r.strategies[loginType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", autherr.ErrUnsupportedLoginType, loginType)
	}
	return s.Authenticate(ctx, req)
}

// Supports reports whether loginType has a strategy.
func (r *Registry) Supports(loginType string) bool {
	_, ok := r.strategies[loginType]
	return ok
}

// Types lists the registered login types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
