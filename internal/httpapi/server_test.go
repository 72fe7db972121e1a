package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/account/sqlstore"
	"github.com/MrEthical07/authgate/oauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

type memorySender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *memorySender) SendCode(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[phone] = code
	return nil
}

func (s *memorySender) code(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type stubProvider struct{}

func (stubProvider) Platform() string { return "wechat" }

func (stubProvider) AuthURL(state string) string {
	return "https://open.weixin.test/connect?state=" + state
}

func (stubProvider) ExchangeCode(_ context.Context, code string) (*oauth.Token, error) {
	return &oauth.Token{AccessToken: "at", ProviderUserID: "wx-openid-1"}, nil
}

func (stubProvider) FetchProfile(_ context.Context, tok *oauth.Token) (*oauth.Profile, error) {
	return &oauth.Profile{Platform: "wechat", ProviderUserID: tok.ProviderUserID, Nickname: "Neo"}, nil
}

type apiEnv struct {
	handler http.Handler
	sms     *memorySender
}

func newAPIEnv(t *testing.T, opts Options) *apiEnv {
	t.Helper()
	return newAPIEnvWith(t, opts, nil)
}

func newAPIEnvWith(t *testing.T, opts Options, configure func(*authgate.Config)) *apiEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	users, err := sqlstore.Open(context.Background(), sqlstore.DialectSQLite, filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = users.Close() })
	if err := users.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := authgate.DefaultConfig()
	cfg.JWT.Secret = []byte("httpapi-test-secret-httpapi-test")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	if configure != nil {
		configure(&cfg)
	}

	sender := &memorySender{}
	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(users).
		WithSMSSender(sender).
		WithProviders(stubProvider{}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &apiEnv{handler: New(engine, nil, opts).Handler(), sms: sender}
}

func (env *apiEnv) do(t *testing.T, method, target string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var out envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
		}
	}
	return rec, out
}

func dataField(t *testing.T, body envelope, key string) any {
	t.Helper()
	m, ok := body.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %#v", body.Data)
	}
	return m[key]
}

func TestRegisterLoginInfoLogout(t *testing.T) {
	env := newAPIEnv(t, Options{})

	rec, body := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice", "password": "correct-horse", "email": "alice@example.com",
	}, "")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("register: %d %+v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"loginType": "email", "principal": "alice@example.com", "credential": "correct-horse",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %+v", rec.Code, body)
	}
	token, _ := dataField(t, body, "token").(string)
	if token == "" || dataField(t, body, "username") != "alice" {
		t.Fatalf("unexpected login data %+v", body.Data)
	}

	rec, body = env.do(t, http.MethodGet, "/api/user/info", nil, token)
	if rec.Code != http.StatusOK || dataField(t, body, "email") != "alice@example.com" {
		t.Fatalf("user info: %d %+v", rec.Code, body)
	}

	if rec, body = env.do(t, http.MethodPost, "/api/auth/logout", nil, token); rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("logout: %d %+v", rec.Code, body)
	}
	if rec, _ = env.do(t, http.MethodGet, "/api/user/info", nil, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be refused, got %d", rec.Code)
	}
	if rec, body = env.do(t, http.MethodPost, "/api/auth/logout", nil, ""); rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("anonymous logout: %d %+v", rec.Code, body)
	}
}

func TestLoginFailureCarriesRemainingAttempts(t *testing.T) {
	env := newAPIEnv(t, Options{})
	env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "bob", "password": "correct-horse", "email": "bob@example.com",
	}, "")

	rec, body := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"loginType": "email", "principal": "bob@example.com", "credential": "wrong-password",
	}, "")
	if rec.Code != http.StatusUnauthorized || body.Success {
		t.Fatalf("expected 401, got %d %+v", rec.Code, body)
	}
	if got := dataField(t, body, "remainingAttempts"); got != float64(4) {
		t.Fatalf("remaining attempts = %v", got)
	}

	rec, body = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"loginType": "github", "principal": "x", "credential": "y",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown login type, got %d %+v", rec.Code, body)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newAPIEnv(t, Options{})
	cases := []struct {
		name    string
		path    string
		body    any
		message string
	}{
		{"no contact", "/api/auth/register", map[string]string{"username": "carol", "password": "correct-horse"}, "email or phone is required"},
		{"bad email", "/api/auth/register", map[string]string{"username": "carol", "password": "correct-horse", "email": "nope"}, "email must be a valid email address"},
		{"short password", "/api/auth/register", map[string]string{"username": "carol", "password": "short", "phone": "13800138000"}, "password policy violation: password must be at least 8 characters"},
		{"missing type", "/api/auth/login", map[string]string{"credential": "x"}, "loginType is required"},
		{"malformed json", "/api/auth/login", `{"loginType":`, "invalid request body"},
		{"unknown field", "/api/auth/login", `{"loginType":"email","credential":"x","extra":1}`, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, tc.path, tc.body, "")
			if rec.Code != http.StatusBadRequest || body.Message != tc.message {
				t.Fatalf("got %d %q", rec.Code, body.Message)
			}
		})
	}
}

func TestRegisterUsesConfiguredBounds(t *testing.T) {
	env := newAPIEnvWith(t, Options{}, func(cfg *authgate.Config) {
		cfg.Account.MaxUsernameLength = 40
		cfg.Password.MinLength = 14
	})

	long := strings.Repeat("u", 36)
	rec, body := env.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"username": long, "password": "correct-horse", "email": "long@example.com"}, "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(body.Message, "at least 14") {
		t.Fatalf("expected configured password minimum, got %d %q", rec.Code, body.Message)
	}

	rec, body = env.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"username": long, "password": "correct-horse-battery", "email": "long@example.com"}, "")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("expected configured username maximum to allow 36 characters, got %d %q", rec.Code, body.Message)
	}

	rec, body = env.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"username": "ab", "password": "correct-horse-battery", "phone": "13800138000"}, "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(body.Message, "username must be 3 to 40 characters") {
		t.Fatalf("expected engine username bounds, got %d %q", rec.Code, body.Message)
	}
}

func TestCaptchaThenSMSThenPhoneLogin(t *testing.T) {
	var mu sync.Mutex
	answers := map[string]string{}
	renderer := CaptchaRendererFunc(func(w http.ResponseWriter, _ *http.Request, c *authgate.CaptchaChallenge) error {
		mu.Lock()
		answers[c.SessionID] = c.Answer
		mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		_, err := w.Write([]byte("png"))
		return err
	})
	env := newAPIEnv(t, Options{Captcha: renderer})

	env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "dave", "password": "correct-horse", "phone": "13800138000",
	}, "")

	rec, _ := env.do(t, http.MethodGet, "/api/captcha?sessionId=s-1", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Captcha-Session") != "s-1" {
		t.Fatalf("captcha: %d %v", rec.Code, rec.Header())
	}
	if strings.Contains(rec.Body.String(), answers["s-1"]) {
		t.Fatal("captcha answer leaked into the response")
	}

	rec, body := env.do(t, http.MethodPost, "/api/sms/code", map[string]string{
		"phone": "13800138000", "sessionId": "s-1", "captcha": answers["s-1"],
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sms code: %d %+v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"loginType": "phone", "principal": "13800138000", "credential": env.sms.code("13800138000"),
	}, "")
	if rec.Code != http.StatusOK || dataField(t, body, "username") != "dave" {
		t.Fatalf("phone login: %d %+v", rec.Code, body)
	}

	env.do(t, http.MethodGet, "/api/captcha?sessionId=s-2", nil, "")
	rec, _ = env.do(t, http.MethodPost, "/api/sms/code", map[string]string{
		"phone": "13800138000", "sessionId": "s-2", "captcha": answers["s-2"],
	}, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected throttled resend, got %d", rec.Code)
	}
}

func TestCaptchaWithoutRenderer(t *testing.T) {
	env := newAPIEnv(t, Options{})
	rec, body := env.do(t, http.MethodGet, "/api/captcha", nil, "")
	if rec.Code != http.StatusOK || dataField(t, body, "sessionId") == "" {
		t.Fatalf("captcha: %d %+v", rec.Code, body)
	}
	if _, ok := body.Data.(map[string]any)["answer"]; ok {
		t.Fatal("answer must not be serialized")
	}
}

func TestOAuthRedirectFlow(t *testing.T) {
	env := newAPIEnv(t, Options{
		SuccessRedirectURL: "https://app.test/welcome",
		ErrorRedirectURL:   "https://app.test/login?from=oauth",
	})

	rec, _ := env.do(t, http.MethodGet, "/api/oauth/wechat/authorize", nil, "")
	if rec.Code != http.StatusFound || !strings.HasPrefix(rec.Header().Get("Location"), "https://open.weixin.test/connect?state=") {
		t.Fatalf("authorize: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec, body := env.do(t, http.MethodGet, "/api/oauth/wechat/auth-url", nil, "")
	state, _ := dataField(t, body, "state").(string)
	if rec.Code != http.StatusOK || state == "" {
		t.Fatalf("auth-url: %d %+v", rec.Code, body)
	}

	callback := "/api/oauth/wechat/callback?code=abc&state=" + url.QueryEscape(state)
	rec, _ = env.do(t, http.MethodGet, callback, nil, "")
	loc, err := url.Parse(rec.Header().Get("Location"))
	if rec.Code != http.StatusFound || err != nil || loc.Host != "app.test" || loc.Query().Get("token") == "" {
		t.Fatalf("callback: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec, _ = env.do(t, http.MethodGet, callback, nil, "")
	loc, _ = url.Parse(rec.Header().Get("Location"))
	if rec.Code != http.StatusFound || loc.Path != "/login" || loc.Query().Get("from") != "oauth" || loc.Query().Get("error") == "" {
		t.Fatalf("expected reused state to redirect to the error page, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec, _ = env.do(t, http.MethodGet, "/api/oauth/github/auth-url", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown platform to be 400, got %d", rec.Code)
	}
}

func TestOAuthCallbackJSONAcceptsAuthCode(t *testing.T) {
	env := newAPIEnv(t, Options{})
	_, body := env.do(t, http.MethodGet, "/api/oauth/wechat/auth-url", nil, "")
	state, _ := dataField(t, body, "state").(string)

	rec, body := env.do(t, http.MethodGet, "/api/oauth/wechat/callback?auth_code=abc&state="+url.QueryEscape(state), nil, "")
	if rec.Code != http.StatusOK || dataField(t, body, "username") != "Neo" {
		t.Fatalf("callback: %d %+v", rec.Code, body)
	}
}

func TestChangePassword(t *testing.T) {
	env := newAPIEnv(t, Options{})
	_, body := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "erin", "password": "correct-horse", "email": "erin@example.com",
	}, "")
	token, _ := dataField(t, body, "token").(string)

	if rec, _ := env.do(t, http.MethodPost, "/api/user/change-password", map[string]string{
		"oldPassword": "correct-horse", "newPassword": "battery-staple",
	}, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous change to be refused, got %d", rec.Code)
	}

	rec, body := env.do(t, http.MethodPost, "/api/user/change-password", map[string]string{
		"oldPassword": "correct-horse", "newPassword": "battery-staple",
	}, token)
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("change password: %d %+v", rec.Code, body)
	}
	if rec, _ = env.do(t, http.MethodGet, "/api/user/info", nil, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected token to be revoked, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		shown  bool
	}{
		{&authgate.LockedOutError{Remaining: 90 * time.Second}, http.StatusTooManyRequests, true},
		{&authgate.AuthenticationError{Message: "code mismatch", RemainingAttempts: 2}, http.StatusUnauthorized, true},
		{&authgate.ProviderAuthError{Platform: "wechat", Code: "40029", Message: "invalid code"}, http.StatusUnauthorized, true},
		{&authgate.ProviderAuthError{Platform: "wechat", Code: authgate.CodeTransport}, http.StatusBadGateway, true},
		{&authgate.ProviderAuthError{Platform: "alipay", Code: authgate.CodeTimeout}, http.StatusGatewayTimeout, true},
		{authgate.ErrTokenRevoked, http.StatusUnauthorized, true},
		{fmt.Errorf("%w: %q", authgate.ErrUnsupportedPlatform, "github"), http.StatusBadRequest, true},
		{authgate.ErrInvalidPhone, http.StatusBadRequest, true},
		{authgate.ErrCaptchaMismatch, http.StatusBadRequest, true},
		{authgate.ErrInvalidState, http.StatusBadRequest, true},
		{authgate.ErrUsernameTaken, http.StatusConflict, true},
		{fmt.Errorf("%w: email already registered", authgate.ErrAccountExists), http.StatusConflict, true},
		{authgate.ErrSMSRateLimited, http.StatusTooManyRequests, true},
		{authgate.ErrRegistrationRateLimited, http.StatusTooManyRequests, true},
		{fmt.Errorf("%w: dial tcp", authgate.ErrStoreUnavailable), http.StatusServiceUnavailable, false},
		{errors.New("database is locked"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		status, message, _, shown := statusFor(tc.err)
		if status != tc.status || shown != tc.shown {
			t.Fatalf("%v: got %d shown=%v, want %d shown=%v", tc.err, status, shown, tc.status, tc.shown)
		}
		if !shown && strings.Contains(message, "dial") {
			t.Fatalf("cause leaked: %q", message)
		}
	}

	_, message, _, _ := statusFor(&authgate.LockedOutError{Remaining: 90 * time.Second})
	if !strings.Contains(message, "1 minute 30 seconds") {
		t.Fatalf("unexpected lockout message %q", message)
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	env := newAPIEnv(t, Options{})
	rec, _ := env.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	supplied := xid.New().String()
	req.Header.Set(requestIDHeader, supplied)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != supplied {
		t.Fatalf("expected supplied id to be kept, got %q", got)
	}

	boom := recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec = httptest.NewRecorder()
	boom.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", ""})
	if err != nil {
		t.Fatalf("parse proxies: %v", err)
	}
	cases := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{"untrusted peer spoofs forwarded", nil, map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.9:1234", "198.51.100.9"},
		{"untrusted peer spoofs real ip", nil, map[string]string{"X-Real-IP": "203.0.113.1"}, "198.51.100.9:1234", "198.51.100.9"},
		{"peer outside trusted range", trusted, map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.9:1234", "198.51.100.9"},
		{"forwarded chain", trusted, map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.1"},
		{"client prepends fake hop", trusted, map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.1, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.1"},
		{"single trusted ip", trusted, map[string]string{"X-Forwarded-For": "203.0.113.5"}, "192.0.2.1:80", "203.0.113.5"},
		{"only trusted hops", trusted, map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.1"}, "10.0.0.2:1234", "10.1.1.1"},
		{"real ip", trusted, map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.2:1234", "198.51.100.3"},
		{"remote addr", trusted, nil, "192.0.2.7:5555", "192.0.2.7"},
		{"remote without port", nil, nil, "192.0.2.8", "192.0.2.8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tc.trusted); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	for _, spec := range []string{"10.0.0.0/33", "proxy.internal", "10.0.0"} {
		if _, err := ParseTrustedProxies([]string{spec}); err == nil {
			t.Fatalf("expected %q to be rejected", spec)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newAPIEnv(t, Options{})
	rec, body := env.do(t, http.MethodGet, "/api/nope", nil, "")
	if rec.Code != http.StatusNotFound || body.Success {
		t.Fatalf("expected 404 envelope, got %d %+v", rec.Code, body)
	}
}
