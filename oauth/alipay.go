package oauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
)

const (
	alipayAuthorizeURL = "https://openauth.alipay.com/oauth2/publicAppAuthorize.htm"
	alipayGatewayURL   = "https://openapi.alipay.com/gateway.do"
	alipaySuccessCode  = "10000"
)

var alipayLocation = time.FixedZone("CST", 8*3600)

// AlipayConfig configures the Alipay open platform client.
type AlipayConfig struct {
	AppID string
	// PrivateKey is the application RSA key, PEM encoded or bare base64
	// PKCS#8/PKCS#1 as issued by the Alipay console.
	PrivateKey   string
	// PublicKey is the Alipay platform key in the same encodings. When set,
	// every successful gateway response must carry a sign that verifies
	// against it; when empty, responses are trusted as delivered over TLS.
	PublicKey    string
	RedirectURI  string
	AuthorizeURL string
	GatewayURL   string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Now          func() time.Time
}

// Alipay implements Provider against the Alipay gateway with RSA2 request
// signing.
type Alipay struct {
	cfg    AlipayConfig
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	client *http.Client
	now    func() time.Time
}

// NewAlipay parses the configured keys. Missing credentials or a key that
// does not parse fail with autherr.ErrConfig.
func NewAlipay(cfg AlipayConfig) (*Alipay, error) {
	if cfg.AppID == "" || cfg.PrivateKey == "" || cfg.RedirectURI == "" {
		return nil, fmt.Errorf("%w: alipay app id, private key and redirect uri are required", autherr.ErrConfig)
	}
	key, err := parseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: alipay private key: %v", autherr.ErrConfig, err)
	}
	var pub *rsa.PublicKey
	if cfg.PublicKey != "" {
		if pub, err = parseRSAPublicKey(cfg.PublicKey); err != nil {
			return nil, fmt.Errorf("%w: alipay public key: %v", autherr.ErrConfig, err)
		}
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = alipayAuthorizeURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = alipayGatewayURL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Alipay{cfg: cfg, key: key, pub: pub, client: defaultHTTPClient(cfg.HTTPClient, cfg.Timeout), now: now}, nil
}

func (a *Alipay) Platform() string { return account.PlatformAlipay }

func (a *Alipay) AuthURL(state string) string {
	q := url.Values{}
	q.Set("app_id", a.cfg.AppID)
	q.Set("scope", "auth_user")
	q.Set("redirect_uri", a.cfg.RedirectURI)
	q.Set("state", state)
	return a.cfg.AuthorizeURL + "?" + q.Encode()
}

type alipayStatus struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	SubCode string `json:"sub_code"`
	SubMsg  string `json:"sub_msg"`
}

func (s alipayStatus) err() error {
	if s.Code == "" || s.Code == alipaySuccessCode {
		return nil
	}
	code, msg := s.Code, s.Msg
	if s.SubCode != "" {
		code = s.SubCode
	}
	if s.SubMsg != "" {
		msg = s.SubMsg
	}
	return autherr.Provider(account.PlatformAlipay, code, msg)
}

type alipayTokenResponse struct {
	alipayStatus
	UserID      string `json:"user_id"`
	OpenID      string `json:"open_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeCode calls alipay.system.oauth.token. The user id falls back to
// open_id for applications on the open id scheme.
func (a *Alipay) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	var resp alipayTokenResponse
	err := a.call(ctx, "alipay.system.oauth.token", map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	}, &resp)
	if err != nil {
		return nil, err
	}
	uid := resp.UserID
	if uid == "" {
		uid = resp.OpenID
	}
	if uid == "" || resp.AccessToken == "" {
		return nil, autherr.Provider(a.Platform(), "invalid_response", "token response without user id")
	}
	return &Token{
		AccessToken:    resp.AccessToken,
		ProviderUserID: uid,
		ExpiresIn:      time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

type alipayUserInfo struct {
	alipayStatus
	UserID   string `json:"user_id"`
	NickName string `json:"nick_name"`
	Avatar   string `json:"avatar"`
	Gender   string `json:"gender"`
	Province string `json:"province"`
	City     string `json:"city"`
	Country  string `json:"country_code"`
}

// FetchProfile calls alipay.user.info.share. Any status other than 10000
// is a provider error.
func (a *Alipay) FetchProfile(ctx context.Context, tok *Token) (*Profile, error) {
	var info alipayUserInfo
	if err := a.call(ctx, "alipay.user.info.share", map[string]string{"auth_token": tok.AccessToken}, &info); err != nil {
		return nil, err
	}
	if info.Code != alipaySuccessCode {
		return nil, autherr.Provider(a.Platform(), "invalid_response", "user info response without status")
	}
	return &Profile{
		Platform:       a.Platform(),
		ProviderUserID: tok.ProviderUserID,
		Nickname:       info.NickName,
		Avatar:         info.Avatar,
		Gender:         info.Gender,
		Province:       info.Province,
		City:           info.City,
		Country:        info.Country,
		Locale:         info.Country,
	}, nil
}

// call posts a signed gateway request and decodes the <method>_response
// member into dest.
func (a *Alipay) call(ctx context.Context, method string, params map[string]string, dest any) error {
	form := url.Values{}
	form.Set("app_id", a.cfg.AppID)
	form.Set("method", method)
	form.Set("format", "JSON")
	form.Set("charset", "utf-8")
	form.Set("sign_type", "RSA2")
	form.Set("timestamp", a.now().In(alipayLocation).Format("2006-01-02 15:04:05"))
	form.Set("version", "1.0")
	for k, v := range params {
		form.Set(k, v)
	}
	sig, err := signRSA2(a.key, form)
	if err != nil {
		return autherr.ProviderTransport(a.Platform(), err)
	}
	form.Set("sign", sig)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.GatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return autherr.ProviderTransport(a.Platform(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	var envelope map[string]json.RawMessage
	if err := doJSON(a.client, a.Platform(), req, &envelope); err != nil {
		return err
	}
	if raw, ok := envelope["error_response"]; ok {
		if err := a.verify(raw, envelope["sign"], false); err != nil {
			return err
		}
		var status alipayStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return autherr.ProviderTransport(a.Platform(), err)
		}
		if err := status.err(); err != nil {
			return err
		}
		return autherr.Provider(a.Platform(), "error_response", "gateway error")
	}

	raw, ok := envelope[strings.ReplaceAll(method, ".", "_")+"_response"]
	if !ok {
		return autherr.Provider(a.Platform(), "invalid_response", "missing "+method+" response")
	}
	if err := a.verify(raw, envelope["sign"], true); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return autherr.ProviderTransport(a.Platform(), fmt.Errorf("decode %s: %w", method, err))
	}
	if s, ok := dest.(interface{ err() error }); ok {
		return s.err()
	}
	return nil
}

// verify checks the gateway's RSA2 sign over the raw bytes of a response
// member. It is a no-op without a public key. Unsigned error replies pass
// unless required, since they fail the call either way.
func (a *Alipay) verify(member, sign json.RawMessage, required bool) error {
	if a.pub == nil {
		return nil
	}
	var encoded string
	if len(sign) > 0 {
		if err := json.Unmarshal(sign, &encoded); err != nil {
			return autherr.Provider(a.Platform(), "invalid_signature", "malformed response sign")
		}
	}
	if encoded == "" {
		if !required {
			return nil
		}
		return autherr.Provider(a.Platform(), "invalid_signature", "unsigned response")
	}
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return autherr.Provider(a.Platform(), "invalid_signature", "malformed response sign")
	}
	sum := sha256.Sum256(member)
	if err := rsa.VerifyPKCS1v15(a.pub, crypto.SHA256, sum[:], sig); err != nil {
		return autherr.Provider(a.Platform(), "invalid_signature", "response signature mismatch")
	}
	return nil
}

// signContent is the sorted k=v&k=v string Alipay signs, without sign and
// empty values.
func signContent(form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if k == "sign" || form.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(form.Get(k))
	}
	return b.String()
}

func signRSA2(key *rsa.PrivateKey, form url.Values) (string, error) {
	sum := sha256.Sum256([]byte(signContent(form)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// keyDER accepts a PEM block or the bare base64 body the Alipay console
// hands out, with or without line breaks.
func keyDER(s string) ([]byte, error) {
	if block, _ := pem.Decode([]byte(s)); block != nil {
		return block.Bytes, nil
	}
	b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, errors.New("key is neither PEM nor base64")
	}
	return b, nil
}

func parseRSAPrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := keyDER(s)
	if err != nil {
		return nil, err
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not RSA")
		}
		return rk, nil
	}
	return x509.ParsePKCS1PrivateKey(der)
}

func parseRSAPublicKey(s string) (*rsa.PublicKey, error) {
	der, err := keyDER(s)
	if err != nil {
		return nil, err
	}
	if k, err := x509.ParsePKIXPublicKey(der); err == nil {
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("key is not RSA")
		}
		return rk, nil
	}
	return x509.ParsePKCS1PublicKey(der)
}
