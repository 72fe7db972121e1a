package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
)

const (
	wechatAuthorizeURL = "https://open.weixin.qq.com/connect/oauth2/authorize"
	wechatAPIBaseURL   = "https://api.weixin.qq.com"
)

// WechatConfig configures the WeChat web authorization client.
type WechatConfig struct {
	AppID       string
	AppSecret   string
	RedirectURI string
	// AuthorizeURL and APIBaseURL default to the public WeChat endpoints.
	AuthorizeURL string
	APIBaseURL   string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Wechat implements Provider for WeChat web authorization.
type Wechat struct {
	cfg    WechatConfig
	client *http.Client
}

// NewWechat validates cfg. Missing credentials are reported as ErrConfig.
func NewWechat(cfg WechatConfig) (*Wechat, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" || cfg.RedirectURI == "" {
		return nil, fmt.Errorf("%w: wechat app id, secret and redirect uri are required", autherr.ErrConfig)
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = wechatAuthorizeURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = wechatAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return &Wechat{cfg: cfg, client: defaultHTTPClient(cfg.HTTPClient, cfg.Timeout)}, nil
}

func (w *Wechat) Platform() string { return account.PlatformWechat }

func (w *Wechat) AuthURL(state string) string {
	q := url.Values{}
	q.Set("appid", w.cfg.AppID)
	q.Set("redirect_uri", w.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "snsapi_userinfo")
	q.Set("state", state)
	return w.cfg.AuthorizeURL + "?" + q.Encode() + "#wechat_redirect"
}

type wechatError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (e wechatError) err() error {
	if e.ErrCode == 0 {
		return nil
	}
	return autherr.Provider(account.PlatformWechat, strconv.Itoa(e.ErrCode), e.ErrMsg)
}

type wechatTokenResponse struct {
	wechatError
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	OpenID      string `json:"openid"`
	UnionID     string `json:"unionid"`
}

// ExchangeCode trades an authorization code for an access token and the
// user's openid. WeChat errcode replies become *autherr.ProviderAuthError.
func (w *Wechat) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	q := url.Values{}
	q.Set("appid", w.cfg.AppID)
	q.Set("secret", w.cfg.AppSecret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")

	var resp wechatTokenResponse
	if err := getJSON(ctx, w.client, w.Platform(), w.cfg.APIBaseURL+"/sns/oauth2/access_token?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	if resp.OpenID == "" || resp.AccessToken == "" {
		return nil, autherr.Provider(w.Platform(), "invalid_response", "token response without openid")
	}
	return &Token{
		AccessToken:    resp.AccessToken,
		ProviderUserID: resp.OpenID,
		UnionID:        resp.UnionID,
		ExpiresIn:      time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

type wechatUserInfo struct {
	wechatError
	OpenID     string `json:"openid"`
	Nickname   string `json:"nickname"`
	Sex        int    `json:"sex"`
	Province   string `json:"province"`
	City       string `json:"city"`
	Country    string `json:"country"`
	HeadImgURL string `json:"headimgurl"`
	UnionID    string `json:"unionid"`
	Language   string `json:"language"`
}

// wechatProfileLang is the lang requested from /sns/userinfo. It is the
// profile locale when the reply carries no language of its own.
const wechatProfileLang = "zh_CN"

// FetchProfile loads the user info bound to tok. A unionid in the reply
// takes precedence over the one from the token exchange.
func (w *Wechat) FetchProfile(ctx context.Context, tok *Token) (*Profile, error) {
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	q.Set("openid", tok.ProviderUserID)
	q.Set("lang", wechatProfileLang)

	var info wechatUserInfo
	if err := getJSON(ctx, w.client, w.Platform(), w.cfg.APIBaseURL+"/sns/userinfo?"+q.Encode(), &info); err != nil {
		return nil, err
	}
	if err := info.err(); err != nil {
		return nil, err
	}

	p := &Profile{
		Platform:       w.Platform(),
		ProviderUserID: tok.ProviderUserID,
		UnionID:        tok.UnionID,
		Nickname:       info.Nickname,
		Avatar:         info.HeadImgURL,
		Country:        info.Country,
		Province:       info.Province,
		City:           info.City,
		Locale:         info.Language,
	}
	if p.Locale == "" {
		p.Locale = wechatProfileLang
	}
	if info.UnionID != "" {
		p.UnionID = info.UnionID
	}
	switch info.Sex {
	case 1:
		p.Gender = "M"
	case 2:
		p.Gender = "F"
	}
	return p, nil
}
