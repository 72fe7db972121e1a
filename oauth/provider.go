package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authgate/autherr"
)

const maxResponseBytes = 1 << 20

// Token is the result of exchanging an authorization code.
type Token struct {
	AccessToken    string
	ProviderUserID string
	UnionID        string
	ExpiresIn      time.Duration
}

// Profile is the remote identity returned by a provider.
type Profile struct {
	Platform       string
	ProviderUserID string
	UnionID        string
	Nickname       string
	Avatar         string
	Gender         string
	Country        string
	Province       string
	City           string
	// Locale is the language or region the provider reports for the user,
	// such as "zh_CN" from WeChat or "CN" from Alipay.
	Locale string
}

// Provider speaks one identity provider's OAuth2 dialect. Failures are
// returned as *autherr.ProviderAuthError.
type Provider interface {
	Platform() string
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	FetchProfile(ctx context.Context, token *Token) (*Profile, error)
}

func defaultHTTPClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes a JSON body into dest. Transport
// failures and non-2xx statuses are reported as transport errors.
func getJSON(ctx context.Context, client *http.Client, platform, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return autherr.ProviderTransport(platform, err)
	}
	return doJSON(client, platform, req, dest)
}

func doJSON(client *http.Client, platform string, req *http.Request, dest any) error {
	resp, err := client.Do(req)
	if err != nil {
		return autherr.ProviderTransport(platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return autherr.ProviderTransport(platform, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return autherr.ProviderTransport(platform, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return autherr.ProviderTransport(platform, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
