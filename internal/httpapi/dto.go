package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

var errBadBody = errors.New("invalid request body")

type loginBody struct {
	LoginType  string `json:"loginType" validate:"required,max=32"`
	Principal  string `json:"principal" validate:"max=256"`
	Credential string `json:"credential" validate:"required,max=1024"`
}

// registerBody leaves username and password bounds to the Engine's
// AccountConfig and PasswordConfig.
type registerBody struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"required_without=Phone,omitempty,email,max=254"`
	Phone    string `json:"phone" validate:"required_without=Email,omitempty,max=32"`
}

type smsCodeBody struct {
	Phone     string `json:"phone" validate:"required,max=32"`
	SessionID string `json:"sessionId" validate:"max=128"`
	Captcha   string `json:"captcha" validate:"max=16"`
}

type changePasswordBody struct {
	OldPassword string `json:"oldPassword" validate:"required,max=1024"`
	NewPassword string `json:"newPassword" validate:"required,max=1024"`
}

type requestBody interface {
	loginBody | registerBody | smsCodeBody | changePasswordBody
}

type loginResponse struct {
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type authURLResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type captchaResponse struct {
	SessionID string `json:"sessionId"`
	ExpiresIn int64  `json:"expiresIn"`
}

type userInfoResponse struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	WechatBound bool      `json:"wechatBound"`
	AlipayBound bool      `json:"alipayBound"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeValidBody[B requestBody](r *http.Request, v *validator.Validate) (B, error) {
	var body B
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return body, err
		}
		return body, errBadBody
	}
	if err := v.Struct(body); err != nil {
		return body, err
	}
	return body, nil
}
