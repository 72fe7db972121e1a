package httpapi

import (
	"net/http"
	"net/url"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, "ok", nil)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[loginBody](r, s.validate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Login(r.Context(), authgate.LoginRequest{
		LoginType:  body.LoginType,
		Principal:  body.Principal,
		Credential: body.Credential,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "login successful", toLoginResponse(res))
}

// logout always succeeds; an absent or unusable token has nothing to revoke.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r); ok {
		s.engine.Logout(r.Context(), token)
	}
	writeOK(w, "logged out", nil)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[registerBody](r, s.validate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Register(r.Context(), authgate.RegisterRequest{
		Username: body.Username,
		Password: body.Password,
		Email:    body.Email,
		Phone:    body.Phone,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "registration successful", toLoginResponse(res))
}

func (s *Server) captcha(w http.ResponseWriter, r *http.Request) {
	challenge, err := s.engine.IssueCaptcha(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Captcha-Session", challenge.SessionID)
	w.Header().Set("Cache-Control", "no-store")

	if s.opts.Captcha != nil {
		if err := s.opts.Captcha.Render(w, r, challenge); err != nil {
			s.logger.Error("render captcha", zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
		}
		return
	}
	writeOK(w, "captcha issued", captchaResponse{
		SessionID: challenge.SessionID,
		ExpiresIn: int64(challenge.ExpiresIn.Seconds()),
	})
}

func (s *Server) smsCode(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[smsCodeBody](r, s.validate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.SendSMSCode(r.Context(), body.Phone, body.SessionID, body.Captcha); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "code sent", nil)
}

func (s *Server) oauthAuthorize(w http.ResponseWriter, r *http.Request) {
	auth, err := s.engine.OAuthAuthURL(r.Context(), mux.Vars(r)["platform"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, auth.URL, http.StatusFound)
}

func (s *Server) oauthAuthURL(w http.ResponseWriter, r *http.Request) {
	auth, err := s.engine.OAuthAuthURL(r.Context(), mux.Vars(r)["platform"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "ok", authURLResponse{AuthURL: auth.URL, State: auth.State})
}

// oauthCallback accepts Alipay's auth_code when code is absent.
func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		code = q.Get("auth_code")
	}

	res, err := s.engine.OAuthCallback(r.Context(), mux.Vars(r)["platform"], code, q.Get("state"))
	if err != nil {
		if s.opts.ErrorRedirectURL != "" {
			_, message, _, ok := statusFor(err)
			if !ok {
				s.logger.Error("oauth callback failed", zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
			}
			http.Redirect(w, r, withQuery(s.opts.ErrorRedirectURL, url.Values{"error": {message}}), http.StatusFound)
			return
		}
		s.writeError(w, r, err)
		return
	}

	if s.opts.SuccessRedirectURL != "" {
		http.Redirect(w, r, withQuery(s.opts.SuccessRedirectURL, url.Values{"token": {res.Token}}), http.StatusFound)
		return
	}
	writeOK(w, "login successful", toLoginResponse(res))
}

func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	info, err := s.engine.UserInfo(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "ok", userInfoResponse{
		ID:          info.ID,
		Username:    info.Username,
		Email:       info.Email,
		Phone:       info.Phone,
		WechatBound: info.WechatBound,
		AlipayBound: info.AlipayBound,
		CreatedAt:   info.CreatedAt,
	})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[changePasswordBody](r, s.validate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, _ := middleware.TokenFromContext(r.Context())
	if err := s.engine.ChangePassword(r.Context(), token, body.OldPassword, body.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "password changed, please log in again", nil)
}

func toLoginResponse(res *authgate.LoginResult) loginResponse {
	return loginResponse{
		UserID:    res.UserID,
		Username:  res.Username,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	}
}

func withQuery(base string, values url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, v := range values {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}
