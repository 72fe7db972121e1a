package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authgate"
)

// CaptchaRenderer writes the challenge image for answer. It owns the whole
// response, including headers. The session id travels in the X-Captcha-Session
// header set before Render is called.
type CaptchaRenderer interface {
	Render(w http.ResponseWriter, r *http.Request, challenge *authgate.CaptchaChallenge) error
}

// CaptchaRendererFunc adapts a function to CaptchaRenderer.
type CaptchaRendererFunc func(w http.ResponseWriter, r *http.Request, challenge *authgate.CaptchaChallenge) error

func (f CaptchaRendererFunc) Render(w http.ResponseWriter, r *http.Request, challenge *authgate.CaptchaChallenge) error {
	return f(w, r, challenge)
}
