package httpapi

import (
	"net/http"
	"net/netip"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options configures the HTTP surface.
type Options struct {
	// SuccessRedirectURL and ErrorRedirectURL receive the browser after an
	// OAuth callback. When empty the callback answers with JSON.
	SuccessRedirectURL string
	ErrorRedirectURL   string
	// Captcha renders issued challenges. Without one GET /api/captcha only
	// answers with the session id, which is enough for out-of-band renderers.
	Captcha CaptchaRenderer
	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the client IP is always the
	// connection's remote address. See ParseTrustedProxies.
	TrustedProxies []netip.Prefix
}

// Server holds the handlers of the gateway API.
type Server struct {
	engine   *authgate.Engine
	logger   *zap.Logger
	validate *validator.Validate
	opts     Options
}

// New builds a Server around engine. A nil logger discards output.
func New(engine *authgate.Engine, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		logger:   logger,
		validate: newValidator(),
		opts:     opts,
	}
}

// Handler returns the routed API with request id, recovery, access log
// and client address middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.login).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	auth.HandleFunc("/register", s.register).Methods(http.MethodPost)

	api.HandleFunc("/captcha", s.captcha).Methods(http.MethodGet)
	api.HandleFunc("/sms/code", s.smsCode).Methods(http.MethodPost)

	oauth := api.PathPrefix("/oauth/{platform}").Subrouter()
	oauth.HandleFunc("/authorize", s.oauthAuthorize).Methods(http.MethodGet)
	oauth.HandleFunc("/auth-url", s.oauthAuthURL).Methods(http.MethodGet)
	oauth.HandleFunc("/callback", s.oauthCallback).Methods(http.MethodGet)

	user := api.PathPrefix("/user").Subrouter()
	user.Handle("/info", middleware.Guard(s.engine)(http.HandlerFunc(s.userInfo))).Methods(http.MethodGet)
	user.Handle("/change-password",
		middleware.RequireVerification(s.engine, "change-password")(http.HandlerFunc(s.changePassword)),
	).Methods(http.MethodPost)

	var h http.Handler = r
	h = clientInfo(s.opts.TrustedProxies)(h)
	h = recoverer(s.logger)(h)
	h = accessLog(s.logger, s.opts.TrustedProxies)(h)
	h = requestID(h)
	return h
}
