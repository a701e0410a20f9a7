// Package lib wires the challenge protocol into an HTTP gate: it issues
// challenges, checks submitted solutions, and hands out session tokens that
// let a request through to the protected upstream. The gate itself is
// stateless; everything it needs rides on the request.
package lib

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chattyClaw/nohumanallowed"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nohumanallowed_challenges_issued",
		Help: "The total number of challenges issued",
	})

	challengesValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nohumanallowed_challenges_validated",
		Help: "The total number of challenge submissions checked, by outcome",
	}, []string{"result"})

	tokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nohumanallowed_tokens_issued",
		Help: "The total number of session tokens issued",
	})

	requestsProxied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nohumanallowed_proxied_requests_total",
		Help: "Number of requests passed through to the protected upstream",
	}, []string{"host"})
)

// Options configures a gate Server.
type Options struct {
	// Next handles requests that present a valid session token. When nil
	// the gate answers such requests itself with a small JSON body, which
	// is what the auth-request style of deployment wants.
	Next http.Handler

	// Config carries the challenge tuning. Nil means defaults.
	Config *Config

	// Secret signs challenges and session tokens. Empty disables
	// signing; only do that on trusted transports.
	Secret string

	// CookieName overrides the session token cookie name.
	CookieName string

	// CookieDomain and CookieSecure shape the session cookie.
	CookieDomain string
	CookieSecure bool

	// BasePrefix is prepended to every route.
	BasePrefix string
}

// Server is the HTTP gate. It is an http.Handler.
type Server struct {
	next       http.Handler
	mux        *http.ServeMux
	cfg        *Config
	secret     string
	cookieName string
	opts       Options
}

// New builds a gate server and mounts its routes.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &Config{Difficulty: nohumanallowed.DefaultDifficulty}
	}
	if err := cfg.Valid(); err != nil {
		return nil, err
	}

	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = nohumanallowed.CookieName
	}

	result := &Server{
		next:       opts.Next,
		cfg:        cfg,
		secret:     opts.Secret,
		cookieName: cookieName,
		opts:       opts,
	}

	mux := http.NewServeMux()

	registerWithPrefix := func(pattern string, handler http.Handler, method string) {
		if method != "" {
			method = method + " " // methods must end with a space to register with them
		}

		basePrefix := strings.TrimSuffix(opts.BasePrefix, "/")
		if !strings.HasPrefix(pattern, "/") {
			pattern = "/" + pattern
		}

		mux.Handle(method+basePrefix+pattern, handler)
	}

	registerWithPrefix(nohumanallowed.APIPrefix+"make-challenge", http.HandlerFunc(result.MakeChallenge), "POST")
	registerWithPrefix(nohumanallowed.APIPrefix+"pass-challenge", http.HandlerFunc(result.PassChallenge), "POST")
	registerWithPrefix(nohumanallowed.APIPrefix+"verify-token", http.HandlerFunc(result.VerifyToken), "GET")
	registerWithPrefix(nohumanallowed.APIPrefix+"estimate", http.HandlerFunc(result.Estimate), "GET")
	registerWithPrefix("/", http.HandlerFunc(result.maybePassOrChallenge), "")

	result.mux = mux

	return result, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) setTokenCookie(w http.ResponseWriter, value string) {
	path := "/"
	if s.opts.BasePrefix != "" {
		path = strings.TrimSuffix(s.opts.BasePrefix, "/") + "/"
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Expires:  time.Now().Add(s.cfg.MaxTokenAge()),
		SameSite: http.SameSiteLaxMode,
		Domain:   s.opts.CookieDomain,
		Secure:   s.opts.CookieSecure,
		HttpOnly: true,
		Path:     path,
	})
}

func (s *Server) clearTokenCookie(w http.ResponseWriter) {
	path := "/"
	if s.opts.BasePrefix != "" {
		path = strings.TrimSuffix(s.opts.BasePrefix, "/") + "/"
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		MaxAge:   -1,
		Expires:  time.Now().Add(-1 * time.Minute),
		SameSite: http.SameSiteLaxMode,
		Domain:   s.opts.CookieDomain,
		Secure:   s.opts.CookieSecure,
		HttpOnly: true,
		Path:     path,
	})
}
