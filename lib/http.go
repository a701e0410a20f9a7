package lib

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/chattyClaw/nohumanallowed"
	"github.com/chattyClaw/nohumanallowed/internal"
	"github.com/chattyClaw/nohumanallowed/lib/challenge"
	"github.com/chattyClaw/nohumanallowed/lib/solver"
	"github.com/chattyClaw/nohumanallowed/lib/token"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// MakeChallenge issues a fresh challenge as JSON.
func (s *Server) MakeChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	c, err := challenge.New(challenge.Options{
		Difficulty: s.cfg.Difficulty,
		ExpiresIn:  s.cfg.ExpiresIn(),
		Metadata:   s.cfg.Metadata,
		Secret:     s.secret,
	})
	if err != nil {
		lg.Error("can't create challenge", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal server error"})
		return
	}

	challengesIssued.Inc()
	lg.Debug("challenge issued", "id", c.ID, "difficulty", len(c.Target))

	writeJSON(w, http.StatusOK, c)
}

// passRequest is the wire shape of a solution submission. The server's
// secret never rides on the wire; it is configuration.
type passRequest struct {
	ID          string         `json:"id"`
	Prefix      string         `json:"prefix"`
	Nonce       any            `json:"nonce"`
	Target      string         `json:"target"`
	ExpiresAt   int64          `json:"expiresAt"`
	Signature   string         `json:"signature,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ElapsedTime float64        `json:"elapsedTime,omitempty"`
}

// nonceString coerces the submitted nonce. Clients are supposed to send the
// exact decimal string the solver produced; a JSON number is kept in its
// literal form rather than re-parsed, so "7" stays "7".
func nonceString(v any) (string, bool) {
	switch nonce := v.(type) {
	case nil:
		return "", true
	case string:
		return nonce, true
	case json.Number:
		return nonce.String(), true
	default:
		return "", false
	}
}

func statusForReason(reason challenge.Reason) int {
	switch reason {
	case challenge.ReasonInvalidInput, challenge.ReasonInvalidTarget, challenge.ReasonInvalidExpiry:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// PassChallenge checks a submitted solution and, when it is valid, issues a
// session token both in the response body and as a cookie.
func (s *Server) PassChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req passRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		lg.Debug("can't decode submission", "err", err)
		writeJSON(w, http.StatusBadRequest, challenge.VerifyResult{Valid: false, Reason: challenge.ReasonInvalidInput})
		return
	}

	nonce, ok := nonceString(req.Nonce)
	if !ok {
		writeJSON(w, http.StatusBadRequest, challenge.VerifyResult{Valid: false, Reason: challenge.ReasonInvalidInput})
		return
	}

	// the identifier is what the session token binds to, so it has to be
	// well-formed before anything else happens
	if !strings.HasPrefix(req.ID, nohumanallowed.ChallengeIDPrefix) {
		writeJSON(w, http.StatusBadRequest, challenge.VerifyResult{Valid: false, Reason: challenge.ReasonInvalidInput})
		return
	}

	result := challenge.Verify(challenge.VerifyInput{
		Prefix:           req.Prefix,
		Nonce:            nonce,
		Target:           req.Target,
		ExpiresAt:        req.ExpiresAt,
		Signature:        req.Signature,
		Metadata:         req.Metadata,
		Secret:           s.secret,
		RequireSignature: s.cfg.RequireSignature,
	})

	if !result.Valid {
		challengesValidated.WithLabelValues(string(result.Reason)).Inc()
		lg.Debug("challenge failed", "id", req.ID, "reason", result.Reason)
		writeJSON(w, statusForReason(result.Reason), result)
		return
	}

	challengesValidated.WithLabelValues("ok").Inc()
	if req.ElapsedTime > 0 {
		challenge.TimeTaken.WithLabelValues(strconv.Itoa(len(req.Target))).Observe(req.ElapsedTime)
	}

	tok, err := token.Issue(req.ID, s.secret)
	if err != nil {
		// unreachable after the prefix check above
		lg.Error("can't issue token", "id", req.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal server error"})
		return
	}

	tokensIssued.Inc()
	s.setTokenCookie(w, tok)
	lg.Info("challenge passed", "id", req.ID, "elapsedTime", req.ElapsedTime)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"token": tok,
		"hash":  result.Hash,
	})
}

// presentedToken digs the session token out of a request: Authorization
// bearer header first, then the cookie.
func (s *Server) presentedToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return tok
		}
	}

	if ckie, err := r.Cookie(s.cookieName); err == nil {
		if err := ckie.Valid(); err == nil {
			return ckie.Value
		}
	}

	return ""
}

func (s *Server) verifyPresentedToken(r *http.Request) token.VerifyResult {
	return token.Verify(s.presentedToken(r), &token.VerifyOptions{
		Secret:        s.secret,
		MaxAge:        s.cfg.MaxTokenAge(),
		RequireSecret: s.secret != "",
	})
}

// VerifyToken re-verifies a presented session token without re-running any
// proof-of-work checks.
func (s *Server) VerifyToken(w http.ResponseWriter, r *http.Request) {
	result := s.verifyPresentedToken(r)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, result)
}

// Estimate reports the advisory solve cost for the gate's difficulty.
func (s *Server) Estimate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, solver.EstimateSolveTime(s.cfg.Difficulty))
}

// maybePassOrChallenge is the catch-all: requests with a valid session token
// go through to the upstream, everything else gets a 401 with a fresh
// challenge to solve.
func (s *Server) maybePassOrChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	if result := s.verifyPresentedToken(r); result.Valid {
		if s.next == nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "challengeId": result.ChallengeID})
			return
		}

		requestsProxied.WithLabelValues(r.Host).Inc()
		s.next.ServeHTTP(w, r)
		return
	}

	s.clearTokenCookie(w)

	c, err := challenge.New(challenge.Options{
		Difficulty: s.cfg.Difficulty,
		ExpiresIn:  s.cfg.ExpiresIn(),
		Metadata:   s.cfg.Metadata,
		Secret:     s.secret,
	})
	if err != nil {
		lg.Error("can't create challenge", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal server error"})
		return
	}

	challengesIssued.Inc()
	lg.Debug("gating request", "path", r.URL.Path, "challenge", c.ID)

	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"ok":        false,
		"error":     "proof of work required",
		"challenge": c,
	})
}
