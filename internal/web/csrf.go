package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// csrfIssuer hands out single-session CSRF tokens and verifies them on
// mutating requests. Tokens are random UUIDs held server-side with an
// expiry; verification consumes nothing, so one token covers a whole
// editing session.
type csrfIssuer struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
}

func newCSRFIssuer(ttl time.Duration) *csrfIssuer {
	return &csrfIssuer{tokens: make(map[string]time.Time), ttl: ttl}
}

func (c *csrfIssuer) issue() string {
	token := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token] = time.Now().Add(c.ttl)
	// Opportunistic sweep of expired tokens.
	for t, exp := range c.tokens {
		if time.Now().After(exp) {
			delete(c.tokens, t)
		}
	}
	return token
}

func (c *csrfIssuer) verify(token string) bool {
	if token == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.tokens[token]
	if !ok || time.Now().After(exp) {
		delete(c.tokens, token)
		return false
	}
	return true
}

// csrfTokenFromRequest reads the token from the X-CSRFToken header, falling
// back to the form field the reading page posts.
func csrfTokenFromRequest(r *http.Request) string {
	if token := r.Header.Get("X-CSRFToken"); token != "" {
		return token
	}
	return r.PostFormValue("csrfmiddlewaretoken")
}

// handleCSRFToken serves a fresh token for API clients.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	respond(w, http.StatusOK, map[string]string{"token": s.csrf.issue()})
}
