package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"

	"checkout-3ds-api/services/threeds"
	"checkout-3ds-api/utils"
)

const (
	sessionIDKey    = "checkout_id"
	sessionIDLength = 32
)

// NewSessionStore returns the cookie store holding the checkout session id.
func NewSessionStore(secret string, maxAge time.Duration, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// checkoutSession is the server side state of one checkout session. The
// verifier lives here so its gateway instance is set up once per session.
type checkoutSession struct {
	id string

	mu          sync.Mutex
	clientToken string
	verifier    *threeds.Verifier
	lastUsed    time.Time
}

func (s *checkoutSession) ClientToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientToken
}

func (s *checkoutSession) SetClientToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientToken = token
}

// verifierFor returns the session verifier, building it on first use.
func (s *checkoutSession) verifierFor(build func() *threeds.Verifier) *threeds.Verifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verifier == nil {
		s.verifier = build()
	}
	return s.verifier
}

func (s *checkoutSession) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed) >= ttl
}

func (s *checkoutSession) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*checkoutSession
	ttl      time.Duration
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*checkoutSession),
		ttl:      ttl,
	}
}

func (r *sessionRegistry) get(id string) *checkoutSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = &checkoutSession{id: id}
		r.sessions[id] = s
	}
	s.touch(time.Now())
	return s
}

// sweep drops sessions unused for longer than the cookie lifetime.
func (r *sessionRegistry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.idle(now, r.ttl) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// checkoutSession returns the session of the request, creating it and
// setting the cookie when the browser has none.
func (h *ThreeDSHandler) checkoutSession(w http.ResponseWriter, r *http.Request) (*checkoutSession, error) {
	session, err := h.store.Get(r, h.sessionName)
	if err != nil {
		// an undecodable cookie still yields a fresh session
		log.Printf("Error decoding session cookie from %s: %v", r.RemoteAddr, err)
	}

	id, _ := session.Values[sessionIDKey].(string)
	if id == "" {
		id = utils.GenerateRandomString(sessionIDLength)
		session.Values[sessionIDKey] = id
		if err := session.Save(r, w); err != nil {
			return nil, err
		}
	}
	return h.sessions.get(id), nil
}

// sessionID returns the id carried by the request cookie, or "" without
// creating a session.
func (h *ThreeDSHandler) sessionID(r *http.Request) string {
	session, err := h.store.Get(r, h.sessionName)
	if err != nil {
		return ""
	}
	id, _ := session.Values[sessionIDKey].(string)
	return id
}
