package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the session cookie. HttpOnly and SameSite=Lax, matching
	// what a browser demo needs and nothing stricter.
	CookieName = "livewire_session"

	ginStateKey = "session_state"
)

// Manager signs and verifies the session cookie.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

type claims struct {
	jwt.RegisteredClaims
	State State `json:"state"`
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

// Load reads the session state from the request cookie. A missing,
// expired or tampered cookie yields a zero State, never an error; the
// visitor just starts over.
func (m *Manager) Load(c *gin.Context) State {
	raw, err := c.Cookie(CookieName)
	if err != nil || raw == "" {
		return State{}
	}

	var cl claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return State{}
	}
	return cl.State
}

// Save writes the state back into the cookie.
func (m *Manager) Save(c *gin.Context, st State) error {
	now := time.Now()
	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		State: st,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(m.secret)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, tok, int(m.ttl.Seconds()), "/", "", false, true)
	return nil
}

// Clear drops the session cookie entirely.
func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
}

// Middleware loads the session once per request and stashes it on the gin
// context so handlers read a consistent snapshot.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginStateKey, m.Load(c))
		c.Next()
	}
}

// FromGin returns the state loaded by Middleware, or a zero State.
func FromGin(c *gin.Context) State {
	if v, ok := c.Get(ginStateKey); ok {
		if st, ok := v.(State); ok {
			return st
		}
	}
	return State{}
}

// Update mutates the current state and persists it in one step.
func (m *Manager) Update(c *gin.Context, fn func(*State)) error {
	st := FromGin(c)
	fn(&st)
	c.Set(ginStateKey, st)
	return m.Save(c, st)
}

// RequireCredentials rejects requests whose session lacks verified
// SignalWire credentials.
func RequireCredentials() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !FromGin(c).HasCredentials() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": true, "message": "SignalWire credentials required"})
			return
		}
		c.Next()
	}
}

// RequireSubscriber rejects requests unless a subscriber is logged in.
func RequireSubscriber() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !FromGin(c).IsSubscriberLoggedIn() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": true, "message": "subscriber login required"})
			return
		}
		c.Next()
	}
}
