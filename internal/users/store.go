package users

import (
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Account holds a subscriber's local login credentials and the reference
// to the SignalWire subscriber it maps to. Accounts are created or
// overwritten on signup and never deleted.
type Account struct {
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	SubscriberID string `json:"subscriber_id"`
	DisplayName  string `json:"display_name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// Store is the in-memory account registry, keyed by lower-cased email.
type Store struct {
	mu       sync.Mutex
	accounts map[string]Account
	log      *slog.Logger
}

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{accounts: make(map[string]Account), log: log}
}

// SeedTestUser installs the demo login (test@example.com / testpassword)
// when the store is empty. Intended for local runs only.
func (s *Store) SeedTestUser() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.accounts) > 0 {
		return nil
	}
	hash, err := HashPassword("testpassword")
	if err != nil {
		return err
	}
	s.accounts["test@example.com"] = Account{
		Email:        "test@example.com",
		PasswordHash: hash,
		SubscriberID: "test-subscriber-id",
		DisplayName:  "Test User",
		FirstName:    "Test",
		LastName:     "User",
	}
	s.log.Info("seeded test user", "email", "test@example.com")
	return nil
}

// Put creates or overwrites an account. Email is canonicalized to lower
// case at write time.
func (s *Store) Put(a Account) bool {
	if a.Email == "" {
		s.log.Warn("account put without email rejected")
		return false
	}
	a.Email = strings.ToLower(a.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Email] = a
	s.log.Info("account stored", "email", a.Email)
	return true
}

// Get looks up an account by email, case-insensitively.
func (s *Store) Get(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	return a, ok
}

// Exists reports whether an email is already registered.
func (s *Store) Exists(email string) bool {
	_, ok := s.Get(email)
	return ok
}

// HashPassword hashes a plaintext password with bcrypt at default cost.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
