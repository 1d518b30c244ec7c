package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticator checks the single configured admin account.
type Authenticator struct {
	email        string
	passwordHash []byte
	tokens       *TokenManager
}

// NewAuthenticator creates an authenticator. An empty email or hash
// disables login.
func NewAuthenticator(email, passwordHash string, tokens *TokenManager) *Authenticator {
	return &Authenticator{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: []byte(passwordHash),
		tokens:       tokens,
	}
}

// Tokens returns the token manager used to verify issued tokens.
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}

// Login verifies the credentials and issues an admin token.
func (a *Authenticator) Login(email, password string) (*Session, error) {
	if a.email == "" || len(a.passwordHash) == 0 {
		return nil, ErrInvalidCredentials
	}

	given := strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(given), []byte(a.email)) == 1

	// bcrypt runs even for an unknown email.
	pwErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !emailOK || pwErr != nil {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := a.tokens.Issue(a.email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Email: a.email, ExpiresAt: expires}, nil
}
