package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token audiences keep session, verification and reset tokens from being
// swapped for one another.
const (
	audienceSession = "session"
	audienceVerify  = "email-verify"
	audienceReset   = "password-reset"
)

// ErrInvalidToken is returned for malformed, expired or mis-scoped tokens.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

type emailClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 JWTs.
type Tokens struct {
	secret    []byte
	now       func() time.Time
	verifyTTL time.Duration
	resetTTL  time.Duration
}

// NewTokens builds a Tokens signer. now may be nil.
func NewTokens(secret string, verifyTTL, resetTTL time.Duration, now func() time.Time) *Tokens {
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: []byte(secret), now: now, verifyTTL: verifyTTL, resetTTL: resetTTL}
}

// IssueSession returns a session token for userID valid for ttl.
func (t *Tokens) IssueSession(userID int64, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Audience:  jwt.ClaimStrings{audienceSession},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// ParseSession returns the user id carried by a session token.
func (t *Tokens) ParseSession(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	if err := t.parse(token, audienceSession, &claims); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// IssueVerifyToken signs an email verification link token.
func (t *Tokens) IssueVerifyToken(email string) (string, error) {
	return t.issueEmail(email, audienceVerify, t.verifyTTL)
}

// ParseVerifyToken returns the email of a verification token.
func (t *Tokens) ParseVerifyToken(token string) (string, error) {
	return t.parseEmail(token, audienceVerify)
}

// IssueResetToken signs a password reset link token.
func (t *Tokens) IssueResetToken(email string) (string, error) {
	return t.issueEmail(email, audienceReset, t.resetTTL)
}

// ParseResetToken returns the email of a reset token.
func (t *Tokens) ParseResetToken(token string) (string, error) {
	return t.parseEmail(token, audienceReset)
}

func (t *Tokens) issueEmail(email, audience string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := emailClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", audience, err)
	}
	return signed, nil
}

func (t *Tokens) parseEmail(token, audience string) (string, error) {
	var claims emailClaims
	if err := t.parse(token, audience, &claims); err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}

func (t *Tokens) parse(token, audience string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
