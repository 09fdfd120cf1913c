package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/mail"
	"github.com/canalenergetico/canal-web/internal/metrics"
	"github.com/canalenergetico/canal-web/internal/store"
)

// UserError is a failure the visitor can act on. Message is shown verbatim;
// Category is the flash style.
type UserError struct {
	Message  string
	Category string
}

func (e *UserError) Error() string { return e.Message }

// Errors surfaced to visitors.
var (
	ErrMissingFields    = &UserError{"Completa nombre, email y contraseña.", "warning"}
	ErrWeakPassword     = &UserError{"La contraseña debe tener al menos 8 caracteres.", "warning"}
	ErrEmailTaken       = &UserError{"Ese email ya está registrado.", "danger"}
	ErrBadCredentials   = &UserError{"Credenciales inválidas.", "danger"}
	ErrLinkExpired      = &UserError{"Enlace inválido o caducado.", "warning"}
	ErrUnknownUser      = &UserError{"Usuario no encontrado.", "danger"}
	ErrPasswordMismatch = &UserError{"Las contraseñas no coinciden.", "warning"}
)

// Registration is the outcome of a successful sign-up.
type Registration struct {
	User store.User
	// VerifyURL is the emailed verification link.
	VerifyURL string
	// Mailed is false when the verification email could not be sent.
	Mailed bool
}

// Service implements the account flows.
type Service struct {
	users       store.UserRepository
	mailer      mail.Sender
	hasher      Hasher
	tokens      *Tokens
	isAdmin     func(string) bool
	sessionTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewService wires the account flows.
func NewService(users store.UserRepository, mailer mail.Sender, cfg config.Config, logger *zap.Logger) *Service {
	now := func() time.Time { return time.Now().UTC() }
	return &Service{
		users:       users,
		mailer:      mailer,
		hasher:      Hasher{Cost: cfg.Auth.BcryptCost},
		tokens:      NewTokens(cfg.Auth.SecretKey, cfg.Auth.VerifyTTL, cfg.Auth.ResetTTL, now),
		isAdmin:     cfg.IsAdminEmail,
		sessionTTL:  cfg.Auth.SessionTTL,
		rememberTTL: cfg.Auth.RememberTTL,
		now:         now,
		logger:      logging.OrNop(logger).Named("auth"),
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a lector account (admin when whitelisted) and emails a
// verification link built on origin. A mail failure does not fail the sign-up.
func (s *Service) Register(ctx context.Context, origin, name, email, password string) (Registration, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return Registration{}, ErrMissingFields
	}
	if !ValidPassword(password) {
		return Registration{}, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Registration{}, err
	}
	role := store.RoleLector
	if s.isAdmin != nil && s.isAdmin(email) {
		role = store.RoleAdmin
	}
	u := store.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Registration{}, ErrEmailTaken
		}
		return Registration{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("User registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))

	reg := Registration{User: u}
	token, err := s.tokens.IssueVerifyToken(u.Email)
	if err != nil {
		return reg, nil
	}
	reg.VerifyURL = origin + "/verify-email/" + token
	if err := s.mailer.Send(ctx, mail.VerificationEmail(u.Email, u.Name, reg.VerifyURL, false)); err != nil {
		s.logger.Warn("Verification email not sent", zap.Int64("user_id", u.ID), zap.Error(err))
		return reg, nil
	}
	reg.Mailed = true
	return reg, nil
}

// Authenticate checks credentials. Unknown, inactive and mismatched accounts
// all return ErrBadCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	u, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.ObserveLogin("failure")
			return store.User{}, ErrBadCredentials
		}
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive || !s.hasher.Compare(u.PasswordHash, password) {
		metrics.ObserveLogin("failure")
		return store.User{}, ErrBadCredentials
	}
	metrics.ObserveLogin("success")
	return u, nil
}

// StartSession issues a session token. remember selects the long lifetime and
// persistent reports whether the cookie should outlive the browser.
func (s *Service) StartSession(u store.User, remember bool) (token string, expires time.Time, persistent bool, err error) {
	ttl := s.sessionTTL
	if remember {
		ttl = s.rememberTTL
	}
	token, expires, err = s.tokens.IssueSession(u.ID, ttl)
	return token, expires, remember, err
}

// UserFromSession resolves a session token to an active user.
func (s *Service) UserFromSession(ctx context.Context, token string) (*store.User, error) {
	id, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load session user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrInvalidToken
	}
	return &u, nil
}

// RequestPasswordReset emails a reset link when the account exists. It never
// reveals whether it does.
func (s *Service) RequestPasswordReset(ctx context.Context, origin, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	token, err := s.tokens.IssueResetToken(u.Email)
	if err != nil {
		return err
	}
	link := origin + "/reset-password/" + token
	if err := s.mailer.Send(ctx, mail.ResetEmail(u.Email, u.Name, link)); err != nil {
		s.logger.Warn("Reset email not sent", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// CheckResetToken resolves a reset link to its user.
func (s *Service) CheckResetToken(ctx context.Context, token string) (store.User, error) {
	email, err := s.tokens.ParseResetToken(token)
	if err != nil {
		return store.User{}, ErrLinkExpired
	}
	return s.userByTokenEmail(ctx, email)
}

// ResetPassword sets a new password through a reset link.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	u, err := s.CheckResetToken(ctx, token)
	if err != nil {
		return err
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if !ValidPassword(password) {
		return ErrWeakPassword
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("Password reset", zap.Int64("user_id", u.ID))
	return nil
}

// VerifyEmail marks the account of a verification link as verified. It
// reports whether the account was already verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (alreadyVerified bool, err error) {
	email, err := s.tokens.ParseVerifyToken(token)
	if err != nil {
		return false, ErrLinkExpired
	}
	u, err := s.userByTokenEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if u.VerifiedAt != nil {
		return true, nil
	}
	if err := s.users.MarkVerified(ctx, u.ID, s.now()); err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	return false, nil
}

// ResendVerification emails a fresh verification link to u. It reports
// whether the account was already verified.
func (s *Service) ResendVerification(ctx context.Context, origin string, u store.User) (alreadyVerified bool, err error) {
	if u.VerifiedAt != nil {
		return true, nil
	}
	token, err := s.tokens.IssueVerifyToken(u.Email)
	if err != nil {
		return false, err
	}
	link := origin + "/verify-email/" + token
	if err := s.mailer.Send(ctx, mail.VerificationEmail(u.Email, u.Name, link, true)); err != nil {
		return false, fmt.Errorf("send verification: %w", err)
	}
	return false, nil
}

// SetRole changes the role of the account registered under email.
func (s *Service) SetRole(ctx context.Context, email string, role store.Role) error {
	u, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("load user %s: %w", email, err)
	}
	if err := s.users.UpdateRole(ctx, u.ID, role); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	s.logger.Info("Role changed", zap.Int64("user_id", u.ID), zap.String("role", string(role)))
	return nil
}

func (s *Service) userByTokenEmail(ctx context.Context, email string) (store.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, ErrUnknownUser
		}
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}
