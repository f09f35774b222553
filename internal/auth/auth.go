// Package auth handles signup, login, and bearer-token sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"papertrade/internal/id"
	"papertrade/internal/model"
)

// dummyHash is compared against when the username does not exist, so the
// miss path costs as much as a real password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("papertrade-no-such-user"), bcrypt.DefaultCost)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrTOTPRequired       = errors.New("totp code required")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the persistence surface auth needs. The sqlite writer and
// reader satisfy it.
type UserStore interface {
	SaveUser(model.User) error
	SetTOTPSecret(userID, secret string) error
	UserByUsername(username string) (model.User, bool, error)
	UserByEmail(email string) (model.User, bool, error)
	UserByID(id string) (model.User, bool, error)
}

type session struct {
	userID    string
	expiresAt time.Time
}

// Service issues and resolves bearer tokens backed by an in-memory
// session table. Sessions die with the process; the users behind them are
// durable.
type Service struct {
	store UserStore
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]session
}

// NewService creates the auth service. Sessions expire after ttl.
func NewService(store UserStore, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]session),
	}
}

// Signup registers a new user. The caller opens the trading account once
// the user exists.
func (s *Service) Signup(ctx context.Context, username, email, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if len(username) < 3 {
		return model.User{}, fmt.Errorf("username must be at least 3 characters")
	}
	if !strings.Contains(email, "@") {
		return model.User{}, fmt.Errorf("invalid email address")
	}
	if len(password) < 8 {
		return model.User{}, fmt.Errorf("password must be at least 8 characters")
	}

	if _, ok, err := s.store.UserByUsername(username); err != nil {
		return model.User{}, err
	} else if ok {
		return model.User{}, ErrUserExists
	}
	if _, ok, err := s.store.UserByEmail(email); err != nil {
		return model.User{}, err
	} else if ok {
		return model.User{}, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		ID:           id.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.SaveUser(user); err != nil {
		return model.User{}, fmt.Errorf("save user: %w", err)
	}

	s.log.Info("user registered", slog.String("user_id", user.ID), slog.String("username", username))
	return user, nil
}

// Login checks the password (and TOTP code when the user has enrolled)
// and returns a bearer token with the authenticated user.
func (s *Service) Login(ctx context.Context, username, password, totpCode string) (string, model.User, error) {
	user, ok, err := s.store.UserByUsername(strings.TrimSpace(username))
	if err != nil {
		return "", model.User{}, err
	}
	if !ok {
		// Burn comparable time so missing users are not distinguishable
		// from wrong passwords.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", model.User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", model.User{}, ErrInvalidCredentials
	}

	if user.TOTPSecret != "" {
		if totpCode == "" {
			return "", model.User{}, ErrTOTPRequired
		}
		if !totp.Validate(totpCode, user.TOTPSecret) {
			return "", model.User{}, ErrInvalidCredentials
		}
	}

	token := id.New()
	s.mu.Lock()
	s.sessions[token] = session{userID: user.ID, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.log.Info("user logged in", slog.String("user_id", user.ID))
	return token, user, nil
}

// EnrollTOTP generates and stores a TOTP secret for the user, returning
// the otpauth:// provisioning URL for an authenticator app. Subsequent
// logins require a code.
func (s *Service) EnrollTOTP(ctx context.Context, userID string) (string, error) {
	user, ok, err := s.store.UserByID(userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "papertrade",
		AccountName: user.Username,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp key: %w", err)
	}
	if err := s.store.SetTOTPSecret(user.ID, key.Secret()); err != nil {
		return "", err
	}
	s.log.Info("totp enrolled", slog.String("user_id", user.ID))
	return key.URL(), nil
}

// Resolve maps a bearer token to the user ID it was issued for. Expired
// sessions are removed on sight.
func (s *Service) Resolve(token string) (string, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidToken
	}
	if s.now().After(sess.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return "", ErrInvalidToken
	}
	return sess.userID, nil
}

// Logout revokes a token. Unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
