package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/pingpong/internal/dependencies/clock"
	"github.com/mcoot/pingpong/internal/dependencies/ids"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrEmailRequired      = errors.New("email is required")
)

// MinPasswordLength is the shortest password accepted for new accounts
const MinPasswordLength = 8

// Session is an authenticated admin principal backed by a signed token
type Session struct {
	Token     string          `json:"token"`
	Principal model.Principal `json:"principal"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// claims is the JWT payload; the subject is the principal id
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service handles password accounts and session tokens
type Service struct {
	storage storage.Store
	clock   clock.Clock
	ids     ids.Generator

	secret          []byte
	sessionDuration time.Duration
}

// Config holds configuration for the auth service
type Config struct {
	// Secret signs session tokens (HS256)
	Secret          string
	SessionDuration time.Duration
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		Secret:          "dev-secret-change-me",
		SessionDuration: 24 * time.Hour,
	}
}

// New creates a new auth Service
func New(storage storage.Store, clock clock.Clock, ids ids.Generator, cfg Config) *Service {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	if cfg.Secret == "" {
		cfg.Secret = DefaultConfig().Secret
	}
	return &Service{
		storage:         storage,
		clock:           clock,
		ids:             ids,
		secret:          []byte(cfg.Secret),
		sessionDuration: cfg.SessionDuration,
	}
}

// CreateAccount registers a password account. Admin privilege is granted
// separately through the allow-list.
func (s *Service) CreateAccount(ctx context.Context, email, password string) (*model.Account, error) {
	email = storage.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	_, err := s.storage.GetAccountByEmail(ctx, email)
	if err == nil {
		return nil, model.ErrAccountExists
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		ID:           model.PrincipalID(s.ids.NewID()),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.storage.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// SignInWithPassword checks the credentials and issues a session token
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.storage.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(account.Principal())
}

// Validate verifies a session token and returns the session it encodes
func (s *Service) Validate(token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidSession
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if c.Subject == "" {
		return nil, ErrInvalidSession
	}

	session := &Session{
		Token:     token,
		Principal: model.Principal{ID: model.PrincipalID(c.Subject), Email: c.Email},
	}
	if c.IssuedAt != nil {
		session.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time
	}
	return session, nil
}

// issue signs a new session token for the principal
func (s *Service) issue(p model.Principal) (*Session, error) {
	now := s.clock.Now()
	expires := now.Add(s.sessionDuration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        s.ids.NewID(),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     signed,
		Principal: p,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}
