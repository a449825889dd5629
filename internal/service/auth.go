// Package service contains the backend application services: authentication and row-scoped table access.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/tasklist/internal/crypto"
	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/limiter"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// AuthService defines the auth provider operations.
type AuthService interface {
	// SignUp creates an account and returns a fresh session.
	SignUp(ctx context.Context, email, password string) (model.Session, error)
	// SignInWithPassword applies rate-limiting and authenticates the user.
	SignInWithPassword(ctx context.Context, email, password, ip string) (model.Session, error)
	// Refresh rotates a refresh token into a new session.
	Refresh(ctx context.Context, refreshToken string) (model.Session, error)
	// SignOut revokes every refresh token of the user.
	SignOut(ctx context.Context, userID uuid.UUID) error
	// User returns the user behind an id.
	User(ctx context.Context, userID uuid.UUID) (*model.User, error)
	// ParseAccessToken verifies a bearer token and returns its subject.
	ParseAccessToken(token string) (uuid.UUID, error)
}

// AuthConfig carries token lifetimes and the signing key.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	cfg    AuthConfig
	lim    limiter.Limiter
	now    func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, tokens repository.RefreshTokenRepository, cfg AuthConfig, lim limiter.Limiter) *AuthServiceImpl {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{users: users, tokens: tokens, cfg: cfg, lim: lim, now: time.Now}
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// SignUp creates a new account with an Argon2id password hash.
func (s *AuthServiceImpl) SignUp(ctx context.Context, email, password string) (model.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return model.Session{}, fmt.Errorf("%w: empty email/password", errs.ErrInvalidInput)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.Session{}, err
	}
	hash, salt, err := pkgcrypto.NewPasswordHash([]byte(password))
	if err != nil {
		return model.Session{}, err
	}
	acc := &model.Account{
		User:    model.User{ID: uid, Email: email},
		PwdHash: hash,
		Salt:    salt,
	}
	if err := s.users.Create(ctx, acc); err != nil {
		return model.Session{}, err
	}
	return s.issueSession(ctx, acc.User)
}

// SignInWithPassword authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) SignInWithPassword(ctx context.Context, email, password, ip string) (model.Session, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.ErrRateLimited
	}

	acc, err := s.users.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), acc.Salt, acc.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return model.Session{}, err
		}
		// unknown email and wrong password look the same
		return model.Session{}, errs.ErrUnauthorized
	}

	// best-effort
	_ = s.lim.Success(ctx, email, ipHash)

	return s.issueSession(ctx, acc.User)
}

// Refresh consumes a refresh token and issues a new session.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Session, error) {
	if refreshToken == "" {
		return model.Session{}, errs.ErrUnauthorized
	}
	rt, err := s.tokens.Consume(ctx, pkgcrypto.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Session{}, errs.ErrUnauthorized
		}
		return model.Session{}, err
	}
	if !rt.ExpiresAt.After(s.now()) {
		return model.Session{}, errs.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Session{}, errs.ErrUnauthorized
		}
		return model.Session{}, err
	}
	return s.issueSession(ctx, *u)
}

// SignOut revokes all refresh tokens of the user.
func (s *AuthServiceImpl) SignOut(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	return s.tokens.DeleteByUser(ctx, userID)
}

// User returns the user record.
func (s *AuthServiceImpl) User(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// issueSession creates a signed HS256 access token and a stored refresh token.
func (s *AuthServiceImpl) issueSession(ctx context.Context, u model.User) (model.Session, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)
	claims := accessClaims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	if err != nil {
		return model.Session{}, err
	}

	refresh, err := pkgcrypto.NewToken()
	if err != nil {
		return model.Session{}, err
	}
	rt := model.RefreshToken{
		Hash:      pkgcrypto.HashToken(refresh),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return model.Session{}, err
	}

	user := u
	return model.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
		ExpiresAt:    exp,
		User:         &user,
	}, nil
}

// ParseAccessToken verifies HS256 signature and expiry and returns sub as UUID.
func (s *AuthServiceImpl) ParseAccessToken(token string) (uuid.UUID, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.cfg.SignKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}
