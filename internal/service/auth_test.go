package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/limiter"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*model.Account

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.Account{}
	}
	if _, exists := f.byEmail[a.Email]; exists {
		return errs.ErrAlreadyExists
	}
	a.CreatedAt = time.Now()
	cpy := *a
	f.byEmail[a.Email] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byEmail {
		if a.ID == id {
			u := a.User
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

type fakeTokens struct {
	mu     sync.Mutex
	byHash map[string]model.RefreshToken

	createErr error
}

var _ repository.RefreshTokenRepository = (*fakeTokens)(nil)

func (f *fakeTokens) Create(_ context.Context, t model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byHash == nil {
		f.byHash = map[string]model.RefreshToken{}
	}
	f.byHash[string(t.Hash)] = t
	return nil
}

func (f *fakeTokens) Consume(_ context.Context, hash []byte) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[string(hash)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	delete(f.byHash, string(hash))
	return &t, nil
}

func (f *fakeTokens) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.byHash {
		if t.UserID == userID {
			delete(f.byHash, k)
		}
	}
	return nil
}

func (f *fakeTokens) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byHash)
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func newAuth(lim limiter.Limiter) (*AuthServiceImpl, *fakeUsers, *fakeTokens) {
	users := &fakeUsers{}
	tokens := &fakeTokens{}
	s := NewAuthService(users, tokens, AuthConfig{SignKey: []byte("secret"), AccessTTL: 2 * time.Minute, RefreshTTL: time.Hour}, lim)
	return s, users, tokens
}

func TestAuth_SignUp_Basics(t *testing.T) {
	t.Parallel()
	s, users, tokens := newAuth(&fakeLimiter{allowOK: true})
	ctx := context.Background()

	if _, err := s.SignUp(ctx, "", ""); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on empty email/password, got %v", err)
	}

	sess, err := s.SignUp(ctx, "  Alice@Example.com ", "pwd")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if sess.User == nil || sess.User.Email != "alice@example.com" || sess.User.ID == uuid.Nil {
		t.Fatalf("bad session user: %+v", sess.User)
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" || sess.TokenType != "bearer" || sess.ExpiresIn != 120 {
		t.Fatalf("bad session: %+v", sess)
	}
	if tokens.count() != 1 {
		t.Fatalf("refresh token not stored")
	}

	if _, err := s.SignUp(ctx, "alice@example.com", "pwd2"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate email, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, err := s.SignUp(ctx, "bob@example.com", "pwd"); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_SignInWithPassword_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s, users, _ := newAuth(lim)
	ctx := context.Background()

	if _, err := s.SignUp(ctx, "alice@example.com", "correct"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	lim.allowErr = errors.New("lim-err")
	if _, err := s.SignInWithPassword(ctx, "alice@example.com", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, err := s.SignInWithPassword(ctx, "alice@example.com", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, err := s.SignInWithPassword(ctx, "nope@example.com", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	users.getErr = errors.New("db down")
	if _, err := s.SignInWithPassword(ctx, "alice@example.com", "correct", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want infrastructure error, got %v", err)
	}
	users.getErr = nil

	lim.failBlocked = true
	if _, err := s.SignInWithPassword(ctx, "alice@example.com", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}

	lim.failBlocked = false
	if _, err := s.SignInWithPassword(ctx, "alice@example.com", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	sess, err := s.SignInWithPassword(ctx, "ALICE@example.com", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("SignInWithPassword success: %v", err)
	}
	if sess.AccessToken == "" || sess.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad session: %+v", sess)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}
}

func TestAuth_ParseAccessToken(t *testing.T) {
	t.Parallel()
	s, _, _ := newAuth(nil)
	ctx := context.Background()

	sess, err := s.SignUp(ctx, "carol@example.com", "p")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	id, err := s.ParseAccessToken(sess.AccessToken)
	if err != nil || id != sess.User.ID {
		t.Fatalf("ParseAccessToken: id=%v err=%v", id, err)
	}

	if _, err := s.ParseAccessToken("not-a-jwt"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on garbage, got %v", err)
	}

	other := NewAuthService(&fakeUsers{}, &fakeTokens{}, AuthConfig{SignKey: []byte("other")}, nil)
	if _, err := other.ParseAccessToken(sess.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong key, got %v", err)
	}

	hs384 := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{
		Subject:   sess.User.ID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok, _ := hs384.SignedString([]byte("secret"))
	if _, err := s.ParseAccessToken(tok); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong alg, got %v", err)
	}

	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok, _ = bad.SignedString([]byte("secret"))
	if _, err := s.ParseAccessToken(tok); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on bad subject, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := s.ParseAccessToken(sess.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on expired token, got %v", err)
	}
}

func TestAuth_Refresh_RotatesAndIsSingleUse(t *testing.T) {
	t.Parallel()
	s, _, tokens := newAuth(nil)
	ctx := context.Background()

	sess, err := s.SignUp(ctx, "dave@example.com", "p")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	next, err := s.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == sess.RefreshToken || next.User.ID != sess.User.ID {
		t.Fatalf("refresh must rotate: %+v", next)
	}
	if tokens.count() != 1 {
		t.Fatalf("old token must be consumed, have %d", tokens.count())
	}

	if _, err := s.Refresh(ctx, sess.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on reused token, got %v", err)
	}
	if _, err := s.Refresh(ctx, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on empty token, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Refresh(ctx, next.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on expired refresh token, got %v", err)
	}
}

func TestAuth_SignOut_RevokesRefreshTokens(t *testing.T) {
	t.Parallel()
	s, _, tokens := newAuth(nil)
	ctx := context.Background()

	sess, err := s.SignUp(ctx, "erin@example.com", "p")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := s.SignInWithPassword(ctx, "erin@example.com", "p", ""); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if tokens.count() != 2 {
		t.Fatalf("want 2 tokens, got %d", tokens.count())
	}

	if err := s.SignOut(ctx, uuid.Nil); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for nil user, got %v", err)
	}
	if err := s.SignOut(ctx, sess.User.ID); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if tokens.count() != 0 {
		t.Fatalf("tokens must be revoked, have %d", tokens.count())
	}
	if _, err := s.Refresh(ctx, sess.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized after sign-out, got %v", err)
	}

	u, err := s.User(ctx, sess.User.ID)
	if err != nil || u.Email != "erin@example.com" {
		t.Fatalf("User: %+v %v", u, err)
	}
}
