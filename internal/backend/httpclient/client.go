// Package httpclient implements the backend contracts over the server's HTTP API.
//
// Client is the auth provider. Profiles and Todos are the data tables; they share
// the Client's session and refresh it transparently when the access token expires.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/wire"
)

// Client talks to the /auth/v1 endpoints and holds the current session.
type Client struct {
	base  *url.URL
	hc    *http.Client
	store TokenStore
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	sess    *model.Session
	loaded  bool
	refresh sync.Mutex

	events notifier
}

var _ backend.AuthProvider = (*Client)(nil)

// New builds a client for baseURL. store may be nil for an in-memory session.
func New(baseURL string, hc *http.Client, store TokenStore, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if store == nil {
		store = &MemoryStore{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{base: u, hc: hc, store: store, log: log, now: time.Now}, nil
}

// Profiles returns the profiles table bound to this client's session.
func (c *Client) Profiles() *Profiles { return &Profiles{c: c} }

// Todos returns the todos table bound to this client's session.
func (c *Client) Todos() *Todos { return &Todos{c: c} }

// OnAuthStateChange registers h. Deliveries run on their own goroutines.
func (c *Client) OnAuthStateChange(h backend.AuthStateHandler) backend.Subscription {
	return c.events.subscribe(h)
}

// Session returns a copy of the current session, or nil.
func (c *Client) Session() (*model.Session, error) {
	s, err := c.current()
	if err != nil || s == nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

// SignUp creates an account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	var s model.Session
	if err := c.authCall(ctx, http.MethodPost, "/auth/v1/signup", "", wire.Credentials{Email: email, Password: password}, &s); err != nil {
		return nil, err
	}
	if err := c.setSession(&s); err != nil {
		return nil, err
	}
	c.events.emit(model.EventSignedIn, &s)
	return &s, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var s model.Session
	path := "/auth/v1/token?grant_type=" + wire.GrantPassword
	if err := c.authCall(ctx, http.MethodPost, path, "", wire.Credentials{Email: email, Password: password}, &s); err != nil {
		return nil, err
	}
	if err := c.setSession(&s); err != nil {
		return nil, err
	}
	c.events.emit(model.EventSignedIn, &s)
	return &s, nil
}

// SignOut revokes the server session and forgets the local one.
// The local session is dropped even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	var remoteErr error
	if s != nil {
		remoteErr = c.authCall(ctx, http.MethodPost, "/auth/v1/logout", s.AccessToken, nil, nil)
		if errors.Is(remoteErr, errs.ErrUnauthorized) {
			// token already dead server-side
			remoteErr = nil
		}
	}
	if err := c.clearSession(); err != nil {
		return err
	}
	c.events.emit(model.EventSignedOut, nil)
	return remoteErr
}

// GetUser returns the signed-in user, or nil when anonymous. An expired access
// token is refreshed first; a rejected session is dropped.
func (c *Client) GetUser(ctx context.Context) (*model.User, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	var u model.User
	err = c.authCall(ctx, http.MethodGet, "/auth/v1/user", tok, nil, &u)
	if errors.Is(err, errs.ErrUnauthorized) {
		c.log.Info("session rejected by server")
		if cerr := c.clearSession(); cerr != nil {
			return nil, cerr
		}
		c.events.emit(model.EventSignedOut, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RefreshSession rotates the refresh token. Concurrent callers share one rotation.
func (c *Client) RefreshSession(ctx context.Context) (*model.Session, error) {
	s, err := c.current()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errs.ErrNoSession
	}
	return c.rotate(ctx, s.RefreshToken)
}

func (c *Client) rotate(ctx context.Context, used string) (*model.Session, error) {
	c.refresh.Lock()
	defer c.refresh.Unlock()

	s, err := c.current()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errs.ErrNoSession
	}
	if s.RefreshToken != used {
		// someone else rotated while we waited
		cp := *s
		return &cp, nil
	}

	var next model.Session
	path := "/auth/v1/token?grant_type=" + wire.GrantRefreshToken
	err = c.authCall(ctx, http.MethodPost, path, "", wire.RefreshRequest{RefreshToken: s.RefreshToken}, &next)
	if errors.Is(err, errs.ErrUnauthorized) {
		if cerr := c.clearSession(); cerr != nil {
			return nil, cerr
		}
		c.events.emit(model.EventSignedOut, nil)
		return nil, errs.ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	if err := c.setSession(&next); err != nil {
		return nil, err
	}
	c.events.emit(model.EventTokenRefreshed, &next)
	return &next, nil
}

// accessToken returns a usable bearer token, refreshing an expired one.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	s, err := c.current()
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", errs.ErrNoSession
	}
	if !s.Expired(c.now()) {
		return s.AccessToken, nil
	}
	s, err = c.rotate(ctx, s.RefreshToken)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

func (c *Client) current() (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		s, err := c.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		c.sess, c.loaded = s, true
	}
	return c.sess, nil
}

func (c *Client) setSession(s *model.Session) error {
	if s.ExpiresAt.IsZero() && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	c.sess, c.loaded = &cp, true
	if err := c.store.Save(&cp); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *Client) clearSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess, c.loaded = nil, true
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// authCall performs an /auth/v1 request; failures come back as *backend.AuthError.
func (c *Client) authCall(ctx context.Context, method, path, bearer string, in, out any) error {
	status, body, err := c.do(ctx, method, path, bearer, in)
	if err != nil {
		return err
	}
	if status >= 300 {
		return authError(status, body)
	}
	return decodeBody(body, out)
}

// tableCall performs a /rest/v1 request as the current user.
func (c *Client) tableCall(ctx context.Context, method, path string, in, out any) error {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	status, body, err := c.do(ctx, method, path, tok, in)
	if err != nil {
		return err
	}
	if status >= 300 {
		return tableError(status, body)
	}
	return decodeBody(body, out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in any) (int, []byte, error) {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	c.log.Debug("http", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, body, nil
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
