package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

// fakeAuth accepts "tok-<uuid>" as access tokens.
type fakeAuth struct {
	mu sync.Mutex

	users     map[string]uuid.UUID
	signUpErr error
	signInErr error
	refresh   map[string]uuid.UUID
	signedOut []uuid.UUID
	lastIP    string
}

var _ service.AuthService = (*fakeAuth)(nil)

func newFakeAuth() *fakeAuth {
	return &fakeAuth{users: map[string]uuid.UUID{}, refresh: map[string]uuid.UUID{}}
}

func (f *fakeAuth) session(email string, id uuid.UUID) model.Session {
	rt := "rt-" + id.String()
	f.refresh[rt] = id
	return model.Session{
		AccessToken:  "tok-" + id.String(),
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         &model.User{ID: id, Email: email},
	}
}

func (f *fakeAuth) SignUp(_ context.Context, email, password string) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signUpErr != nil {
		return model.Session{}, f.signUpErr
	}
	if email == "" || password == "" {
		return model.Session{}, errs.ErrInvalidInput
	}
	if _, ok := f.users[email]; ok {
		return model.Session{}, errs.ErrAlreadyExists
	}
	id := uuid.Must(uuid.NewV4())
	f.users[email] = id
	return f.session(email, id), nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password, ip string) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIP = ip
	if f.signInErr != nil {
		return model.Session{}, f.signInErr
	}
	id, ok := f.users[email]
	if !ok || password != "pw" {
		return model.Session{}, errs.ErrUnauthorized
	}
	return f.session(email, id), nil
}

func (f *fakeAuth) Refresh(_ context.Context, refreshToken string) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.refresh[refreshToken]
	if !ok {
		return model.Session{}, errs.ErrUnauthorized
	}
	delete(f.refresh, refreshToken)
	for email, uid := range f.users {
		if uid == id {
			return f.session(email, id), nil
		}
	}
	return model.Session{}, errs.ErrUnauthorized
}

func (f *fakeAuth) SignOut(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, userID)
	return nil
}

func (f *fakeAuth) User(_ context.Context, userID uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, id := range f.users {
		if id == userID {
			return &model.User{ID: id, Email: email}, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAuth) ParseAccessToken(token string) (uuid.UUID, error) {
	if len(token) < 4 || token[:4] != "tok-" {
		return uuid.Nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(token[4:])
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}

// fakeTables keeps rows in memory with the same ownership rules as the service.
type fakeTables struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]model.Profile
	todos    []model.Task
	nextID   int64
	err      error
}

var _ service.TableService = (*fakeTables)(nil)

func newFakeTables() *fakeTables {
	return &fakeTables{profiles: map[uuid.UUID]model.Profile{}, nextID: 1}
}

func (f *fakeTables) GetProfile(_ context.Context, caller, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok || id != caller {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (f *fakeTables) InsertProfile(_ context.Context, caller uuid.UUID, p model.Profile) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID != caller {
		return nil, errs.ErrForbidden
	}
	if _, ok := f.profiles[p.ID]; ok {
		return nil, errs.ErrAlreadyExists
	}
	f.profiles[p.ID] = p
	return &p, nil
}

func (f *fakeTables) ListTodos(_ context.Context, caller uuid.UUID) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Task
	for i := len(f.todos) - 1; i >= 0; i-- {
		if f.todos[i].UserID == caller {
			out = append(out, f.todos[i])
		}
	}
	return out, nil
}

func (f *fakeTables) InsertTodo(_ context.Context, caller uuid.UUID, nt model.NewTask) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if nt.Task == "" {
		return nil, errs.ErrInvalidInput
	}
	if nt.UserID != caller {
		return nil, errs.ErrForbidden
	}
	t := model.Task{ID: f.nextID, UserID: caller, Task: nt.Task, IsComplete: nt.IsComplete, InsertedAt: time.Now()}
	f.nextID++
	f.todos = append(f.todos, t)
	return &t, nil
}

func (f *fakeTables) UpdateTodo(_ context.Context, caller uuid.UUID, id int64, p model.TaskPatch) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.todos {
		if f.todos[i].ID == id && f.todos[i].UserID == caller {
			if p.Task != nil {
				f.todos[i].Task = *p.Task
			}
			if p.IsComplete != nil {
				f.todos[i].IsComplete = *p.IsComplete
			}
			t := f.todos[i]
			return &t, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeTables) DeleteTodo(_ context.Context, caller uuid.UUID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.todos {
		if f.todos[i].ID == id && f.todos[i].UserID == caller {
			f.todos = append(f.todos[:i], f.todos[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	engine *gin.Engine
	auth   *fakeAuth
	tables *fakeTables
	reg    *prometheus.Registry
}

func newTestServer(t *testing.T, db Pinger) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	ts := &testServer{auth: newFakeAuth(), tables: newFakeTables(), reg: reg}
	ts.engine, _ = New(Deps{
		Auth:     ts.auth,
		Tables:   ts.tables,
		DB:       db,
		Log:      zaptest.NewLogger(t),
		Metrics:  NewMetrics(reg),
		Gatherer: reg,
		Version:  "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

var errBoom = errors.New("boom")
