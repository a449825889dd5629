// Package tasks holds the signed-in user's task list and applies create, update,
// delete and toggle operations against the todos table.
//
// Remote failures never escape: they are logged, the local list is left as it
// was, and the operation reports false.
package tasks

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/model"
)

// LoginPath is where anonymous users are sent.
const LoginPath = "/login"

// Navigator moves the presentation surface to another screen.
type Navigator interface {
	Redirect(path string)
}

// Session is the view of the session manager the controller needs.
type Session interface {
	// Ready blocks until the initial user is resolved; nil means anonymous.
	Ready(ctx context.Context) (*model.User, error)
	User() *model.User
	SignOut(ctx context.Context) error
}

// Controller is the task list of the current user. It is safe for concurrent use;
// only the local apply step is serialized, remote calls are not.
type Controller struct {
	sess  Session
	todos backend.TodoTable
	nav   Navigator
	log   *zap.Logger

	mu        sync.Mutex
	list      []model.Task
	loading   bool
	draft     string
	editing   *model.Task
	editText  string
	signedOut bool

	reqSeq uint64
	latest map[int64]uint64 // newest update request per task id
}

// New returns a Controller in the loading state. log may be nil.
func New(sess Session, todos backend.TodoTable, nav Navigator, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		sess:    sess,
		todos:   todos,
		nav:     nav,
		log:     log,
		loading: true,
		latest:  map[int64]uint64{},
	}
}

// Activate waits for the session, redirects anonymous users to the login
// screen and otherwise loads the list. The user is re-read after Ready so a
// session that has since signed out stays blocked.
func (c *Controller) Activate(ctx context.Context) bool {
	if _, err := c.sess.Ready(ctx); err != nil {
		c.log.Warn("wait for session", zap.Error(err))
		return false
	}
	if c.sess.User() == nil {
		c.nav.Redirect(LoginPath)
		return false
	}
	c.mu.Lock()
	c.signedOut = false
	c.mu.Unlock()
	return c.FetchAll(ctx)
}

// currentUser returns the user operations run as, or nil when they are blocked.
func (c *Controller) currentUser(op string) *model.User {
	c.mu.Lock()
	out := c.signedOut
	c.mu.Unlock()
	u := c.sess.User()
	if out || u == nil {
		c.log.Debug("no current user", zap.String("op", op))
		return nil
	}
	return u
}

// FetchAll replaces the list with the user's todos, newest first.
func (c *Controller) FetchAll(ctx context.Context) bool {
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	u := c.currentUser("fetch")
	if u == nil {
		return false
	}
	rows, err := c.todos.ListByUser(ctx, u.ID)
	if err != nil {
		c.log.Error("fetch todos", zap.Error(err))
		return false
	}
	if rows == nil {
		rows = []model.Task{}
	}

	c.mu.Lock()
	c.list = rows
	c.mu.Unlock()
	return true
}

// Add inserts a new task at the top of the list. Blank text is ignored.
// The draft is cleared only when the insert succeeds.
func (c *Controller) Add(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	u := c.currentUser("add")
	if u == nil {
		return false
	}
	row, err := c.todos.Insert(ctx, model.NewTask{UserID: u.ID, Task: text, IsComplete: false})
	if err != nil {
		c.log.Error("add todo", zap.Error(err))
		return false
	}

	c.mu.Lock()
	c.list = append([]model.Task{*row}, c.list...)
	c.draft = ""
	c.mu.Unlock()
	return true
}

// SubmitDraft adds the current draft.
func (c *Controller) SubmitDraft(ctx context.Context) bool {
	return c.Add(ctx, c.Draft())
}

// Update applies patch to task id. The patched fields of the stored row are
// merged into the local entry; responses to superseded requests are dropped.
func (c *Controller) Update(ctx context.Context, id int64, patch model.TaskPatch) bool {
	if patch.Empty() {
		return false
	}
	if c.currentUser("update") == nil {
		return false
	}

	c.mu.Lock()
	c.reqSeq++
	seq := c.reqSeq
	c.latest[id] = seq
	c.mu.Unlock()

	row, err := c.todos.Update(ctx, id, patch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest[id] != seq {
		c.log.Debug("drop stale update", zap.Int64("id", id))
		return false
	}
	delete(c.latest, id)
	if err != nil {
		c.log.Error("update todo", zap.Int64("id", id), zap.Error(err))
		return false
	}

	changed := false
	for i := range c.list {
		if c.list[i].ID == id {
			c.list[i] = patch.Apply(c.list[i], *row)
			changed = true
		}
	}
	return changed
}

// ToggleComplete flips the completion flag of t.
func (c *Controller) ToggleComplete(ctx context.Context, t model.Task) bool {
	v := !t.IsComplete
	return c.Update(ctx, t.ID, model.TaskPatch{IsComplete: &v})
}

// Remove deletes task id. An id not in the list leaves it unchanged.
func (c *Controller) Remove(ctx context.Context, id int64) bool {
	if c.currentUser("remove") == nil {
		return false
	}
	if err := c.todos.Delete(ctx, id); err != nil {
		c.log.Error("delete todo", zap.Int64("id", id), zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.list[:0]
	for _, t := range c.list {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	changed := len(kept) != len(c.list)
	c.list = kept
	return changed
}

// StartEdit stages t for editing.
func (c *Controller) StartEdit(t model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := t
	c.editing = &cp
	c.editText = t.Task
}

// SetEditText replaces the staged edit text.
func (c *Controller) SetEditText(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editText = s
}

// SaveEdit writes the staged text. Blank text is ignored; the edit stays open
// until the update succeeds.
func (c *Controller) SaveEdit(ctx context.Context) bool {
	c.mu.Lock()
	if c.editing == nil {
		c.mu.Unlock()
		return false
	}
	id := c.editing.ID
	text := strings.TrimSpace(c.editText)
	c.mu.Unlock()

	if text == "" {
		return false
	}
	if !c.Update(ctx, id, model.TaskPatch{Task: &text}) {
		return false
	}

	c.mu.Lock()
	if c.editing != nil && c.editing.ID == id {
		c.editing = nil
		c.editText = ""
	}
	c.mu.Unlock()
	return true
}

// CancelEdit discards the open edit without writing it.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = nil
	c.editText = ""
}

// SignOut ends the session, redirects to the login screen and blocks further
// task operations until the next Activate.
func (c *Controller) SignOut(ctx context.Context) bool {
	if err := c.sess.SignOut(ctx); err != nil {
		c.log.Warn("sign out", zap.Error(err))
	}
	c.mu.Lock()
	c.signedOut = true
	c.list = nil
	c.editing = nil
	c.editText = ""
	c.mu.Unlock()

	c.nav.Redirect(LoginPath)
	return true
}

// Tasks returns a copy of the list.
func (c *Controller) Tasks() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Task, len(c.list))
	copy(out, c.list)
	return out
}

// Loading reports whether the list is still being fetched for the first time.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Draft returns the pending new-task text.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the pending new-task text.
func (c *Controller) SetDraft(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = s
}

// Editing returns the staged task and text, or nil when no edit is open.
func (c *Controller) Editing() (*model.Task, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return nil, ""
	}
	cp := *c.editing
	return &cp, c.editText
}
