package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/and161185/tasklist/internal/config"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/tasks"
)

var errOpFailed = errors.New("operation failed (run with -v for details)")

func (a *app) cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	server := fs.String("server", "", "server URL")
	timeout := fs.Duration("timeout", 0, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *server != "" || *timeout > 0 {
		if *server != "" {
			a.cfg.ServerURL = *server
		}
		if *timeout > 0 {
			a.cfg.Timeout = config.Duration{Duration: *timeout}
		}
		if err := config.SaveClient(a.cfgPath, a.cfg); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "server_url = %s\ntimeout    = %s\nfile       = %s\n", a.cfg.ServerURL, a.cfg.Timeout.Duration, a.cfgPath)
	return nil
}

func (a *app) credentials(name string, args []string) (string, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	email := fs.String("e", "", "email")
	pw := fs.String("p", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if *email == "" {
		return "", "", errors.New("need -e <email>")
	}
	if *pw == "" {
		p, err := readPassword(a.in, a.errOut)
		if err != nil {
			return "", "", err
		}
		*pw = p
	}
	return *email, *pw, nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	email, pw, err := a.credentials("register", args)
	if err != nil {
		return err
	}
	s, err := a.mgr.SignUp(ctx, email, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s (%s)\n", s.User.Email, s.User.ID)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	email, pw, err := a.credentials("login", args)
	if err != nil {
		return err
	}
	s, err := a.mgr.SignIn(ctx, email, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s, token valid until %s\n", s.User.Email, s.ExpiresAt.Local().Format(time.RFC3339))
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	if !a.ctl.SignOut(ctx) {
		return errOpFailed
	}
	return nil
}

func (a *app) cmdWhoami(ctx context.Context) error {
	u, err := a.mgr.Ready(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Fprintln(a.out, "anonymous")
		return nil
	}
	fmt.Fprintf(a.out, "%s (%s)\n", u.Email, u.ID)
	return nil
}

// activate loads the list, or reports why it could not.
func (a *app) activate(ctx context.Context) error {
	if a.ctl.Activate(ctx) {
		return nil
	}
	if a.nav.redirected != "" {
		return errSilent
	}
	return errOpFailed
}

// errSilent signals failure whose message was already printed.
var errSilent = errors.New("")

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.activate(ctx); err != nil {
		return err
	}
	list := a.ctl.Tasks()
	if *asJSON {
		printJSON(a.out, list)
		return nil
	}
	printTasks(a.out, list)
	return nil
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("need task text")
	}
	u, err := a.mgr.Ready(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		a.nav.Redirect(tasks.LoginPath)
		return errSilent
	}
	a.ctl.SetDraft(text)
	if !a.ctl.SubmitDraft(ctx) {
		return errOpFailed
	}
	t := a.ctl.Tasks()[0]
	fmt.Fprintf(a.out, "added #%d %s\n", t.ID, t.Task)
	return nil
}

// findTask parses -id and returns the matching task from a fresh list.
func (a *app) findTask(ctx context.Context, name string, args []string) (model.Task, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	id := fs.Int64("id", 0, "task id")
	if err := fs.Parse(args); err != nil {
		return model.Task{}, nil, err
	}
	if *id <= 0 {
		return model.Task{}, nil, errors.New("need -id <n>")
	}
	if err := a.activate(ctx); err != nil {
		return model.Task{}, nil, err
	}
	for _, t := range a.ctl.Tasks() {
		if t.ID == *id {
			return t, fs.Args(), nil
		}
	}
	return model.Task{}, nil, fmt.Errorf("no task #%d", *id)
}

func (a *app) cmdEdit(ctx context.Context, args []string) error {
	t, rest, err := a.findTask(ctx, "edit", args)
	if err != nil {
		return err
	}
	text := strings.Join(rest, " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("need task text")
	}
	a.ctl.StartEdit(t)
	a.ctl.SetEditText(text)
	if !a.ctl.SaveEdit(ctx) {
		return errOpFailed
	}
	fmt.Fprintf(a.out, "updated #%d\n", t.ID)
	return nil
}

func (a *app) cmdToggle(ctx context.Context, args []string) error {
	t, _, err := a.findTask(ctx, "toggle", args)
	if err != nil {
		return err
	}
	if !a.ctl.ToggleComplete(ctx, t) {
		return errOpFailed
	}
	state := "open"
	if !t.IsComplete {
		state = "done"
	}
	fmt.Fprintf(a.out, "#%d %s\n", t.ID, state)
	return nil
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	t, _, err := a.findTask(ctx, "rm", args)
	if err != nil {
		return err
	}
	if !a.ctl.Remove(ctx, t.ID) {
		return errOpFailed
	}
	fmt.Fprintf(a.out, "removed #%d\n", t.ID)
	return nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printTasks(w io.Writer, list []model.Task) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range list {
		mark := "[ ]"
		if t.IsComplete {
			mark = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strconv.FormatInt(t.ID, 10), mark, t.Task, t.InsertedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	if term.IsTerminal(int(in.Fd())) {
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
