// Command tl is a CLI client for the task list service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/backend/httpclient"
	"github.com/and161185/tasklist/internal/config"
	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/session"
	"github.com/and161185/tasklist/internal/tasks"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `tl CLI
Usage:
  tl [-server URL] [-timeout 30s] [-config file] [-v] <cmd> [args]

Commands:
  version
  config     [-server URL] [-timeout D]          (saves config.toml)
  register   -e <email> [-p <password>]
  login      -e <email> [-p <password>]           (saves session)
  logout
  whoami
  list       [-json]
  add        <text...>
  edit       -id <n> <text...>
  toggle     -id <n>
  rm         -id <n>
`)
	os.Exit(2)
}

// cliNavigator reports redirects as messages; the CLI has no screens.
type cliNavigator struct {
	w          io.Writer
	redirected string
}

func (n *cliNavigator) Redirect(path string) {
	n.redirected = path
	if path == tasks.LoginPath {
		fmt.Fprintln(n.w, "not signed in; run `tl login`")
	}
}

// app is one CLI invocation wired to the backend.
type app struct {
	out, errOut io.Writer
	in          *os.File

	cfgPath string
	cfg     config.Client

	client *httpclient.Client
	mgr    *session.Manager
	ctl    *tasks.Controller
	nav    *cliNavigator
	log    *zap.Logger
}

func newLogger(verbose bool) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.DisableStacktrace = true
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// connect builds the backend client, session manager and task controller.
func (a *app) connect(ctx context.Context) error {
	store := httpclient.NewFileStore(filepath.Join(config.Dir(), "session.json"))
	c, err := httpclient.New(a.cfg.ServerURL, &http.Client{Timeout: a.cfg.Timeout.Duration}, store, a.log)
	if err != nil {
		return err
	}
	a.client = c
	a.mgr = session.New(c, c.Profiles(), a.log)
	a.nav = &cliNavigator{w: a.errOut}
	a.ctl = tasks.New(a.mgr, c.Todos(), a.nav, a.log)
	a.mgr.Start(ctx)
	return nil
}

func (a *app) close() {
	if a.mgr != nil {
		a.mgr.Close()
	}
}

// main dispatches subcommands.
func main() {
	// global flags
	cfgPath := flag.String("config", config.ClientPath(), "config file (TOML)")
	server := flag.String("server", "", "server URL (overrides config)")
	timeout := flag.Duration("timeout", 0, "request timeout (overrides config)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.LoadClient(*cfgPath)
	if err != nil {
		fail(fmt.Errorf("config: %w", err))
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *timeout > 0 {
		cfg.Timeout = config.Duration{Duration: *timeout}
	}

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	a := &app{out: os.Stdout, errOut: os.Stderr, in: os.Stdin, cfgPath: *cfgPath, cfg: cfg, log: logger}
	if err := a.run(flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		if errors.Is(err, errSilent) {
			os.Exit(1)
		}
		fail(err)
	}
}

func (a *app) run(cmd string, args []string) error {
	switch cmd {
	case "version":
		fmt.Fprintf(a.out, "tl %s (%s)\n", version, buildDate)
		return nil
	case "config":
		return a.cmdConfig(args)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout.Duration+5*time.Second)
	defer cancel()
	if err := a.connect(ctx); err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "register":
		return a.cmdRegister(ctx, args)
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout(ctx)
	case "whoami":
		return a.cmdWhoami(ctx)
	case "list":
		return a.cmdList(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "edit":
		return a.cmdEdit(ctx, args)
	case "toggle":
		return a.cmdToggle(ctx, args)
	case "rm":
		return a.cmdRemove(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func fail(err error) {
	var ae *backend.AuthError
	switch {
	case errors.As(err, &ae):
		fmt.Fprintf(os.Stderr, "auth error: status=%d code=%s msg=%s\n", ae.Status, ae.Code, ae.Message)
	case errors.Is(err, errs.ErrNoSession):
		fmt.Fprintln(os.Stderr, "not signed in; run `tl login`")
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}
