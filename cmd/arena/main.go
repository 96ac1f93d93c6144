// Command arena logs in to the arena backend and browses its problems from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/codearena/arena"
	"github.com/codearena/arena/app"
	"github.com/codearena/arena/common/reporting"
)

type loginCmd struct {
	Username string        `arg:"-u,--username" help:"account name, prompted when empty"`
	Password string        `arg:"-p,--password,env:ARENA_PASSWORD" help:"password, prompted without echo when empty"`
	Wait     time.Duration `arg:"--wait" help:"give up waiting for the login after this long (0 uses the configured bound)"`
}

type registerCmd struct {
	Username string `arg:"-u,--username,required" help:"account name"`
	Email    string `arg:"-e,--email,required" help:"contact address"`
	Password string `arg:"-p,--password,env:ARENA_PASSWORD" help:"password, prompted without echo when empty"`
	Role     string `arg:"--role" default:"USER" help:"account role"`
}

type problemsCmd struct {
	Difficulty string `arg:"-d,--difficulty" help:"only list problems of this difficulty"`
	Tag        string `arg:"-t,--tag" help:"only list problems with this topic tag"`
}

type problemCmd struct {
	ID int64 `arg:"positional,required" help:"problem id"`
}

type workspaceCmd struct {
	ID       int64  `arg:"positional,required" help:"problem id"`
	Language string `arg:"-l,--language" help:"only show the template for this language"`
}

type emptyCmd struct{}

type args struct {
	Config   string `arg:"--config,env:ARENA_CONFIG" help:"config file (default: <user config dir>/arena/arena.yaml)"`
	DataDir  string `arg:"--data-dir" help:"directory for credentials and settings"`
	LogLevel string `arg:"--log-level" help:"trace, debug, info, warn or error"`
	APIURL   string `arg:"--api-url,env:ARENA_API_URL" help:"backend address"`
	Verbose  bool   `arg:"-v,--verbose" help:"also write logs to stderr"`

	Login     *loginCmd     `arg:"subcommand:login" help:"log in and store the credential"`
	Logout    *emptyCmd     `arg:"subcommand:logout" help:"forget the stored credential"`
	Whoami    *emptyCmd     `arg:"subcommand:whoami" help:"show the logged in account"`
	Register  *registerCmd  `arg:"subcommand:register" help:"create an account"`
	Problems  *problemsCmd  `arg:"subcommand:problems" help:"list problems"`
	Problem   *problemCmd   `arg:"subcommand:problem" help:"show one problem"`
	Workspace *workspaceCmd `arg:"subcommand:workspace" help:"show a problem with its test cases and templates"`
}

func (args) Description() string {
	return "arena is a terminal client for the arena coding platform."
}

func (args) Version() string { return "arena " + app.Version }

func main() {
	defer reporting.Recover()

	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, a, newTerminal(os.Stdin, os.Stdout))
	stop()
	if err != nil {
		if !errors.Is(err, arena.ErrNotLoggedIn) && !errors.Is(err, context.Canceled) {
			reporting.CaptureError(err)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a args, term *terminal) error {
	opts := arena.Options{
		ConfigPath: a.Config,
		DataDir:    a.DataDir,
		LogLevel:   a.LogLevel,
		APIURL:     a.APIURL,
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath()
	}
	if a.Verbose {
		opts.Console = os.Stderr
	}
	c, err := arena.NewClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	cmds := &commands{client: c, term: term}
	switch {
	case a.Login != nil:
		return cmds.login(ctx, a.Login)
	case a.Logout != nil:
		return cmds.logout()
	case a.Whoami != nil:
		return cmds.whoami()
	case a.Register != nil:
		return cmds.register(ctx, a.Register)
	case a.Problems != nil:
		return cmds.problems(ctx, a.Problems)
	case a.Problem != nil:
		return cmds.problem(ctx, a.Problem.ID)
	case a.Workspace != nil:
		return cmds.workspace(ctx, a.Workspace)
	}
	return errors.New("missing subcommand")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, app.Name, app.ConfigFileName)
}
