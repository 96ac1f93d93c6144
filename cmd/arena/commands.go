package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/codearena/arena"
	"github.com/codearena/arena/api"
	"github.com/codearena/arena/auth"
	"github.com/codearena/arena/common/settings"
)

type commands struct {
	client *arena.Client
	term   *terminal
}

func (c *commands) login(ctx context.Context, cmd *loginCmd) error {
	username := cmd.Username
	if username == "" {
		var err error
		if username, err = c.term.readLine("Username", settings.GetString(settings.LastLoginKey)); err != nil {
			return err
		}
	}
	password := cmd.Password
	if password == "" {
		var err error
		if password, err = c.term.readSecret("Password"); err != nil {
			return err
		}
	}
	if cmd.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Wait)
		defer cancel()
	}

	done := make(chan auth.Update, 1)
	cancel := c.client.LoginContext(ctx, auth.Credentials{Username: username, Password: password}, func(u auth.Update) {
		switch {
		case u.Terminal():
			done <- u
		case u.Attempt == 0:
			c.term.printf("Login queued, waiting for the server...\n")
		}
	})
	defer cancel()

	select {
	case u := <-done:
		if u.Err != nil {
			return u.Err
		}
		c.term.printf("Logged in as %s (%s)\n", u.Result.Username, u.Result.Role)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", auth.ErrCanceled, ctx.Err())
	}
}

func (c *commands) logout() error {
	u, err := c.client.CurrentUser()
	if err != nil {
		return err
	}
	if u == nil {
		c.term.printf("Not logged in\n")
		return nil
	}
	if err := c.client.Logout(); err != nil {
		return err
	}
	c.term.printf("Logged out %s\n", u.Username)
	return nil
}

func (c *commands) whoami() error {
	u, err := c.client.CurrentUser()
	if err != nil {
		return err
	}
	if u == nil {
		return arena.ErrNotLoggedIn
	}
	c.term.printf("%s (id %d, %s)\n", u.Username, u.AccountID, u.Role)
	if !u.ExpiresAt.IsZero() {
		state := "expires"
		if u.Expired(time.Now()) {
			state = "expired"
		}
		c.term.printf("Token %s %s\n", state, u.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (c *commands) register(ctx context.Context, cmd *registerCmd) error {
	password := cmd.Password
	if password == "" {
		var err error
		if password, err = c.term.readSecret("Password"); err != nil {
			return err
		}
	}
	msg, err := c.client.Register(ctx, api.RegisterRequest{
		Username: cmd.Username,
		Password: password,
		Email:    cmd.Email,
		Role:     cmd.Role,
	})
	if err != nil {
		if m := api.ServerMessage(err); m != "" {
			return fmt.Errorf("registration rejected: %s", m)
		}
		return err
	}
	c.term.printf("%s\n", strings.TrimSpace(msg))
	return nil
}

func (c *commands) problems(ctx context.Context, cmd *problemsCmd) error {
	ps, err := c.client.Problems(ctx)
	if err != nil {
		return err
	}
	ps = api.FilterProblems(ps, cmd.Difficulty, cmd.Tag)
	if len(ps) == 0 {
		c.term.printf("No problems found\n")
		return nil
	}
	w := tabwriter.NewWriter(c.term.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tTAGS")
	for _, p := range ps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Title, p.Difficulty, strings.Join(p.Tags(), ", "))
	}
	return w.Flush()
}

func (c *commands) problem(ctx context.Context, id int64) error {
	if !c.client.LoggedIn() {
		return arena.ErrNotLoggedIn
	}
	p, err := c.client.Problem(ctx, id)
	if err != nil {
		return err
	}
	c.printProblem(p)
	return nil
}

func (c *commands) workspace(ctx context.Context, cmd *workspaceCmd) error {
	if !c.client.LoggedIn() {
		return arena.ErrNotLoggedIn
	}
	ws, err := c.client.Workspace(ctx, cmd.ID)
	if err != nil {
		return err
	}
	c.printProblem(ws.Problem)

	if len(ws.TestCases) > 0 {
		c.term.printf("\nSample test cases:\n")
		for _, tc := range ws.TestCases {
			if !tc.Sample {
				continue
			}
			c.term.printf("  input:    %s\n  expected: %s\n", tc.Input, tc.ExpectedOutput)
		}
	}
	if len(ws.Languages) > 0 {
		c.term.printf("\nLanguages: %s\n", strings.Join(ws.Languages, ", "))
	}
	for _, tpl := range ws.Templates {
		if cmd.Language != "" && !strings.EqualFold(tpl.Language, cmd.Language) {
			continue
		}
		c.term.printf("\n--- %s ---\n%s\n", tpl.Language, strings.TrimRight(tpl.Template, "\n"))
	}
	return nil
}

func (c *commands) printProblem(p *api.Problem) {
	c.term.printf("#%d %s [%s]\n", p.ID, p.Title, p.Difficulty)
	if tags := p.Tags(); len(tags) > 0 {
		c.term.printf("Tags: %s\n", strings.Join(tags, ", "))
	}
	c.term.printf("\n%s\n", strings.TrimSpace(p.Description))
}
