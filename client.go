// Package arena is the client library for the arena coding platform. A [Client] logs the
// user in through the backend's queued login flow, keeps the resulting credential on
// disk and fetches problems with it.
package arena

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/codearena/arena/api"
	"github.com/codearena/arena/app"
	"github.com/codearena/arena/auth"
	"github.com/codearena/arena/backend"
	"github.com/codearena/arena/common"
	"github.com/codearena/arena/common/deviceid"
	"github.com/codearena/arena/common/reporting"
	"github.com/codearena/arena/common/settings"
	"github.com/codearena/arena/config"
	"github.com/codearena/arena/telemetry"
	"github.com/codearena/arena/traces"
	"github.com/codearena/arena/user"
)

const tracerName = "github.com/codearena/arena"

// ErrNotLoggedIn is returned by commands that need a stored credential.
var ErrNotLoggedIn = errors.New("not logged in")

type Options struct {
	// ConfigPath is the YAML config file. A missing file means defaults.
	ConfigPath string
	// Config is used instead of loading ConfigPath when set.
	Config *config.Config

	DataDir  string
	LogDir   string
	LogLevel string
	// APIURL overrides the configured backend address.
	APIURL string
	// Locale overrides the detected system locale.
	Locale string
	// Console receives a copy of the log output. Nil logs to file only.
	Console io.Writer
	// Store replaces the on-disk credential store.
	Store user.Store
}

// Client is the entry point to the arena backend. It is safe for concurrent use.
type Client struct {
	cfg      *config.Config
	store    user.Store
	auth     *api.AuthClient
	problems *api.ProblemClient
	poller   *auth.Poller

	shutdownFuncs []func(context.Context) error
	closeOnce     sync.Once
}

func NewClient(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if opts.APIURL != "" {
		cfg.API.BaseURL = opts.APIURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	logDir := opts.LogDir
	if logDir == "" {
		logDir = cfg.Log.Dir
	}
	if err := common.Init(opts.DataDir, logDir, logLevel, opts.Console); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	reporting.Init(cfg.Sentry.DSN, app.Version)

	locale := opts.Locale
	if locale == "" {
		locale = backend.DetectLocale()
	}
	if err := settings.Set(settings.LocaleKey, locale); err != nil {
		slog.Warn("Failed to persist locale", "error", err)
	}
	if err := settings.Set(settings.APIURLKey, cfg.API.BaseURL); err != nil {
		slog.Warn("Failed to persist api url", "error", err)
	}
	deviceID := deviceid.Get()

	if err := telemetry.Init(context.Background(), cfg.Telemetry, telemetry.Attributes{DeviceID: deviceID, Locale: locale}); err != nil {
		slog.Warn("Telemetry disabled", "error", err)
	}

	store := opts.Store
	if store == nil {
		fs, err := user.NewFileStore(common.DataPath())
		if err != nil {
			common.Close()
			return nil, err
		}
		store = fs
	}

	c := &Client{cfg: cfg, store: store}
	apiOpts := api.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		MaxRetries: cfg.API.MaxRetries,
		Identity:   backend.StaticIdentity{Device: deviceID, Lang: locale},
	}
	c.auth = api.NewAuthClient(apiOpts)

	apiOpts.Tokens = c.token
	apiOpts.OnUnauthorized = c.onUnauthorized
	c.problems = api.NewProblemClient(apiOpts)

	c.poller = auth.NewPoller(c.auth,
		auth.WithMaxAttempts(cfg.Poll.MaxAttempts),
		auth.WithMaxDuration(cfg.PollMaxDuration()),
	)
	c.addShutdownFunc(
		func(context.Context) error { c.poller.Close(); return nil },
		func(context.Context) error { c.problems.Close(); return nil },
		telemetry.Close,
		func(context.Context) error { return common.Close() },
	)
	slog.Info("Arena client ready", "version", app.Version, "api", cfg.API.BaseURL, "device", deviceID)
	return c, nil
}

func (c *Client) addShutdownFunc(fns ...func(context.Context) error) {
	for _, fn := range fns {
		if fn != nil {
			c.shutdownFuncs = append(c.shutdownFuncs, fn)
		}
	}
}

// Close stops any login in progress and releases the client's resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		slog.Debug("Closing arena client")
		for _, shutdown := range c.shutdownFuncs {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("Failed to shutdown", "error", err)
			}
		}
	})
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// Login starts a login in the background and reports every step to observer. The
// credential is saved before the Success update is delivered; if saving fails, that
// update carries the error in Err. Starting another login cancels this one.
func (c *Client) Login(creds auth.Credentials, observer auth.Observer) auth.CancelFunc {
	return c.LoginContext(context.Background(), creds, observer)
}

// LoginContext is like Login and also stops when ctx is done.
func (c *Client) LoginContext(ctx context.Context, creds auth.Credentials, observer auth.Observer) auth.CancelFunc {
	return c.poller.StartContext(ctx, creds, func(u auth.Update) {
		if u.Status == auth.StatusSuccess {
			if err := c.store.Save(u.Result); err != nil {
				slog.Error("Failed to save credentials", "error", err)
				reporting.CaptureError(err)
				u.Err = fmt.Errorf("saving credentials: %w", err)
			} else if err := settings.Set(settings.LastLoginKey, u.Result.Username); err != nil {
				slog.Warn("Failed to remember last login", "error", err)
			}
		}
		if observer != nil {
			observer(u)
		}
	}, c.cfg.Poll.Interval)
}

// LoginAndWait logs in and blocks until the login resolves or ctx is done.
func (c *Client) LoginAndWait(ctx context.Context, creds auth.Credentials) (*auth.Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "login_and_wait")
	defer span.End()

	done := make(chan auth.Update, 1)
	cancel := c.LoginContext(ctx, creds, func(u auth.Update) {
		if u.Terminal() {
			done <- u
		}
	})
	defer cancel()

	select {
	case u := <-done:
		if u.Err != nil {
			return nil, traces.RecordError(ctx, u.Err)
		}
		return u.Result, nil
	case <-ctx.Done():
		return nil, traces.RecordError(ctx, fmt.Errorf("%w: %w", auth.ErrCanceled, ctx.Err()))
	}
}

// LoginState returns the state of the most recent login.
func (c *Client) LoginState() auth.State { return c.poller.State() }

// Logout forgets the stored credential.
func (c *Client) Logout() error {
	return c.store.Clear()
}

// CurrentUser returns the stored credential, or nil when logged out.
func (c *Client) CurrentUser() (*auth.Result, error) {
	return c.store.Current()
}

// LoggedIn reports whether a non-expired credential is stored.
func (c *Client) LoggedIn() bool {
	return user.LoggedIn(c.store)
}

func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (string, error) {
	return c.auth.Register(ctx, req)
}

func (c *Client) Problems(ctx context.Context) ([]api.Problem, error) {
	return c.problems.Problems(ctx)
}

func (c *Client) Problem(ctx context.Context, id int64) (*api.Problem, error) {
	return c.problems.Problem(ctx, id)
}

func (c *Client) Workspace(ctx context.Context, problemID int64) (*api.Workspace, error) {
	return c.problems.Workspace(ctx, problemID)
}

func (c *Client) token() string {
	r, err := c.store.Current()
	if err != nil {
		slog.Warn("Failed to read credentials", "error", err)
		return ""
	}
	if r == nil {
		return ""
	}
	return r.Token
}

// onUnauthorized drops a credential the backend no longer accepts. An unreadable
// credential is dropped too.
func (c *Client) onUnauthorized() {
	r, err := c.store.Current()
	switch {
	case err != nil:
		slog.Warn("Backend rejected the request and the stored credentials are unreadable, clearing them", "error", err)
	case r == nil:
		return
	default:
		slog.Info("Backend rejected the stored token, logging out", "username", r.Username)
	}
	if err := c.store.Clear(); err != nil {
		slog.Error("Failed to clear credentials", "error", err)
	}
}
