// Package auth drives the queued login flow: a login request returns a session handle,
// and the session is polled until the backend resolves it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codearena/arena/api"
	"github.com/codearena/arena/common/reporting"
	"github.com/codearena/arena/metrics"
	"github.com/codearena/arena/traces"
)

const (
	tracerName = "github.com/codearena/arena/auth"

	DefaultInterval = time.Second
	// DefaultMaxDuration matches how long the backend keeps a login result.
	DefaultMaxDuration = 5 * time.Minute
)

// LoginAPI is the part of the backend the poller talks to.
type LoginAPI interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	LoginResult(ctx context.Context, sessionID string) (*api.LoginResult, error)
}

type Option func(*Poller)

// WithMaxAttempts ends a session with a timeout after n polls. Zero means no limit.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

// WithMaxDuration ends a session with a timeout once d has elapsed since Start. Zero
// means no limit.
func WithMaxDuration(d time.Duration) Option {
	return func(p *Poller) { p.maxDuration = d }
}

// Poller runs at most one login session at a time. Starting a new session cancels the
// previous one.
type Poller struct {
	api         LoginAPI
	maxAttempts int
	maxDuration time.Duration

	mu      sync.Mutex
	state   State
	handle  SessionHandle
	current *session

	wg sync.WaitGroup
}

func NewPoller(loginAPI LoginAPI, opts ...Option) *Poller {
	p := &Poller{
		api:         loginAPI,
		maxDuration: DefaultMaxDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Handle returns the active session handle, or "" when no session is active.
func (p *Poller) Handle() SessionHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Initiate sends the login request and returns the session handle to poll. Any running
// session is cancelled first.
func (p *Poller) Initiate(ctx context.Context, creds Credentials) (SessionHandle, error) {
	p.stopCurrent()
	p.transition(nil, StateInitiating, "")
	h, _, err := p.initiate(ctx, creds)
	if err != nil {
		p.transition(nil, StateFailed, "")
		return "", err
	}
	p.transition(nil, StatePolling, h)
	return h, nil
}

// PollOnce asks the backend for the status of h. Pending, Success and Failure answers
// return a nil error; anything else is a *TransportError.
func (p *Poller) PollOnce(ctx context.Context, h SessionHandle) (Status, error) {
	st, err := p.poll(ctx, h)
	if st.Kind.Terminal() {
		p.mu.Lock()
		if p.current == nil && p.handle == h {
			p.state = terminalState(st.Kind)
			p.handle = ""
		}
		p.mu.Unlock()
	}
	return st, err
}

// Start runs a login session in the background and reports progress to observer. It
// returns immediately. An interval of zero or less uses DefaultInterval.
func (p *Poller) Start(creds Credentials, observer Observer, interval time.Duration) CancelFunc {
	return p.StartContext(context.Background(), creds, observer, interval)
}

// StartContext is like Start. Cancelling ctx stops the session the same way the
// returned CancelFunc does.
func (p *Poller) StartContext(ctx context.Context, creds Credentials, observer Observer, interval time.Duration) CancelFunc {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if observer == nil {
		observer = func(Update) {}
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel}

	p.mu.Lock()
	prev := p.current
	p.current = s
	p.state = StateInitiating
	p.handle = ""
	p.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer reporting.Recover()
		defer cancel()
		p.run(sctx, s, creds, observer, interval)
	}()

	return func() {
		s.stop()
		p.release(s)
	}
}

// Close cancels the running session and waits for every session goroutine to exit. It
// must not be called from an Observer.
func (p *Poller) Close() {
	p.stopCurrent()
	p.wg.Wait()
}

func (p *Poller) stopCurrent() {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s != nil {
		s.stop()
		p.release(s)
	}
}

// release forgets s if it is still the current session.
func (p *Poller) release(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == s {
		p.current = nil
		p.state = StateIdle
		p.handle = ""
	}
}

// transition applies a state change on behalf of s, or on behalf of manual Initiate and
// PollOnce calls when s is nil. Changes from a session that is no longer current are
// dropped.
func (p *Poller) transition(s *session, state State, h SessionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != s {
		return
	}
	p.state = state
	p.handle = h
	if s != nil && (state == StateSucceeded || state == StateFailed) {
		p.current = nil
	}
}

func (p *Poller) run(ctx context.Context, s *session, creds Credentials, observer Observer, interval time.Duration) {
	start := time.Now()
	// parent is done only when the caller gave up; ctx also carries the session bound.
	parent := ctx
	if p.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, start.Add(p.maxDuration))
		defer cancel()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "login_session", trace.WithAttributes(attribute.String("username", creds.Username)))
	defer span.End()

	log := slog.With("username", creds.Username)
	metrics.LoginAttempted(ctx)

	finish := func(u Update) {
		p.transition(s, terminalState(u.Status), "")
		metrics.LoginFinished(ctx, u.Status.String(), time.Since(start))
		span.SetAttributes(attribute.String("outcome", u.Status.String()))
		if u.Err != nil {
			traces.RecordError(ctx, u.Err)
		}
		log.Debug("Login session finished", "status", u.Status, "attempt", u.Attempt, "elapsed", time.Since(start))
		s.deliver(observer, u)
	}
	// gone reports whether the session was cancelled, either through its CancelFunc
	// or through the caller's context, including the caller's own deadline.
	gone := func() bool {
		if s.cancelled.Load() {
			return true
		}
		if parent.Err() != nil {
			s.stop()
			p.release(s)
			return true
		}
		return false
	}
	timedOut := func(h SessionHandle, attempt int) bool {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false
		}
		finish(Update{
			Status:  StatusTimeout,
			Handle:  h,
			Attempt: attempt,
			Message: fmt.Sprintf("no result after %v", p.maxDuration),
			Err:     ErrTimeout,
		})
		return true
	}

	h, msg, err := p.initiate(ctx, creds)
	if gone() || (err != nil && timedOut(h, 0)) {
		return
	}
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			msg = ve.Message
		}
		finish(Update{Status: kindOf(err), Message: msg, Err: err})
		return
	}
	p.transition(s, StatePolling, h)
	log = log.With("session", h)
	log.Debug("Login session started")
	if !s.deliver(observer, Update{Status: StatusPending, Handle: h, Message: msg}) {
		return
	}

	attempt := 0
	// step polls once and reports whether the session is over.
	step := func() bool {
		attempt++
		metrics.LoginPolled(ctx)
		st, err := p.poll(ctx, h)
		if gone() || (err != nil && timedOut(h, attempt)) {
			return true
		}
		u := Update{Status: st.Kind, Handle: h, Attempt: attempt, Message: st.Message, Result: st.Result, Err: err}
		if st.Kind == StatusFailure {
			u.Err = serverFailure(st.Message)
		}
		if u.Terminal() {
			finish(u)
			return true
		}
		if !s.deliver(observer, u) {
			return true
		}
		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			finish(Update{
				Status:  StatusTimeout,
				Handle:  h,
				Attempt: attempt,
				Message: fmt.Sprintf("no result after %d attempts", attempt),
				Err:     ErrTimeout,
			})
			return true
		}
		return false
	}

	if step() {
		return
	}
	// A ticker drops ticks while a poll is running, so polls never overlap.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if !gone() {
				timedOut(h, attempt)
			}
			return
		case <-ticker.C:
			if step() {
				return
			}
		}
	}
}

func (p *Poller) initiate(ctx context.Context, creds Credentials) (SessionHandle, string, error) {
	if creds.Username == "" || creds.Password == "" {
		return "", "", &ValidationError{Message: "username and password are required"}
	}
	resp, err := p.api.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) {
			msg := se.Message
			if msg == "" {
				msg = se.Error()
			}
			return "", "", &ValidationError{Message: msg, Err: err}
		}
		return "", "", &TransportError{Op: "initiate", Err: err}
	}
	if resp.SessionID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "no session id in login response"
		}
		return "", "", &ValidationError{Message: msg}
	}
	return SessionHandle(resp.SessionID), resp.Message, nil
}

func (p *Poller) poll(ctx context.Context, h SessionHandle) (Status, error) {
	transportErr := func(err error) (Status, error) {
		te := &TransportError{Op: "poll", Err: err}
		return Status{Kind: StatusTransportError, Message: te.Error()}, te
	}
	resp, err := p.api.LoginResult(ctx, string(h))
	if err != nil {
		return transportErr(err)
	}
	switch resp.Status {
	case api.StatusPending:
		return Status{Kind: StatusPending, Message: resp.Message}, nil
	case api.StatusFail:
		return Status{Kind: StatusFailure, Message: resp.Message}, nil
	case api.StatusSuccess:
		if resp.Token == "" {
			return transportErr(fmt.Errorf("%w: success without a token", api.ErrMalformedResponse))
		}
		return Status{Kind: StatusSuccess, Message: resp.Message, Result: newResult(resp)}, nil
	}
	return transportErr(fmt.Errorf("%w: unknown status %q", api.ErrMalformedResponse, resp.Status))
}

func newResult(resp *api.LoginResult) *Result {
	r := &Result{
		Token:     resp.Token,
		AccountID: int64(resp.ID),
		Username:  resp.Username,
		Role:      resp.Role,
	}
	// Opaque tokens are fine; only JWTs carry an expiry.
	if claims, err := api.ParseTokenClaims(resp.Token); err == nil {
		r.ExpiresAt = claims.ExpiresAt
	}
	return r
}

func terminalState(k StatusKind) State {
	if k == StatusSuccess {
		return StateSucceeded
	}
	return StateFailed
}

type session struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	deliverMu sync.Mutex
	// observerG is the goroutine running the observer, 0 outside a delivery.
	observerG atomic.Uint64
}

// deliver hands u to the observer unless the session was cancelled. It reports whether
// the update was delivered.
func (s *session) deliver(observer Observer, u Update) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.cancelled.Load() {
		return false
	}
	s.observerG.Store(curGoroutineID())
	defer s.observerG.Store(0)
	observer(u)
	return true
}

// stop marks the session cancelled, aborts its in-flight request and waits for a
// delivery in progress to return. Only a stop issued by the observer itself, on the
// delivering goroutine, skips the wait.
func (s *session) stop() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.cancel()
	}
	if s.observerG.Load() != curGoroutineID() {
		s.deliverMu.Lock()
		//nolint:staticcheck // empty critical section waits for a delivery to finish
		s.deliverMu.Unlock()
	}
}
