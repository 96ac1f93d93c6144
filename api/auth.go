package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codearena/arena/traces"
)

const (
	loginPath       = "/api/auth/login"
	loginResultPath = "/api/auth/login/result/{sessionId}"
	registerPath    = "/api/auth/register"
)

// Login result status values.
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFail    = "FAIL"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse acknowledges a queued login.
type LoginResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// LoginResult is the state of a queued login. The backend stores every field as a
// string, so ID accepts both forms.
type LoginResult struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Token    string    `json:"token"`
	ID       FlexInt64 `json:"id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// FlexInt64 decodes a JSON number, a numeric string, an empty string or null.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*f = FlexInt64(n)
	return nil
}

// AuthClient covers the login and registration endpoints. Requests are never retried.
type AuthClient struct {
	wc *webClient
}

func NewAuthClient(opts Options) *AuthClient {
	httpClient := &http.Client{
		Transport: opts.transport(),
		Timeout:   opts.timeout(),
	}
	wc := newWebClient(httpClient, opts.baseURL(), opts.Identity)
	wc.onUnauthorized = opts.OnUnauthorized
	return &AuthClient{wc: wc}
}

// Login queues a login and returns the session to poll.
func (c *AuthClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "login", trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	var resp LoginResponse
	req := c.wc.NewRequest(nil, nil, LoginRequest{Username: username, Password: password})
	if err := c.wc.Post(ctx, loginPath, req, &resp); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	return &resp, nil
}

// LoginResult fetches the current state of a queued login.
func (c *AuthClient) LoginResult(ctx context.Context, sessionID string) (*LoginResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "login_result")
	defer span.End()

	var resp LoginResult
	req := c.wc.NewRequest(nil, map[string]string{"sessionId": sessionID}, nil)
	if err := c.wc.Get(ctx, loginResultPath, req, &resp); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	span.SetAttributes(attribute.String("status", resp.Status))
	return &resp, nil
}

// Register creates an account and returns the server's confirmation text.
func (c *AuthClient) Register(ctx context.Context, r RegisterRequest) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "register")
	defer span.End()

	var msg string
	req := c.wc.NewRequest(nil, nil, r)
	if err := c.wc.Post(ctx, registerPath, req, &msg); err != nil {
		return "", traces.RecordError(ctx, err)
	}
	return msg, nil
}
