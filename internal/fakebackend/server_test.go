package fakebackend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena/api"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestServer(t *testing.T, delay time.Duration) (*Server, *httptest.Server, *clock) {
	clk := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := New(Options{ResultDelay: delay, Now: clk.Now, Secret: []byte("test-secret")})
	require.NoError(t, Seed(s))
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv, clk
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func login(t *testing.T, srvURL, username, password string) string {
	t.Helper()
	resp, err := http.Post(srvURL+"/api/auth/login", "application/json",
		strings.NewReader(`{"username":"`+username+`","password":"`+password+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "PENDING", body["status"])
	require.NotEmpty(t, body["sessionId"])
	return body["sessionId"]
}

func TestQueuedLogin(t *testing.T) {
	s, srv, clk := newTestServer(t, time.Minute)
	id := login(t, srv.URL, DemoUsername, DemoPassword)

	code, body := get(t, srv.URL+"/api/auth/login/result/"+id, "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, `{"status":"PENDING","message":"Processing..."}`, body)

	clk.Advance(time.Minute)
	code, body = get(t, srv.URL+"/api/auth/login/result/"+id, "")
	require.Equal(t, http.StatusOK, code)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.Equal(t, "SUCCESS", result["status"])
	assert.Equal(t, "1", result["id"], "ids are strings on the wire")
	assert.Equal(t, "USER", result["role"])
	assert.NotEmpty(t, result["token"])
	assert.Equal(t, 2, s.Polls())

	claims, err := api.ParseTokenClaims(result["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, DemoUsername, claims.Subject)
	assert.True(t, clk.Now().Add(DefaultTokenTTL).Equal(claims.ExpiresAt))
}

func TestLoginResultExpires(t *testing.T) {
	_, srv, clk := newTestServer(t, 0)
	id := login(t, srv.URL, DemoUsername, DemoPassword)

	code, _ := get(t, srv.URL+"/api/auth/login/result/"+id, "")
	assert.Equal(t, http.StatusOK, code)

	clk.Advance(DefaultResultTTL + time.Second)
	code, _ = get(t, srv.URL+"/api/auth/login/result/"+id, "")
	assert.Equal(t, http.StatusAccepted, code)
}

func TestFailedLogin(t *testing.T) {
	_, srv, _ := newTestServer(t, 0)
	auth := api.NewAuthClient(api.Options{BaseURL: srv.URL})
	ctx := context.Background()

	resp, err := auth.Login(ctx, DemoUsername, "wrong")
	require.NoError(t, err)
	result, err := auth.LoginResult(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusFail, result.Status)
	assert.Equal(t, "Invalid username or password", result.Message)
	assert.Zero(t, result.ID)
	assert.Empty(t, result.Token)
}

func TestUnknownSessionIsPending(t *testing.T) {
	_, srv, _ := newTestServer(t, 0)
	code, _ := get(t, srv.URL+"/api/auth/login/result/nope", "")
	assert.Equal(t, http.StatusAccepted, code)
}

func TestRegister(t *testing.T) {
	_, srv, _ := newTestServer(t, 0)
	auth := api.NewAuthClient(api.Options{BaseURL: srv.URL})
	ctx := context.Background()

	msg, err := auth.Register(ctx, api.RegisterRequest{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)

	_, err = auth.Register(ctx, api.RegisterRequest{Username: "bob", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, "Username is already taken.", api.ServerMessage(err))
}

func TestProblemAccess(t *testing.T) {
	s, srv, _ := newTestServer(t, 0)
	_, err := s.AddUser("root", "pw", "ADMIN")
	require.NoError(t, err)
	userToken, err := s.Token(DemoUsername)
	require.NoError(t, err)
	adminToken, err := s.Token("root")
	require.NoError(t, err)

	code, body := get(t, srv.URL+"/api/problem/1", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Missing or invalid Authorization header", body)

	code, _ = get(t, srv.URL+"/api/problem/1", "garbage")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get(t, srv.URL+"/api/problem/1", adminToken)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = get(t, srv.URL+"/api/problem/1", userToken)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"problem":`)

	code, _ = get(t, srv.URL+"/api/problem/99", userToken)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, srv.URL+"/api/code-template/1", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestExpiredToken(t *testing.T) {
	s, srv, clk := newTestServer(t, 0)
	token, err := s.Token(DemoUsername)
	require.NoError(t, err)

	clk.Advance(DefaultTokenTTL + time.Minute)
	code, body := get(t, srv.URL+"/api/problem/1", token)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid or expired token", body)
}

func TestProblemEndpointsThroughClient(t *testing.T) {
	s, srv, _ := newTestServer(t, 0)
	token, err := s.Token(DemoUsername)
	require.NoError(t, err)
	c := api.NewProblemClient(api.Options{BaseURL: srv.URL, Tokens: func() string { return token }})
	t.Cleanup(c.Close)
	ctx := context.Background()

	problems, err := c.Problems(ctx)
	require.NoError(t, err)
	require.Len(t, problems, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{problems[0].ID, problems[1].ID, problems[2].ID})

	ws, err := c.Workspace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Two Sum", ws.Problem.Title)
	assert.Len(t, ws.TestCases, 1)
	assert.Equal(t, []string{"go", "python"}, ws.Languages)

	cases, err := c.TestCases(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, cases, 2)

	_, err = c.TestCases(ctx, 3)
	assert.ErrorIs(t, err, api.ErrNotFound)
}
