package arena

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena/api"
	"github.com/codearena/arena/auth"
	"github.com/codearena/arena/config"
	"github.com/codearena/arena/internal/fakebackend"
	"github.com/codearena/arena/user"
)

type testEnv struct {
	client  *Client
	backend *fakebackend.Server
	dataDir string
}

func newTestClient(t *testing.T, delay time.Duration, opts ...func(*Options)) *testEnv {
	t.Helper()
	fb := fakebackend.New(fakebackend.Options{ResultDelay: delay})
	require.NoError(t, fakebackend.Seed(fb))
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.Poll.Interval = 10 * time.Millisecond

	dataDir := t.TempDir()
	o := Options{
		Config:  cfg,
		DataDir: dataDir,
		LogDir:  t.TempDir(),
		Locale:  "en-US",
	}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := NewClient(o)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return &testEnv{client: c, backend: fb, dataDir: filepath.Join(dataDir, "data")}
}

func demoCreds() auth.Credentials {
	return auth.Credentials{Username: fakebackend.DemoUsername, Password: fakebackend.DemoPassword}
}

func TestLoginPersistsCredential(t *testing.T) {
	env := newTestClient(t, 30*time.Millisecond)

	var (
		mu      sync.Mutex
		updates []auth.Update
	)
	done := make(chan struct{})
	env.client.Login(demoCreds(), func(u auth.Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
		if u.Terminal() {
			// the credential is stored before the success update arrives
			r, err := env.client.CurrentUser()
			assert.NoError(t, err)
			assert.NotNil(t, r)
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "login did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(updates), 2)
	for _, u := range updates[:len(updates)-1] {
		assert.Equal(t, auth.StatusPending, u.Status)
	}
	last := updates[len(updates)-1]
	require.Equal(t, auth.StatusSuccess, last.Status)
	assert.NoError(t, last.Err)
	assert.Equal(t, fakebackend.DemoUsername, last.Result.Username)
	assert.EqualValues(t, 1, last.Result.AccountID)
	assert.Equal(t, "USER", last.Result.Role)
	assert.False(t, last.Result.ExpiresAt.IsZero())

	token, err := os.ReadFile(filepath.Join(env.dataDir, "token"))
	require.NoError(t, err)
	assert.Equal(t, last.Result.Token, string(token))
	assert.True(t, env.client.LoggedIn())
	assert.Equal(t, auth.StateSucceeded, env.client.LoginState())
}

func TestLoginAndWait(t *testing.T) {
	env := newTestClient(t, 0)
	ctx := context.Background()

	_, err := env.client.LoginAndWait(ctx, auth.Credentials{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrServerFailure)
	assert.False(t, env.client.LoggedIn())

	r, err := env.client.LoginAndWait(ctx, demoCreds())
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Username)
	assert.True(t, env.client.LoggedIn())

	require.NoError(t, env.client.Logout())
	assert.False(t, env.client.LoggedIn())
}

func TestLoginAndWaitCanceled(t *testing.T) {
	env := newTestClient(t, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := env.client.LoginAndWait(ctx, demoCreds())
	assert.ErrorIs(t, err, auth.ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, env.client.LoggedIn())
}

func TestWorkspaceAfterLogin(t *testing.T) {
	env := newTestClient(t, 0)
	ctx := context.Background()

	_, err := env.client.Problem(ctx, 1)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = env.client.LoginAndWait(ctx, demoCreds())
	require.NoError(t, err)

	problems, err := env.client.Problems(ctx)
	require.NoError(t, err)
	assert.Len(t, problems, 3)

	ws, err := env.client.Workspace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Two Sum", ws.Problem.Title)
	assert.Equal(t, []string{"go", "python"}, ws.Languages)
}

func TestUnauthorizedClearsStore(t *testing.T) {
	env := newTestClient(t, 0)
	ctx := context.Background()
	require.NoError(t, env.client.store.Save(&auth.Result{Token: "forged", Username: "mallory"}))
	assert.True(t, env.client.LoggedIn())

	_, err := env.client.Problem(ctx, 1)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	r, err := env.client.CurrentUser()
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoFileExists(t, filepath.Join(env.dataDir, "token"))
}

// unreadableStore fails every read, as a corrupt credential file would.
type unreadableStore struct {
	*user.MemoryStore
	cleared atomic.Int32
}

func (s *unreadableStore) Current() (*auth.Result, error) {
	return nil, errors.New("token file is corrupt")
}

func (s *unreadableStore) Clear() error {
	s.cleared.Add(1)
	return s.MemoryStore.Clear()
}

func TestUnauthorizedClearsUnreadableStore(t *testing.T) {
	store := &unreadableStore{MemoryStore: user.NewMemoryStore()}
	env := newTestClient(t, 0, func(o *Options) { o.Store = store })

	_, err := env.client.Problem(context.Background(), 1)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.EqualValues(t, 1, store.cleared.Load())
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestClient(t, 0)
	ctx := context.Background()

	msg, err := env.client.Register(ctx, api.RegisterRequest{Username: "bob", Password: "hunter2", Email: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)

	r, err := env.client.LoginAndWait(ctx, auth.Credentials{Username: "bob", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "bob", r.Username)
}
