package user

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena/auth"
	"github.com/codearena/arena/events"
)

func alice() *auth.Result {
	return &auth.Result{Token: "t1", AccountID: 7, Username: "alice", Role: "USER"}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	r, err := s.Current()
	require.NoError(t, err)
	assert.Nil(t, r, "logged out initially")
	assert.False(t, LoggedIn(s))

	require.NoError(t, s.Save(alice()))

	token, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	require.NoError(t, err)
	assert.Equal(t, "t1", string(token))
	data, err := os.ReadFile(filepath.Join(dir, userDataFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"username":"alice","role":"USER"}`, string(data))

	// a second store over the same directory sees the saved account
	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	r, err = s2.Current()
	require.NoError(t, err)
	assert.Equal(t, alice(), r)
	assert.True(t, LoggedIn(s2))

	require.NoError(t, s.Clear())
	r, err = s.Current()
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoFileExists(t, filepath.Join(dir, tokenFileName))
	assert.NoFileExists(t, filepath.Join(dir, userDataFileName))

	require.NoError(t, s.Clear(), "clearing twice is fine")
}

func TestFileStoreTokenOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenFileName), []byte("t1\n"), 0o600))
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	r, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, &auth.Result{Token: "t1"}, r)
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Save(&auth.Result{Username: "alice"}), ErrNoToken)
	assert.ErrorIs(t, s.Save(nil), ErrNoToken)
	assert.ErrorIs(t, NewMemoryStore().Save(nil), ErrNoToken)
}

func TestExpiredTokenIsNotLoggedIn(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Save(&auth.Result{Token: token, Username: "alice"}))

	r, err := s.Current()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.ExpiresAt.IsZero())
	assert.False(t, LoggedIn(s))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	assert.False(t, LoggedIn(s))

	require.NoError(t, s.Save(alice()))
	r, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, alice(), r)

	r.Token = "mutated"
	r, _ = s.Current()
	assert.Equal(t, "t1", r.Token, "callers get a copy")

	require.NoError(t, s.Clear())
	r, err = s.Current()
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestChangeEvents(t *testing.T) {
	changes := make(chan ChangeEvent, 4)
	sub := events.Subscribe(func(evt ChangeEvent) { changes <- evt })
	t.Cleanup(func() { events.Unsubscribe(sub) })

	s := NewMemoryStore()
	require.NoError(t, s.Save(alice()))
	evt := receive(t, changes)
	assert.Nil(t, evt.Old)
	assert.Equal(t, "alice", evt.New.Username)

	require.NoError(t, s.Clear())
	evt = receive(t, changes)
	assert.Equal(t, "alice", evt.Old.Username)
	assert.Nil(t, evt.New)
}

func receive(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		require.FailNow(t, "no change event")
		return ChangeEvent{}
	}
}
