package events

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type loginEvent struct{ user string }
type logoutEvent struct{}

func TestSubscribeEmit(t *testing.T) {
	got := make(chan string, 1)
	sub := Subscribe(func(evt loginEvent) { got <- evt.user })
	defer Unsubscribe(sub)

	var logouts atomic.Int32
	other := Subscribe(func(logoutEvent) { logouts.Add(1) })
	defer Unsubscribe(other)

	Emit(loginEvent{user: "alice"})
	select {
	case user := <-got:
		assert.Equal(t, "alice", user)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Zero(t, logouts.Load(), "subscribers of other event types are not called")
}

func TestUnsubscribe(t *testing.T) {
	var calls atomic.Int32
	sub := Subscribe(func(loginEvent) { calls.Add(1) })
	Unsubscribe(sub)
	Unsubscribe(sub)

	Emit(loginEvent{})
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestSubscribeOnce(t *testing.T) {
	var calls atomic.Int32
	SubscribeOnce(func(logoutEvent) { calls.Add(1) })

	Emit(logoutEvent{})
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	Emit(logoutEvent{})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
