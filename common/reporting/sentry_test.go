package reporting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWithoutDSN(t *testing.T) {
	Init("", "test")
	assert.False(t, Enabled())
	// no-op while disabled
	CaptureError(errors.New("boom"))
}

func TestRecoverRepanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer Recover()
		panic("boom")
	})
}
