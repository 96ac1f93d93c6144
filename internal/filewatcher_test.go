package internal

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.json")
	var calls atomic.Int32
	fw := NewFileWatcher(path, func() { calls.Add(1) })
	fw.settleDelay = 20 * time.Millisecond
	require.NoError(t, fw.Start())
	t.Cleanup(func() { fw.Close() })

	// writes to other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())

	for range 3 {
		require.NoError(t, os.WriteFile(path, []byte(`{"locale":"en-US"}`), 0o644))
	}
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, fw.Close())
	require.NoError(t, fw.Close(), "second close is a no-op")
}
