package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettleDelay = 100 * time.Millisecond

// FileWatcher invokes a callback after a file has been written or replaced. Bursts of events are
// collapsed into one callback once the file has been quiet for the settle delay.
type FileWatcher struct {
	watcher     *fsnotify.Watcher
	dir         string
	filename    string
	callback    func()
	settleDelay time.Duration

	closeC  chan struct{}
	started atomic.Bool

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewFileWatcher creates a watcher for path. The parent directory is watched so atomic
// rename-into-place writes are observed too.
func NewFileWatcher(path string, callback func()) *FileWatcher {
	return &FileWatcher{
		dir:         filepath.Dir(path),
		filename:    filepath.Base(path),
		callback:    callback,
		settleDelay: defaultSettleDelay,
	}
}

func (fw *FileWatcher) Start() error {
	if !fw.started.CompareAndSwap(false, true) {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fw.started.Store(false)
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := watcher.Add(fw.dir); err != nil {
		watcher.Close()
		fw.started.Store(false)
		return fmt.Errorf("watch %s: %w", fw.dir, err)
	}
	fw.watcher = watcher
	fw.closeC = make(chan struct{})
	slog.Debug("Watching file", "dir", fw.dir, "file", fw.filename)
	go fw.watchLoop(watcher.Events, watcher.Errors, fw.closeC)
	return nil
}

func (fw *FileWatcher) Close() error {
	if !fw.started.CompareAndSwap(true, false) {
		return nil
	}
	close(fw.closeC)
	fw.timerMu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
	fw.timerMu.Unlock()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(events <-chan fsnotify.Event, errs <-chan error, closeC <-chan struct{}) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fw.filename {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			fw.schedule()
		case err, ok := <-errs:
			if !ok {
				return
			}
			slog.Error("Error watching file", "file", fw.filename, "error", err)
		case <-closeC:
			return
		}
	}
}

// schedule arms or re-arms the settle timer.
func (fw *FileWatcher) schedule() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()
	if fw.timer != nil {
		fw.timer.Reset(fw.settleDelay)
		return
	}
	fw.timer = time.AfterFunc(fw.settleDelay, func() {
		fw.timerMu.Lock()
		fw.timer = nil
		fw.timerMu.Unlock()
		if fw.started.Load() {
			fw.callback()
		}
	})
}
