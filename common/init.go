// Package common holds process-wide setup shared by the arena library and its commands:
// directories, the default logger and local settings.
package common

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/codearena/arena/app"
	"github.com/codearena/arena/common/env"
	"github.com/codearena/arena/common/settings"
	"github.com/codearena/arena/internal"
)

const defaultLogLevel = "info"

var (
	initMutex   sync.Mutex
	initialized bool
	logFile     io.Closer
)

// Init creates the data and log directories, loads local settings and installs the default
// logger. console receives a copy of every log line; nil means file only. Subsequent calls are
// no-ops until Close.
func Init(dataDir, logDir, logLevel string, console io.Writer) error {
	initMutex.Lock()
	defer initMutex.Unlock()
	if initialized {
		return nil
	}

	if d, ok := env.Get[string](env.DataPath); ok && dataDir == "" {
		dataDir = d
	}
	if d, ok := env.Get[string](env.LogPath); ok && logDir == "" {
		logDir = d
	}
	dataDir, logDir, err := SetupDirectories(dataDir, logDir)
	if err != nil {
		return fmt.Errorf("failed to setup directories: %w", err)
	}
	if err := settings.InitSettings(dataDir); err != nil {
		return fmt.Errorf("initialize settings: %w", err)
	}
	if err := settings.Set(settings.LogPathKey, logDir); err != nil {
		slog.Warn("Failed to persist log path", "error", err)
	}

	if err := initLogger(filepath.Join(logDir, app.LogFileName), logLevel, console); err != nil {
		return fmt.Errorf("initialize log: %w", err)
	}
	initialized = true
	return nil
}

// initLogger replaces the default slog.Logger. The level comes from ARENA_LOG_LEVEL when set and
// valid, then from level, then defaults to info.
func initLogger(logPath, level string, console io.Writer) error {
	lvl, err := internal.ParseLogLevel(defaultLogLevel)
	if err != nil {
		return err
	}
	if envLvl, ok := env.Get[string](env.LogLevel); ok {
		level = envLvl
	}
	if level != "" {
		if parsed, err := internal.ParseLogLevel(level); err != nil {
			slog.Warn("Failed to parse log level", "level", level, "error", err)
		} else {
			lvl = parsed
		}
	}

	f := internal.NewLogFile(logPath, internal.LogFileOptions{})
	var w io.Writer = f
	if console != nil {
		w = io.MultiWriter(console, f)
	}
	logFile = f
	slog.SetDefault(internal.NewLogger(w, lvl))
	return nil
}

// Close flushes and closes the log file, unloads settings and allows Init to run again.
func Close() error {
	initMutex.Lock()
	defer initMutex.Unlock()
	initialized = false
	settings.Close()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
