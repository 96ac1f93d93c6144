// Package settings persists small local preferences (device ID, locale, paths) in a JSON file
// shared by every arena process on the machine.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/codearena/arena/common/atomicfile"
	"github.com/codearena/arena/internal"
)

// Keys for various settings.
const (
	LocaleKey    = "locale"
	DeviceIDKey  = "device_id"
	DataPathKey  = "data_path"
	LogPathKey   = "log_path"
	LogLevelKey  = "log_level"
	APIURLKey    = "api_url"
	LastLoginKey = "last_login"
	filePathKey  = "file_path"

	settingsFileName = "local.json"
	defaultLocale    = "en-US"
)

type settings struct {
	mu          sync.RWMutex
	k           *koanf.Koanf
	parser      koanf.Parser
	readOnly    atomic.Bool
	initialized atomic.Bool
	watcher     *internal.FileWatcher
}

var k = &settings{
	k:      koanf.New("."),
	parser: json.Parser(),
}

var ErrReadOnly = errors.New("read-only")

// InitSettings loads the settings file from dataDir, creating it with defaults on first run.
func InitSettings(dataDir string) error {
	if k.initialized.Swap(true) {
		return nil
	}
	if err := initialize(dataDir); err != nil {
		k.initialized.Store(false)
		return fmt.Errorf("initializing settings: %w", err)
	}
	return nil
}

func initialize(dataDir string) error {
	k.mu.Lock()
	k.k = koanf.New(".")
	k.mu.Unlock()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	filePath := filepath.Join(dataDir, settingsFileName)
	raw, err := atomicfile.ReadFile(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := setDefaults(filePath); err != nil {
			return fmt.Errorf("error setting defaults: %w", err)
		}
	case err != nil:
		return fmt.Errorf("error loading settings file: %w", err)
	default:
		k.mu.Lock()
		err = k.k.Load(rawbytes.Provider(raw), k.parser)
		k.mu.Unlock()
		if err != nil {
			return fmt.Errorf("error parsing settings file: %w", err)
		}
		// the file may have been copied from another location
		if err := set(filePathKey, filePath); err != nil {
			return err
		}
	}
	return Set(DataPathKey, dataDir)
}

func setDefaults(filePath string) error {
	// the file path has to be set first, save reads it
	if err := set(filePathKey, filePath); err != nil {
		return fmt.Errorf("failed to set file path: %w", err)
	}
	if err := set(LocaleKey, defaultLocale); err != nil {
		return fmt.Errorf("failed to set default locale: %w", err)
	}
	return save()
}

// InitReadOnly loads the settings file from fileDir without ever writing to it. If watchFile is
// true, the file is reloaded whenever another process rewrites it.
func InitReadOnly(fileDir string, watchFile bool) (err error) {
	if k.initialized.Swap(true) {
		return nil
	}
	defer func() {
		if err != nil {
			k.initialized.Store(false)
		}
	}()
	k.readOnly.Store(true)
	path := filepath.Join(fileDir, settingsFileName)
	if err := reloadSettings(path); err != nil {
		return fmt.Errorf("initializing read-only settings: %w", err)
	}
	if watchFile {
		watcher := internal.NewFileWatcher(path, func() {
			if err := reloadSettings(path); err != nil {
				slog.Error("reloading settings file", "error", err)
			}
		})
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("starting settings file watcher: %w", err)
		}
		k.watcher = watcher
	}
	return nil
}

func reloadSettings(path string) error {
	contents, err := atomicfile.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading settings (read-only): %w", err)
	}
	kk := koanf.New(".")
	if err := kk.Load(rawbytes.Provider(contents), k.parser); err != nil {
		return fmt.Errorf("parsing settings: %w", err)
	}
	k.mu.Lock()
	k.k = kk
	k.mu.Unlock()
	return nil
}

// StopWatching stops watching the settings file. Only relevant in read-only mode.
func StopWatching() {
	if k.initialized.Load() && k.watcher != nil {
		k.watcher.Close()
	}
}

// Close stops watching and forgets the loaded settings so they can be initialized again.
func Close() {
	StopWatching()
	k.mu.Lock()
	k.k = koanf.New(".")
	k.watcher = nil
	k.mu.Unlock()
	k.readOnly.Store(false)
	k.initialized.Store(false)
}

func Get(key string) any {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k.Get(key)
}

func GetString(key string) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k.String(key)
}

func GetBool(key string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k.Bool(key)
}

func GetInt64(key string) int64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k.Int64(key)
}

func GetDuration(key string) time.Duration {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k.Duration(key)
}

func GetStruct(key string, out any) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k.Unmarshal(key, out)
}

// Set stores value under key and persists the settings file.
func Set(key string, value any) error {
	if err := set(key, value); err != nil {
		return err
	}
	return save()
}

func set(key string, value any) error {
	if k.readOnly.Load() {
		return ErrReadOnly
	}
	k.mu.Lock()
	err := k.k.Set(key, value)
	k.mu.Unlock()
	if err != nil {
		return fmt.Errorf("could not set key %s: %w", key, err)
	}
	return nil
}

func save() error {
	if k.readOnly.Load() {
		return ErrReadOnly
	}
	path := GetString(filePathKey)
	if path == "" {
		return errors.New("settings file path is not set")
	}
	k.mu.RLock()
	out, err := k.k.Marshal(k.parser)
	k.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("could not marshal settings: %w", err)
	}
	if err := atomicfile.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("could not write settings file: %w", err)
	}
	return nil
}
