// Package env reads arena overrides from a local .env file and the process environment.
package env

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Key = string

const (
	APIURL       Key = "ARENA_API_URL"
	LogLevel     Key = "ARENA_LOG_LEVEL"
	LogPath      Key = "ARENA_LOG_PATH"
	DataPath     Key = "ARENA_DATA_PATH"
	PollInterval Key = "ARENA_POLL_INTERVAL"
	SentryDSN    Key = "ARENA_SENTRY_DSN"
)

var keys = []Key{APIURL, LogLevel, LogPath, DataPath, PollInterval, SentryDSN}

var (
	envVars   = map[string]string{}
	envVarsMu sync.RWMutex
)

func init() {
	Load(".env")
}

// Load reads the dotenv file at path, if any, and then the process environment. Values from the
// environment override values from the file.
func Load(path string) {
	vars := map[string]string{}
	buf, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error(".env file found, but failed to read", slog.Any("error", err))
	} else if err == nil {
		for line := range strings.SplitSeq(string(buf), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			vars[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}

	for _, key := range keys {
		if value, exists := os.LookupEnv(key); exists {
			vars[key] = value
		}
	}

	envVarsMu.Lock()
	envVars = vars
	envVarsMu.Unlock()
}

// Get returns the value of key converted to T. Supported types are string, bool, int and
// time.Duration. The second result is false if the key is unset or cannot be converted.
func Get[T any](key Key) (T, bool) {
	envVarsMu.RLock()
	raw, exists := envVars[key]
	envVarsMu.RUnlock()

	var zero T
	if !exists {
		return zero, false
	}
	var v any
	switch any(zero).(type) {
	case string:
		v = raw
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, false
		}
		v = b
	case int:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return zero, false
		}
		v = i
	case time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return zero, false
		}
		v = d
	default:
		return zero, false
	}
	return v.(T), true
}
