package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/codearena/arena/app"
)

var (
	dataPath atomic.Value
	logPath  atomic.Value
)

// ensure dataPath and logPath are of type string
func init() {
	dataPath.Store("")
	logPath.Store("")
}

// SetupDirectories creates the data and log directories, defaulting to <user config dir>/arena.
func SetupDirectories(data, logs string) (dataDir, logDir string, err error) {
	dataDir, logDir = data, logs
	if dataDir == "" || logDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", "", fmt.Errorf("resolving user config dir: %w", err)
		}
		base = filepath.Join(base, app.Name)
		if dataDir == "" {
			dataDir = base
		}
		if logDir == "" {
			logDir = base
		}
	}
	dataDir = maybeAddSuffix(dataDir, "data")
	logDir = maybeAddSuffix(logDir, "logs")
	for _, path := range []string{dataDir, logDir} {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	dataPath.Store(dataDir)
	logPath.Store(logDir)
	return dataDir, logDir, nil
}

func maybeAddSuffix(path, suffix string) string {
	if filepath.Base(path) != suffix {
		path = filepath.Join(path, suffix)
	}
	return path
}

func DataPath() string {
	return dataPath.Load().(string)
}

func LogPath() string {
	return logPath.Load().(string)
}
