// Package app holds build-level identifiers of the arena client.
package app

import "runtime"

const (
	Name = "arena"

	// Sent to the backend on every request.
	ClientVersion = "0.3.0"
	Version       = "0.3.0"

	Platform = runtime.GOOS

	// filenames
	LogFileName    = "arena.log"
	ConfigFileName = "arena.yaml"
)
