package common

import "time"

const (
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultAPIURL is where the backend listens in a local development setup.
	DefaultAPIURL = "http://localhost:8081"
)
