// Package api talks to the arena backend over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/codearena/arena/backend"
	"github.com/codearena/arena/common"
	"github.com/codearena/arena/traces"
)

const tracerName = "github.com/codearena/arena/api"

// Options configure the backend clients.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Identity backend.Identity
	// Tokens supplies the bearer token for protected endpoints.
	Tokens TokenSource
	// OnUnauthorized is called whenever the backend answers 401.
	OnUnauthorized func()
	// MaxRetries bounds retries of idempotent requests. Zero uses the default.
	MaxRetries int
	// RetryWait is the minimum wait between retries. Zero uses the default.
	RetryWait time.Duration
	// Transport overrides the base round tripper, mostly for tests.
	Transport http.RoundTripper
}

func (o Options) baseURL() string {
	if o.BaseURL == "" {
		return common.DefaultAPIURL
	}
	return o.BaseURL
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return common.DefaultHTTPTimeout
	}
	return o.Timeout
}

func (o Options) transport() http.RoundTripper {
	rt := o.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return traces.NewRoundTripper(rt)
}
