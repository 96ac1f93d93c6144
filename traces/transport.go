package traces

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// routes maps path prefixes whose last segment is an identifier to a template, so login
// sessions and problem ids do not end up in span names.
var routes = []struct{ prefix, template string }{
	{"/api/auth/login/result/", "/api/auth/login/result/{sessionId}"},
	{"/api/code-template/languages/", "/api/code-template/languages/{problemId}"},
	{"/api/code-template/", "/api/code-template/{problemId}"},
	{"/api/problem/", "/api/problem/{problemId}"},
	{"/api/test/", "/api/test/{problemId}"},
}

// NewRoundTripper wraps original with OpenTelemetry instrumentation. Nil wraps
// http.DefaultTransport.
func NewRoundTripper(original http.RoundTripper) http.RoundTripper {
	if original == nil {
		original = http.DefaultTransport
	}
	return otelhttp.NewTransport(original,
		otelhttp.WithClientTrace(httpTrace),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return spanName(r)
		}),
	)
}

func spanName(r *http.Request) string {
	path := r.URL.Path
	for _, rt := range routes {
		if rest, ok := strings.CutPrefix(path, rt.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			path = rt.template
			break
		}
	}
	return r.Method + " " + path
}

func httpTrace(ctx context.Context) *httptrace.ClientTrace {
	span := trace.SpanFromContext(ctx)
	return &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			span.SetAttributes(attribute.String("arena.backend", hostPort))
		},
		GotConn: func(info httptrace.GotConnInfo) {
			span.SetAttributes(attribute.Bool("conn_reused", info.Reused))
		},
		TLSHandshakeDone: func(cs tls.ConnectionState, err error) {
			if err != nil {
				RecordError(ctx, err)
				return
			}
			span.SetAttributes(attribute.Bool("handshake_complete", cs.HandshakeComplete))
		},
		DNSDone: func(di httptrace.DNSDoneInfo) {
			RecordError(ctx, di.Err)
		},
		ConnectDone: func(network, addr string, err error) {
			RecordError(ctx, err)
		},
	}
}
