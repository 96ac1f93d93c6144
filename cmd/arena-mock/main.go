// Command arena-mock serves an in-memory arena backend seeded with demo data.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/codearena/arena/app"
	"github.com/codearena/arena/internal"
	"github.com/codearena/arena/internal/fakebackend"
)

type args struct {
	Addr      string        `arg:"--addr" default:"localhost:8081" help:"address to listen on"`
	Delay     time.Duration `arg:"--delay" default:"2s" help:"how long a queued login stays pending"`
	ResultTTL time.Duration `arg:"--result-ttl" default:"5m" help:"how long a login result stays available"`
	LogLevel  string        `arg:"--log-level" default:"info" help:"trace, debug, info, warn or error"`
}

func (args) Description() string {
	return "arena-mock serves the arena backend API from memory. Log in as " +
		fakebackend.DemoUsername + "/" + fakebackend.DemoPassword + "."
}

func (args) Version() string { return "arena-mock " + app.Version }

func main() {
	var a args
	arg.MustParse(&a)

	level, err := internal.ParseLogLevel(a.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	slog.SetDefault(internal.NewLogger(os.Stderr, level))

	backend := fakebackend.New(fakebackend.Options{ResultDelay: a.Delay, ResultTTL: a.ResultTTL})
	if err := fakebackend.Seed(backend); err != nil {
		log.Fatalf("Failed to seed backend: %v", err)
	}
	srv := &http.Server{
		Addr:              a.Addr,
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Serving mock backend", "addr", a.Addr, "delay", a.Delay)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for a signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Failed to shut down in time: %v", err)
	}
}
