// cmd/example/main.go
//
// Example service wired with the tracing stack.
//
// Demonstrates:
//   - Automatic request tracing via the trace-all middleware
//   - Per-handler instrumentation with TraceHandler and traced attributes
//   - Outbound call propagation with stack.Client
//   - Trace-correlated logging
//   - Graceful shutdown with proper cleanup
//
// Environment variables required:
//   - APP_NAME: Service name (e.g., "example-api")
//   - APP_VERSION: Service version (e.g., "1.0.0")
//   - APP_ENV: Environment (development, staging, production)
//   - TRACING_ENABLED: Enable span export (true/false)
//   - TRACING_OTLP_ENDPOINT: OTLP collector endpoint (e.g., "localhost:4317")
//   - TRACING_TRACE_ALL_REQUESTS: Trace every request via middleware (true/false)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	logger "github.com/gath-stack/gologger"
	tracing "github.com/gath-stack/gotracing"
	"github.com/gath-stack/gotracing/internal/logs"
)

func main() {
	if err := logger.InitGlobal(logger.MustFromEnv()); err != nil {
		panic(err)
	}
	log := logger.Get()
	defer func() {
		if err := logger.Get().Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "logger sync error: %v\n", err)
		}
	}()

	stack, err := tracing.Init(log, nil)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := stack.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown tracing", zap.Error(err))
		}
	}()

	app := &application{log: log.Logger, stack: stack}

	server := &http.Server{
		Addr:         ":8080",
		Handler:      app.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Graceful shutdown failed", zap.Error(err))
			_ = server.Close()
		}
	}
}

type application struct {
	log   *zap.Logger
	stack *tracing.Stack
}

func (app *application) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(app.stack.Middleware())

	router.Get("/healthz", app.handleHealth)
	router.With(app.withUserAttribute, app.stack.TraceHandler("getUser", "user_id")).
		Get("/api/users/{id}", app.handleGetUser)
	router.Get("/api/proxy", app.handleProxy)

	return router
}

// withUserAttribute stashes the routed user id so the decorator tags it onto
// the span it starts.
func (app *application) withUserAttribute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(tracing.WithAttribute(r.Context(), "user_id", chi.URLParam(r, "id")))
		next.ServeHTTP(w, r)
	})
}

func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (app *application) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := logs.WithContext(r.Context(), app.log)

	log.Info("Fetching user", zap.String("user_id", id))

	if id == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"id":%q,"name":"user-%s"}`, id, id)
}

// handleProxy makes a downstream call carrying the current trace context.
func (app *application) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx, span := app.stack.Client.StartSpan(r.Context(), "GET upstream")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost:8080/healthz", nil)
	if err != nil {
		app.stack.Client.RecordError(span, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	app.stack.Client.Inject(ctx, req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		app.stack.Client.RecordError(span, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	app.stack.Client.RecordStatus(span, resp.StatusCode)

	w.WriteHeader(resp.StatusCode)
	_, _ = fmt.Fprintf(w, `{"upstream_status":%d}`, resp.StatusCode)
}
