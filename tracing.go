// Package tracing provides production-ready distributed tracing for Go HTTP
// services.
//
// This package offers unified initialization of an OpenTelemetry tracer
// provider with OTLP export, a request-scoped span tracker with middleware
// and per-handler decorator forms, context propagation for outbound calls,
// and optional request-path metrics. Configuration is strictly
// environment-based for production safety.
//
// # Features
//
//   - Zero-configuration setup with Init()
//   - Environment-only configuration with strict validation
//   - Span per handled request, with nested handler spans parented correctly
//   - Inbound trace context extraction with root-span fallback
//   - Trace-all middleware mode with automatic decorator suppression
//   - Graceful shutdown with proper cleanup
//
// # Quick Start
//
//	import "github.com/gath-stack/gotracing"
//
//	func main() {
//	    log := logger.Get()
//
//	    stack, err := tracing.Init(log, nil)
//	    if err != nil {
//	        log.Fatal("failed to init tracing", zap.Error(err))
//	    }
//	    defer func() {
//	        if err := stack.Shutdown(context.Background()); err != nil {
//	            log.Error("failed to shutdown tracing", zap.Error(err))
//	        }
//	    }()
//
//	    router := chi.NewRouter()
//	    router.Use(stack.Middleware())
//	    router.Get("/api/users/{id}", handler)
//	}
//
// # Environment Variables
//
// Required environment variables:
//   - APP_NAME: Service name
//   - APP_VERSION: Service version
//   - APP_ENV: Environment (development, staging, production)
//   - TRACING_OTLP_ENDPOINT: OTLP collector endpoint (if features enabled)
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gath-stack/gotracing/internal/config"
	"github.com/gath-stack/gotracing/internal/metrics"
	"github.com/gath-stack/gotracing/internal/tracker"
	ctrace "github.com/gath-stack/gotracing/internal/tracing"
)

// Logger is the interface for logging operations used throughout the tracing
// stack. It is compatible with zap.Logger and other structured logging
// packages that follow the same field-based logging pattern.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// StartSpanCallback is invoked with every span the stack starts and the
// request being handled. Failures inside the callback are logged and
// swallowed; they never affect the request.
type StartSpanCallback func(span trace.Span, r *http.Request)

// InitOptions configures optional behaviors during stack initialization.
type InitOptions struct {
	// TracerProvider overrides the environment-built provider. When set, no
	// exporter is constructed and the provider is not installed globally;
	// the caller owns its lifecycle.
	TracerProvider trace.TracerProvider

	// StartSpanCallback, when non-nil, runs for every started span.
	StartSpanCallback StartSpanCallback

	// TraceAllRequests overrides the TRACING_TRACE_ALL_REQUESTS setting.
	TraceAllRequests *bool

	// DisableSystemMetrics prevents host metrics collection if true.
	// Useful in containerized environments where host metrics are not
	// meaningful or accessible.
	DisableSystemMetrics bool

	// SystemDiskPath specifies the disk path monitored for disk metrics.
	// Defaults to "/".
	SystemDiskPath string
}

// Stack is a fully initialized tracing stack.
//
// The Stack must be shut down using Shutdown() to ensure buffered spans and
// metrics are flushed.
type Stack struct {
	cfg      config.Config
	log      Logger
	tracker  *tracker.Tracker
	traceAll bool

	cleanupFuncs []func(context.Context) error

	// Client traces outbound calls made while handling a request and
	// injects trace context into their headers.
	Client *ctrace.ClientTracing

	// HTTP provides request-path metrics, recorded by Middleware.
	// Nil when metrics are disabled.
	HTTP *metrics.HTTPMetrics

	// Runtime provides automatic Go runtime metrics.
	// Nil when metrics are disabled.
	Runtime *metrics.RuntimeMetrics

	// System provides host-level metrics.
	// Nil when metrics are disabled or DisableSystemMetrics is set.
	System *metrics.SystemMetrics
}

// Init initializes the complete tracing stack.
//
// It loads configuration from environment variables, builds and installs the
// tracer provider (exactly once per process), initializes metrics when
// enabled, and returns a ready-to-use Stack.
//
// Init will return an error if:
//   - Required environment variables are missing
//   - Exporter construction fails
//   - Metrics initialization fails
func Init(log Logger, opts *InitOptions) (*Stack, error) {
	if opts == nil {
		opts = &InitOptions{}
	}
	if opts.SystemDiskPath == "" {
		opts.SystemDiskPath = "/"
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Info("Initializing tracing stack",
		zap.Strings("components", cfg.EnabledComponents()))

	s := &Stack{cfg: cfg, log: log}

	ctx := context.Background()

	provider, err := s.initTracerProvider(ctx, opts)
	if err != nil {
		return nil, err
	}

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)

	tracer := provider.Tracer("gotracing/http")
	s.tracker = tracker.New(tracer, propagator, tracker.StartSpanCallback(opts.StartSpanCallback), log)
	s.Client = ctrace.NewClientTracing(tracer, propagator)

	s.traceAll = cfg.TraceAllRequests
	if opts.TraceAllRequests != nil {
		s.traceAll = *opts.TraceAllRequests
	}

	if cfg.MetricsEnabled {
		if err := s.initMetrics(ctx, opts); err != nil {
			if shutdownErr := s.Shutdown(ctx); shutdownErr != nil {
				log.Error("failed to shutdown tracing after initialization error",
					zap.Error(shutdownErr))
			}
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	log.Info("Tracing stack initialized successfully",
		zap.Bool("tracing", cfg.TracingEnabled),
		zap.Bool("metrics", cfg.MetricsEnabled),
		zap.Bool("trace_all_requests", s.traceAll),
		zap.Float64("sampling_rate", cfg.SamplingRate))

	return s, nil
}

// MustInit is like Init but panics if initialization fails.
func MustInit(log Logger, opts *InitOptions) *Stack {
	s, err := Init(log, opts)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize tracing stack: %v", err))
	}
	return s
}

// Span returns the outermost active span for the request: the one opened by
// the first instrumentation layer that saw it. Returns nil when the request
// is not being traced.
func (s *Stack) Span(r *http.Request) trace.Span {
	return s.tracker.Span(r)
}

// Config returns the loaded stack configuration.
func (s *Stack) Config() config.Config {
	return s.cfg
}

// Shutdown performs graceful shutdown of the tracing stack, flushing
// buffered spans and metrics. It should be called during application
// shutdown, typically in a defer statement. The provided context bounds the
// shutdown; cleanup continues for remaining components even when one fails.
func (s *Stack) Shutdown(ctx context.Context) error {
	if len(s.cleanupFuncs) == 0 {
		s.log.Debug("No cleanup functions registered")
		return nil
	}

	s.log.Info("Shutting down tracing stack",
		zap.Int("components", len(s.cleanupFuncs)))

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error
	for _, cleanup := range s.cleanupFuncs {
		if err := cleanup(shutdownCtx); err != nil {
			s.log.Error("Failed to shutdown component", zap.Error(err))
			errs = append(errs, err)
		}
	}
	s.cleanupFuncs = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors: %v", len(errs), errs)
	}
	s.log.Info("Tracing stack shutdown complete")
	return nil
}

// WithAttribute returns a context carrying a named request attribute.
// Attribute names listed in TraceHandler resolve against this bag first,
// then against request headers.
func WithAttribute(ctx context.Context, name, value string) context.Context {
	return tracker.WithAttribute(ctx, name, value)
}

// initTracerProvider selects or builds the tracer provider.
//
// An explicit provider from options wins. Otherwise, when tracing is
// enabled, an OTLP-exporting SDK provider is built from configuration and
// installed as the process-wide default exactly once. When tracing is
// disabled the current global provider is used, which yields no-op spans
// unless the host application installed one.
func (s *Stack) initTracerProvider(ctx context.Context, opts *InitOptions) (trace.TracerProvider, error) {
	if opts.TracerProvider != nil {
		return opts.TracerProvider, nil
	}

	if !s.cfg.TracingEnabled {
		s.log.Debug("Tracing export disabled, using global tracer provider")
		return otel.GetTracerProvider(), nil
	}

	s.log.Debug("Initializing trace exporter",
		zap.String("endpoint", s.cfg.OTLPEndpoint),
		zap.Float64("sampling_rate", s.cfg.SamplingRate))

	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(s.cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := s.buildResource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(s.cfg.TraceBatchSize),
		),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(s.cfg.SamplingRate),
		)),
		sdktrace.WithResource(res),
	)

	if tracker.InstallGlobalTracerProvider(provider) {
		s.log.Debug("Installed global tracer provider")
	}

	s.cleanupFuncs = append(s.cleanupFuncs, func(ctx context.Context) error {
		s.log.Debug("Shutting down tracer provider")
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	})

	s.log.Info("Tracing initialized",
		zap.String("endpoint", s.cfg.OTLPEndpoint),
		zap.String("service", s.cfg.ServiceName))

	return provider, nil
}

// initMetrics initializes the OpenTelemetry metrics pipeline and the metric
// collectors recorded by the middleware.
func (s *Stack) initMetrics(ctx context.Context, opts *InitOptions) error {
	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(s.cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := s.buildResource(ctx)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(s.cfg.MetricExportIntervalSec)*time.Second),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	s.cleanupFuncs = append(s.cleanupFuncs, func(ctx context.Context) error {
		s.log.Debug("Shutting down meter provider")
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
		return nil
	})

	meter := provider.Meter(s.cfg.ServiceName)

	if s.HTTP, err = metrics.NewHTTPMetrics(meter); err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	if s.Runtime, err = metrics.NewRuntimeMetrics(meter); err != nil {
		return fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	s.log.Info("Runtime metrics initialized",
		zap.Int("goroutines", metrics.NumGoroutines()),
		zap.Float64("memory_mb", metrics.MemoryUsageMB()))

	if !opts.DisableSystemMetrics {
		s.System, err = metrics.NewSystemMetrics(meter, metrics.SystemMetricsConfig{
			DiskPath: opts.SystemDiskPath,
		})
		if err != nil {
			return fmt.Errorf("failed to create system metrics: %w", err)
		}
		s.log.Info("System metrics initialized",
			zap.String("disk_path", opts.SystemDiskPath))
	} else {
		s.log.Info("System metrics disabled")
	}

	return nil
}

func (s *Stack) buildResource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.cfg.ServiceName),
			semconv.ServiceVersion(s.cfg.ServiceVersion),
			semconv.DeploymentEnvironment(s.cfg.Environment),
			semconv.HostName(s.cfg.HostName),
		),
		resource.WithAttributes(
			attribute.String("deployment.id", s.cfg.DeploymentID),
		),
	)
}
