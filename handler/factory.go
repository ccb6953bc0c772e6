package handler

import (
	"os"

	"downloadrelay/config"
	"downloadrelay/observability"
)

// Platform names understood by the Factory.
const (
	PlatformHTTP   = "http"
	PlatformLambda = "lambda"
)

// Factory creates handlers with the standard middleware stack.
type Factory struct {
	worker     Worker
	provider   observability.Provider
	handlerCfg config.HandlerConfig
}

// NewFactory creates a new handler factory with default handler settings.
func NewFactory(worker Worker, provider observability.Provider) *Factory {
	return &Factory{
		worker:     worker,
		provider:   provider,
		handlerCfg: config.DefaultHandlerConfig(),
	}
}

// WithHandlerConfig sets custom handler configuration.
func (f *Factory) WithHandlerConfig(cfg config.HandlerConfig) *Factory {
	f.handlerCfg = cfg
	return f
}

// Create creates a handler for the configured platform, detecting it from
// the environment when unset or "auto".
func (f *Factory) Create() *Handler {
	if f.handlerCfg.Platform == "" || f.handlerCfg.Platform == "auto" {
		f.handlerCfg.Platform = DetectPlatform()
	}

	cfg := f.handlerCfg
	handler := NewHandler(f.worker, f.provider, &cfg)
	f.applyDefaultMiddleware(handler)

	return handler
}

// CreateHTTP creates a handler for the HTTP server.
func (f *Factory) CreateHTTP() *Handler {
	f.handlerCfg.Platform = PlatformHTTP
	return f.Create()
}

// CreateLambda creates a handler for AWS Lambda.
func (f *Factory) CreateLambda() *Handler {
	f.handlerCfg.Platform = PlatformLambda
	return f.Create()
}

func (f *Factory) applyDefaultMiddleware(handler *Handler) {
	// Recovery first so it catches panics from every other layer.
	handler.Use(RecoveryMiddleware(f.provider))

	if f.handlerCfg.EnableTracing {
		handler.Use(TracingMiddleware())
	}

	if f.handlerCfg.EnableMetrics {
		handler.Use(MetricsMiddleware(f.provider))
	}

	handler.Use(LoggingMiddleware(f.provider))
	handler.Use(ValidationMiddleware())
}

// DetectPlatform detects the runtime platform from the environment.
func DetectPlatform() string {
	if _, exists := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME"); exists {
		return PlatformLambda
	}

	if _, exists := os.LookupEnv("AWS_LAMBDA_RUNTIME_API"); exists {
		return PlatformLambda
	}

	return PlatformHTTP
}
