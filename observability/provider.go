// Package observability provides a centralized provider for the logging and
// metrics components used throughout the download relay.
package observability

import (
	"fmt"
	"io"
	"os"
	"sync"

	"downloadrelay/observability/logger"
	"downloadrelay/observability/metrics"
	"downloadrelay/observability/types"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger is a type alias for the Logger interface from the types package.
type Logger = types.Logger

// Metrics is a type alias for the Metrics interface from the types package.
type Metrics = types.Metrics

// Fields is a type alias for structured logging fields.
type Fields = types.Fields

// Config is a type alias for the observability configuration.
type Config = types.Config

// Provider is a type alias for the Provider interface from the types package.
type Provider = types.Provider

// DefaultProvider implements the Provider interface.
// It lazily creates one Logger and one Metrics instance per component and
// hands out the same instance on every later call.
type DefaultProvider struct {
	config  *Config
	loggers map[string]*logger.ZapLogger
	metrics map[string]Metrics
	mu      sync.RWMutex
}

// NewProvider creates a new observability provider with the given configuration.
// LogOutput defaults to os.Stdout and Registerer to prometheus.DefaultRegisterer.
//
// Example:
//
//	provider := NewProvider(&Config{
//		ServiceName: "download-relay",
//		Environment: "production",
//		LogLevel:    "info",
//	})
//	log := provider.Logger("relay")
func NewProvider(config *Config) *DefaultProvider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]*logger.ZapLogger),
		metrics: make(map[string]Metrics),
	}
}

// Logger returns the Logger for component.
// The logger carries a "component" field and the service name
// "{ServiceName}.{component}".
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields, len(p.config.AdditionalFields)+1)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	l := logger.New(
		fmt.Sprintf("%s.%s", p.config.ServiceName, component),
		p.config.Environment,
		p.config.LogLevel,
		p.config.LogOutput,
		fields,
	)
	p.loggers[component] = l

	return l
}

// Metrics returns the Metrics collector for component, named
// "{ServiceName}_{component}" on the configured registerer.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, exists := p.metrics[component]; exists {
		return m
	}

	m := metrics.New(fmt.Sprintf("%s_%s", p.config.ServiceName, component), p.config.Registerer)
	p.metrics[component] = m

	return m
}

// Close flushes every logger and closes LogOutput if it is a closer other
// than os.Stdout or os.Stderr.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.loggers {
		// Sync on a terminal returns EINVAL on some platforms; ignore it.
		_ = l.Sync()
	}

	if closer, ok := p.config.LogOutput.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}

	return nil
}
