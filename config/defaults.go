package config

import "time"

// Browser impersonation defaults sent to upstream hosts.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultAcceptEncoding = "gzip, deflate, br"
)

// DefaultBrowserHeaders returns a fresh copy of the desktop browser header set.
func DefaultBrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                DefaultUserAgent,
		"Accept":                    DefaultAccept,
		"Accept-Language":           DefaultAcceptLanguage,
		"Accept-Encoding":           DefaultAcceptEncoding,
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}
}

// DefaultHTTPConfig returns sensible defaults for the HTTP server
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:              ":8080",
		MetricsPath:       "/metrics",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// DefaultHandlerConfig returns sensible defaults for handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Timeout:       0,
		EnableHealth:  true,
		EnableMetrics: true,
		EnableTracing: true,
		Platform:      "", // Auto-detect
	}
}

// DefaultRelayConfig returns the upstream fetch policy of the relay
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		FetchTimeout:    30 * time.Second,
		MaxRedirects:    5,
		DefaultFilename: "download",
		DefaultType:     "video",
		BrowserHeaders:  DefaultBrowserHeaders(),
	}
}

// DefaultLambdaConfig returns sensible defaults for Lambda configuration
func DefaultLambdaConfig() LambdaConfig {
	return LambdaConfig{
		MaxResponseBytes: 0,
	}
}

// DefaultConfig returns a complete configuration with sensible defaults.
// Useful for tests or as a base to override specific parts.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		ServiceName: "download-relay",
		LogLevel:    "info",
		Version:     "1.0.0",

		HTTP:    DefaultHTTPConfig(),
		Handler: DefaultHandlerConfig(),
		Relay:   DefaultRelayConfig(),
		Lambda:  DefaultLambdaConfig(),
	}
}
