package partuploader

import (
	"net/http"
	"time"
)

// Config holds configuration for the part uploader.
type Config struct {
	// HTTPClient is the HTTP client used for raw part transfers.
	// If nil, a default tuned client is created. Parts are never retried
	// here, so this must not be a retrying client.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HTTPClient: nil, // Will be created by Uploader
	}
}

// DefaultHTTPClient creates an HTTP client tuned for part transfers.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No overall timeout - uploads of large parts can legitimately take long,
		// cancellation happens via request context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxConnsPerHost:     4,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
