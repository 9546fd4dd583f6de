// Package conversion is the high-level client surface for the PDF Craft
// document-conversion service: submit a conversion, upload local sources,
// wait for completion, manage batches.
package conversion

import (
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
)

// Default service endpoints. Every endpoint can be overridden per Config;
// there is no process-global state.
const (
	DefaultAPIBaseURL    = "https://fusion-api.oomol.com/v1"
	DefaultBatchBaseURL  = "https://pdf-server.oomol.com/api/v1/conversion"
	DefaultUploadBaseURL = "https://llm.oomol.com/api/tasks/files/remote-cache"
)

// Environment variables read by ConfigFromEnv.
const (
	apiKeyEnvVar        = "PDFCRAFT_API_KEY"
	apiBaseURLEnvVar    = "PDFCRAFT_API_BASE_URL"
	batchBaseURLEnvVar  = "PDFCRAFT_BATCH_BASE_URL"
	uploadBaseURLEnvVar = "PDFCRAFT_UPLOAD_BASE_URL"
)

// Secret is a string value that must not show up in logs. Printing it with
// any fmt verb yields a redaction marker.
type Secret string

const secret = "*****"

// String implements fmt.Stringer.
func (s Secret) String() string {
	return secret
}

// GoString implements fmt.GoStringer, to redact %#v output too.
func (s Secret) GoString() string {
	return secret
}

// Config is the immutable client configuration. Construct it with NewConfig
// or ConfigFromEnv and pass it to constructors; the zero value is not valid.
type Config struct {
	// APIBaseURL serves conversion submit/result endpoints.
	APIBaseURL string
	// BatchBaseURL serves the batch-management endpoints.
	BatchBaseURL string
	// UploadBaseURL serves the remote-cache upload session endpoints.
	UploadBaseURL string
	// AccessToken authenticates every request as a bearer token.
	AccessToken Secret
}

// NewConfig returns a Config pointing at the hosted service.
func NewConfig(accessToken Secret) Config {
	return Config{
		APIBaseURL:    DefaultAPIBaseURL,
		BatchBaseURL:  DefaultBatchBaseURL,
		UploadBaseURL: DefaultUploadBaseURL,
		AccessToken:   accessToken,
	}
}

// ConfigFromEnv builds a Config from PDFCRAFT_* environment variables.
// PDFCRAFT_API_KEY is required; base URLs fall back to the hosted service.
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	accessToken := envRepo.Get(apiKeyEnvVar)
	if accessToken == "" {
		return Config{}, fmt.Errorf("the secret '%s' is not defined", apiKeyEnvVar)
	}

	config := NewConfig(Secret(accessToken))
	if baseURL := envRepo.Get(apiBaseURLEnvVar); baseURL != "" {
		config.APIBaseURL = baseURL
	}
	if baseURL := envRepo.Get(batchBaseURLEnvVar); baseURL != "" {
		config.BatchBaseURL = baseURL
	}
	if baseURL := envRepo.Get(uploadBaseURLEnvVar); baseURL != "" {
		config.UploadBaseURL = baseURL
	}
	return config.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.BatchBaseURL == "" {
		c.BatchBaseURL = DefaultBatchBaseURL
	}
	if c.UploadBaseURL == "" {
		c.UploadBaseURL = DefaultUploadBaseURL
	}
	c.APIBaseURL = strings.TrimSuffix(c.APIBaseURL, "/")
	c.BatchBaseURL = strings.TrimSuffix(c.BatchBaseURL, "/")
	c.UploadBaseURL = strings.TrimSuffix(c.UploadBaseURL, "/")
	return c
}
