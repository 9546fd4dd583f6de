package network

import (
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

// Job states reported by the status endpoint. Only completed and failed are
// terminal.
const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// SubmitParams ...
type SubmitParams struct {
	APIBaseURL string
	Token      string
	// PDFURL is the conversion source: a public URL or a cache:// locator
	// produced by Upload.
	PDFURL            string
	Format            string
	Model             string
	IncludesFootnotes bool
	IgnorePDFErrors   bool
	IgnoreOCRErrors   bool
}

// Submit creates a conversion job for a remote source and returns the
// session ID identifying it.
func Submit(params SubmitParams, logger log.Logger) (string, error) {
	if params.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL is empty")
	}
	if params.PDFURL == "" {
		return "", fmt.Errorf("source URL is empty")
	}

	client := newAPIClient(retryhttp.NewClient(logger), params.APIBaseURL, params.Token, logger)

	sessionID, err := client.submitConversion(params.Format, submitRequest{
		PDFURL:            params.PDFURL,
		Model:             params.Model,
		IncludesFootnotes: params.IncludesFootnotes,
		IgnorePDFErrors:   params.IgnorePDFErrors,
		IgnoreOCRErrors:   params.IgnoreOCRErrors,
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit conversion: %w", err)
	}

	logger.Debugf("Conversion submitted, session ID: %s", sessionID)
	return sessionID, nil
}

// StatusParams ...
type StatusParams struct {
	APIBaseURL string
	Token      string
	Format     string
	SessionID  string
}

// JobStatus is a single observation of a conversion job.
type JobStatus struct {
	State       string
	DownloadURL string
	Reason      string
}

// StatusFunc queries the current state of a job. One call issues exactly one
// status request; callers poll it as needed.
type StatusFunc func() (JobStatus, error)

// NewStatusFetcher returns a StatusFunc for one job. The underlying HTTP
// client is reused across calls.
func NewStatusFetcher(params StatusParams, logger log.Logger) StatusFunc {
	client := newAPIClient(retryhttp.NewClient(logger), params.APIBaseURL, params.Token, logger)

	return func() (JobStatus, error) {
		result, err := client.conversionResult(params.Format, params.SessionID)
		if err != nil {
			return JobStatus{}, fmt.Errorf("failed to get conversion result: %w", err)
		}

		status := JobStatus{State: result.State, Reason: result.Error}
		if result.Data != nil {
			status.DownloadURL = result.Data.DownloadURL
		}
		return status, nil
	}
}
