package network

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSourceNotFound is returned when the local source file does not exist or
// is not a regular file. It is detected before any network call.
var ErrSourceNotFound = errors.New("source file not found")

// APIError is a non-success response from the service API. It is surfaced
// immediately and never retried by this package beyond the transport-level
// retries of the HTTP client.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return &APIError{StatusCode: resp.StatusCode, Body: string(errorResp)}
}
