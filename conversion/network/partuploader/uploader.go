package partuploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// PartError reports a failed transfer of a single part. Any part failure
// aborts the whole upload; sessions cannot be resumed.
type PartError struct {
	Part       int
	StatusCode int
	Body       string
	Err        error
}

func (e *PartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload part %d: %v", e.Part, e.Err)
	}
	return fmt.Sprintf("upload part %d: HTTP %d: %s", e.Part, e.StatusCode, e.Body)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// Uploader transfers parts one at a time, in order.
type Uploader struct {
	config     Config
	httpClient *http.Client
	logger     log.Logger
	stats      *Stats
}

// New creates a new Uploader with the given configuration.
func New(config Config, logger log.Logger) *Uploader {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}

	return &Uploader{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		stats:      NewStats(),
	}
}

// Upload transfers every part from the provider to targets obtained from
// urls, strictly sequentially: part N is only attempted once part N-1 has
// been acknowledged. After each acknowledged part onProgress (if non-nil)
// receives a fresh snapshot; its error aborts the upload. Returns the number
// of bytes uploaded.
//
// A session with zero parts completes immediately and still emits one
// progress snapshot.
func (u *Uploader) Upload(ctx context.Context, provider PartProvider, urls URLSource, onProgress ProgressFunc) (int64, error) {
	numParts := provider.NumParts()

	var totalBytes int64
	for i := 0; i < numParts; i++ {
		totalBytes += provider.PartSize(i)
	}

	if numParts == 0 {
		if onProgress != nil {
			if err := onProgress(Progress{}); err != nil {
				return 0, fmt.Errorf("progress callback: %w", err)
			}
		}
		return 0, nil
	}

	var uploaded int64
	for i := 0; i < numParts; i++ {
		part := i + 1

		target, err := urls.PartUploadURL(part)
		if err != nil {
			return uploaded, fmt.Errorf("get upload URL for part %d/%d: %w", part, numParts, err)
		}

		u.logger.Debugf("Uploading part %d/%d (%dB) to %s", part, numParts, provider.PartSize(i), target.URL)
		start := time.Now()

		n, err := u.uploadPart(ctx, provider, target, i)
		if err != nil {
			return uploaded, err
		}

		took := time.Since(start)
		u.stats.Update(took)
		uploaded += n
		u.logger.Debugf("Part %d/%d acknowledged in %v", part, numParts, took.Round(time.Millisecond))

		if onProgress != nil {
			snapshot := Progress{
				UploadedBytes: uploaded,
				TotalBytes:    totalBytes,
				CurrentPart:   part,
				TotalParts:    numParts,
			}
			if err := onProgress(snapshot); err != nil {
				return uploaded, fmt.Errorf("progress callback: %w", err)
			}
		}
	}

	return uploaded, nil
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (u *Uploader) CloseIdleConnections() {
	if transport, ok := u.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func (u *Uploader) uploadPart(ctx context.Context, provider PartProvider, target UploadURL, index int) (int64, error) {
	part := index + 1

	reader, err := provider.GetPart(index)
	if err != nil {
		return 0, &PartError{Part: part, Err: fmt.Errorf("get part data: %w", err)}
	}

	size := provider.PartSize(index)

	method := target.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, reader)
	if err != nil {
		return 0, &PartError{Part: part, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = size

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, &PartError{Part: part, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := make([]byte, 1024)
		n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
		return 0, &PartError{Part: part, StatusCode: resp.StatusCode, Body: string(errorBody[:n])}
	}

	return size, nil
}
