package network

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

// BatchFile is one source document in a batch.
type BatchFile struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// CreateBatchResponse ...
type CreateBatchResponse struct {
	BatchID      string `json:"batchId"`
	TotalFiles   int    `json:"totalFiles"`
	Status       string `json:"status"`
	OutputFormat string `json:"outputFormat"`
	CreatedAt    string `json:"createdAt"`
}

// BatchDetail ...
type BatchDetail struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId"`
	Status            string  `json:"status"`
	OutputFormat      string  `json:"outputFormat"`
	IncludesFootnotes bool    `json:"includesFootnotes"`
	TotalFiles        int     `json:"totalFiles"`
	CompletedFiles    int     `json:"completedFiles"`
	FailedFiles       int     `json:"failedFiles"`
	Progress          float64 `json:"progress"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// JobDetail ...
type JobDetail struct {
	ID           string   `json:"id"`
	BatchID      string   `json:"batchId"`
	UserID       string   `json:"userId"`
	OutputFormat string   `json:"outputFormat"`
	SourceURL    string   `json:"sourceUrl"`
	FileName     string   `json:"fileName"`
	FileSize     int64    `json:"fileSize"`
	Status       string   `json:"status"`
	ResultURL    string   `json:"resultUrl"`
	ErrorMessage string   `json:"errorMessage"`
	Progress     *float64 `json:"progress"`
	RetryCount   int      `json:"retryCount"`
	TaskID       string   `json:"taskId"`
	StartedAt    string   `json:"startedAt"`
	CompletedAt  string   `json:"completedAt"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
}

// Pagination ...
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// BatchesPage ...
type BatchesPage struct {
	Batches    []BatchDetail `json:"batches"`
	Pagination Pagination    `json:"pagination"`
}

// JobsPage ...
type JobsPage struct {
	Jobs       []JobDetail `json:"jobs"`
	Pagination Pagination  `json:"pagination"`
}

// ConcurrentStatus reports the account's conversion concurrency limits.
type ConcurrentStatus struct {
	MaxConcurrentJobs  int  `json:"maxConcurrentJobs"`
	CurrentRunningJobs int  `json:"currentRunningJobs"`
	CanSubmitNewJob    bool `json:"-"`
	AvailableSlots     int  `json:"availableSlots"`
	QueuedJobs         int  `json:"queuedJobs"`
}

// UnmarshalJSON accepts both field names the service has used for the
// submit-allowed flag.
func (s *ConcurrentStatus) UnmarshalJSON(data []byte) error {
	type alias ConcurrentStatus
	aux := struct {
		*alias
		CanStartNew     *bool `json:"canStartNew"`
		CanSubmitNewJob *bool `json:"canSubmitNewJob"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.CanStartNew != nil:
		s.CanSubmitNewJob = *aux.CanStartNew
	case aux.CanSubmitNewJob != nil:
		s.CanSubmitNewJob = *aux.CanSubmitNewJob
	}
	return nil
}

// OperationResponse is the result of a batch or job control operation.
type OperationResponse struct {
	BatchID       string `json:"batchId"`
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	QueuedJobs    int    `json:"queuedJobs"`
	CancelledJobs int    `json:"cancelledJobs"`
	PausedJobs    int    `json:"pausedJobs"`
	ResumedJobs   int    `json:"resumedJobs"`
	RetriedJobs   int    `json:"retriedJobs"`
}

type createBatchRequest struct {
	Files             []BatchFile `json:"files"`
	OutputFormat      string      `json:"outputFormat"`
	IncludesFootnotes bool        `json:"includesFootnotes"`
}

// ListBatchesOptions ...
type ListBatchesOptions struct {
	Page      int
	PageSize  int
	Status    string
	SortBy    string
	SortOrder string
}

// ListJobsOptions ...
type ListJobsOptions struct {
	Page     int
	PageSize int
	Status   string
}

// BatchClient manages conversion batches: groups of documents converted
// together with server-side queueing and per-job retry.
type BatchClient struct {
	api apiClient
}

// NewBatchClient ...
func NewBatchClient(baseURL string, accessToken string, logger log.Logger) *BatchClient {
	return &BatchClient{
		api: newAPIClient(retryhttp.NewClient(logger), baseURL, accessToken, logger),
	}
}

// CreateBatch registers files for conversion and returns the new batch.
// The batch does not start processing until StartBatch is called.
func (c *BatchClient) CreateBatch(files []BatchFile, outputFormat string, includesFootnotes bool) (CreateBatchResponse, error) {
	body, err := json.Marshal(createBatchRequest{
		Files:             files,
		OutputFormat:      outputFormat,
		IncludesFootnotes: includesFootnotes,
	})
	if err != nil {
		return CreateBatchResponse{}, err
	}

	var response CreateBatchResponse
	err = c.call(http.MethodPost, fmt.Sprintf("%s/batches", c.api.baseURL), body, &response)
	return response, err
}

// StartBatch queues the batch's jobs for processing.
func (c *BatchClient) StartBatch(batchID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/batches/%s/start", c.api.baseURL, batchID), nil, &response)
	return response, err
}

// GetBatch ...
func (c *BatchClient) GetBatch(batchID string) (BatchDetail, error) {
	var response BatchDetail
	err := c.call(http.MethodGet, fmt.Sprintf("%s/batches/%s", c.api.baseURL, batchID), nil, &response)
	return response, err
}

// ListBatches returns one page of the account's batches.
func (c *BatchClient) ListBatches(opts ListBatchesOptions) (BatchesPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(defaultInt(opts.Page, 1)))
	query.Set("pageSize", strconv.Itoa(defaultInt(opts.PageSize, 20)))
	query.Set("status", defaultString(opts.Status, "all"))
	query.Set("sortBy", defaultString(opts.SortBy, "createdAt"))
	query.Set("sortOrder", defaultString(opts.SortOrder, "desc"))

	var response BatchesPage
	err := c.call(http.MethodGet, fmt.Sprintf("%s/batches?%s", c.api.baseURL, query.Encode()), nil, &response)
	return response, err
}

// ListBatchJobs returns one page of a batch's jobs, optionally filtered by
// status.
func (c *BatchClient) ListBatchJobs(batchID string, opts ListJobsOptions) (JobsPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(defaultInt(opts.Page, 1)))
	query.Set("pageSize", strconv.Itoa(defaultInt(opts.PageSize, 20)))
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}

	var response JobsPage
	err := c.call(http.MethodGet, fmt.Sprintf("%s/batches/%s/jobs?%s", c.api.baseURL, batchID, query.Encode()), nil, &response)
	return response, err
}

// CancelBatch ...
func (c *BatchClient) CancelBatch(batchID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/batches/%s/cancel", c.api.baseURL, batchID), nil, &response)
	return response, err
}

// PauseBatch ...
func (c *BatchClient) PauseBatch(batchID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/batches/%s/pause", c.api.baseURL, batchID), nil, &response)
	return response, err
}

// ResumeBatch ...
func (c *BatchClient) ResumeBatch(batchID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/batches/%s/resume", c.api.baseURL, batchID), nil, &response)
	return response, err
}

// RetryFailedJobs requeues every failed job of the batch.
func (c *BatchClient) RetryFailedJobs(batchID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/batches/%s/retry-failed?force=true", c.api.baseURL, batchID), nil, &response)
	return response, err
}

// RetryJob requeues a single failed job.
func (c *BatchClient) RetryJob(jobID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/jobs/%s/retry?force=true", c.api.baseURL, jobID), nil, &response)
	return response, err
}

// CancelJob ...
func (c *BatchClient) CancelJob(jobID string) (OperationResponse, error) {
	var response OperationResponse
	err := c.call(http.MethodPost, fmt.Sprintf("%s/jobs/%s/cancel", c.api.baseURL, jobID), nil, &response)
	return response, err
}

// ConcurrentStatus ...
func (c *BatchClient) ConcurrentStatus() (ConcurrentStatus, error) {
	var response ConcurrentStatus
	err := c.call(http.MethodGet, fmt.Sprintf("%s/concurrent-status", c.api.baseURL), nil, &response)
	return response, err
}

// call issues a request and decodes a possibly data-wrapped response body
// into out. The batch API wraps most payloads in a "data" envelope, but not
// all deployments do; both shapes are accepted.
func (c *BatchClient) call(method, url string, body []byte, out interface{}) error {
	req, err := c.api.newRequest(method, url, body)
	if err != nil {
		return err
	}

	resp, err := c.api.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.api.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return decodeData(raw, out)
}

func decodeData(raw []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	return json.Unmarshal(raw, out)
}

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
