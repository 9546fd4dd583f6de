package network

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/oomol-lab/pdfcraft-go/conversion/network/partuploader"
)

type submitRequest struct {
	PDFURL            string `json:"pdfURL"`
	Model             string `json:"model"`
	IncludesFootnotes bool   `json:"includesFootnotes"`
	IgnorePDFErrors   bool   `json:"ignorePDFErrors"`
	IgnoreOCRErrors   bool   `json:"ignoreOCRErrors"`
}

type submitResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionID"`
	Error     string `json:"error"`
}

type resultResponse struct {
	State string `json:"state"`
	Data  *struct {
		DownloadURL string `json:"downloadURL"`
	} `json:"data"`
	Error string `json:"error"`
}

type initUploadRequest struct {
	FileName      string `json:"fileName"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
}

type initUploadResponse struct {
	UploadID      string `json:"uploadID"`
	PartSizeBytes int64  `json:"partSizeBytes"`
	TotalParts    int    `json:"totalParts"`
	CacheURL      string `json:"cacheURL"`
}

type partURLResponse struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

type apiClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

func newAPIClient(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) apiClient {
	return apiClient{
		httpClient:  client,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
	}
}

func (c apiClient) newRequest(method, url string, body []byte) (*retryablehttp.Request, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequest(method, url, rawBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c apiClient) do(req *retryablehttp.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != wantStatus {
		return unwrapError(resp)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c apiClient) submitConversion(format string, requestBody submitRequest) (string, error) {
	url := fmt.Sprintf("%s/pdf-transform-%s/submit", c.baseURL, format)

	body, err := json.Marshal(requestBody)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(http.MethodPost, url, body)
	if err != nil {
		return "", err
	}

	var response submitResponse
	if err := c.do(req, http.StatusOK, &response); err != nil {
		return "", err
	}

	if !response.Success {
		reason := response.Error
		if reason == "" {
			reason = "unknown error"
		}
		return "", fmt.Errorf("submit rejected: %s", reason)
	}

	return response.SessionID, nil
}

func (c apiClient) conversionResult(format string, sessionID string) (resultResponse, error) {
	url := fmt.Sprintf("%s/pdf-transform-%s/result/%s", c.baseURL, format, sessionID)

	req, err := c.newRequest(http.MethodGet, url, nil)
	if err != nil {
		return resultResponse{}, err
	}

	var response resultResponse
	if err := c.do(req, http.StatusOK, &response); err != nil {
		return resultResponse{}, err
	}

	return response, nil
}

func (c apiClient) initUpload(requestBody initUploadRequest) (initUploadResponse, error) {
	url := fmt.Sprintf("%s/init", c.baseURL)

	body, err := json.Marshal(requestBody)
	if err != nil {
		return initUploadResponse{}, err
	}

	req, err := c.newRequest(http.MethodPost, url, body)
	if err != nil {
		return initUploadResponse{}, err
	}

	var response initUploadResponse
	if err := c.do(req, http.StatusCreated, &response); err != nil {
		return initUploadResponse{}, err
	}

	return response, nil
}

func (c apiClient) partUploadURL(uploadID string, part int) (partuploader.UploadURL, error) {
	url := fmt.Sprintf("%s/%s/parts/%d", c.baseURL, uploadID, part)

	req, err := c.newRequest(http.MethodGet, url, nil)
	if err != nil {
		return partuploader.UploadURL{}, err
	}

	var response partURLResponse
	if err := c.do(req, http.StatusOK, &response); err != nil {
		return partuploader.UploadURL{}, err
	}

	return partuploader.UploadURL{
		Method:  response.Method,
		URL:     response.URL,
		Headers: response.Headers,
	}, nil
}

// partURLSource adapts the upload-session API to the part uploader.
type partURLSource struct {
	client   apiClient
	uploadID string
}

func (s partURLSource) PartUploadURL(part int) (partuploader.UploadURL, error) {
	return s.client.partUploadURL(s.uploadID, part)
}
