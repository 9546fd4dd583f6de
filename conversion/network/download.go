package network

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
)

// DownloadParams ...
type DownloadParams struct {
	// URL is the download URL of a finished conversion.
	URL          string
	DownloadPath string
}

// Download fetches the converted artifact to DownloadPath.
func Download(ctx context.Context, params DownloadParams, logger log.Logger) error {
	if params.URL == "" {
		return fmt.Errorf("download URL is empty")
	}

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)

	logger.Debugf("Download converted document")
	err := downloadFile(ctx, retryableHTTPClient.StandardClient(), params.URL, params.DownloadPath)
	if err != nil {
		return fmt.Errorf("failed to download converted document: %w", err)
	}

	return nil
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; downloadErr=%+v", retry, err, downloadErr)
		return retry, err
	}
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}
