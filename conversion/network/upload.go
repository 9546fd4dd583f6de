package network

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"

	"github.com/oomol-lab/pdfcraft-go/conversion/network/partuploader"
)

// UploadParams ...
type UploadParams struct {
	UploadBaseURL string
	Token         string
	FilePath      string
	// OnProgress, if set, receives a snapshot after every acknowledged part.
	OnProgress partuploader.ProgressFunc
}

// Upload moves a local file to the remote cache in server-sized parts and
// returns the cache locator (a cache:// URL) that references the uploaded
// object. The locator becomes valid once the last part is acknowledged;
// there is no separate finalize call.
//
// The file must exist before any network activity happens; otherwise the
// returned error wraps ErrSourceNotFound.
func Upload(ctx context.Context, params UploadParams, logger log.Logger) (string, error) {
	if params.UploadBaseURL == "" {
		return "", fmt.Errorf("upload base URL is empty")
	}
	if params.Token == "" {
		return "", fmt.Errorf("API token is empty")
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, params.FilePath)
		}
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrSourceNotFound, params.FilePath)
	}

	client := newAPIClient(retryhttp.NewClient(logger), params.UploadBaseURL, params.Token, logger)

	logger.Debugf("Initialize upload session")
	session, err := client.initUpload(initUploadRequest{
		FileName:      filepath.Base(params.FilePath),
		FileSizeBytes: info.Size(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to initialize upload session: %w", err)
	}
	if session.CacheURL == "" {
		return "", fmt.Errorf("upload session response contains no cache URL")
	}
	// The server decides the part layout; totalParts is authoritative and
	// never recomputed locally.
	logger.Debugf("Upload ID: %s, %d parts of %dB", session.UploadID, session.TotalParts, session.PartSizeBytes)

	provider, err := partuploader.NewFilePartProvider(params.FilePath, session.PartSizeBytes, session.TotalParts, info.Size())
	if err != nil {
		return "", fmt.Errorf("prepare parts: %w", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Errorf("failed to close file: %s", err)
		}
	}()

	uploader := partuploader.New(partuploader.DefaultConfig(), logger)
	defer uploader.CloseIdleConnections()

	logger.Infof("Uploading %s (%s)", filepath.Base(params.FilePath), units.HumanSizeWithPrecision(float64(info.Size()), 3))
	startTime := time.Now()

	uploaded, err := uploader.Upload(ctx, provider, partURLSource{client: client, uploadID: session.UploadID}, params.OnProgress)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	logger.Donef("Uploaded %s in %s", units.HumanSizeWithPrecision(float64(uploaded), 3), time.Since(startTime).Round(time.Second))

	return session.CacheURL, nil
}
