package conversion

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"

	"github.com/oomol-lab/pdfcraft-go/conversion/network"
	"github.com/oomol-lab/pdfcraft-go/conversion/network/partuploader"
	"github.com/oomol-lab/pdfcraft-go/conversion/polling"
)

// Format is the requested output format of a conversion.
type Format string

// Supported output formats.
const (
	FormatMarkdown Format = "markdown"
	FormatEPUB     Format = "epub"
)

// DefaultModel is the conversion model used when none is specified.
const DefaultModel = "gundam"

// ConvertInput describes one conversion request.
type ConvertInput struct {
	// Source is a local file path, or a remote source the service can fetch:
	// an http(s) URL or a cache:// locator from an earlier upload.
	Source string
	// Format defaults to FormatMarkdown.
	Format Format
	// Model defaults to DefaultModel.
	Model string
	// IncludesFootnotes asks the service to process footnote references.
	IncludesFootnotes bool
	// FailOnPDFErrors makes the job fail on PDF parsing errors instead of
	// skipping the affected content. Same for FailOnOCRErrors and OCR.
	FailOnPDFErrors bool
	FailOnOCRErrors bool
	// Wait blocks until the job reaches a terminal state. When false, the
	// returned result only carries the job ID for later polling.
	Wait bool
	// Polling tunes the wait loop; the zero value uses the service defaults.
	Polling polling.Policy
	// OnProgress receives upload progress snapshots for local sources.
	OnProgress partuploader.ProgressFunc
}

// ConvertResult ...
type ConvertResult struct {
	JobID string
	// DownloadURL is set when Wait was true and the job completed.
	DownloadURL string
}

// Converter ...
type Converter interface {
	Convert(ctx context.Context, input ConvertInput) (ConvertResult, error)
}

type converter struct {
	config      Config
	logger      log.Logger
	pathChecker pathutil.PathChecker
	uploader    network.Uploader
	downloader  network.Downloader
	clock       polling.Clock
}

// NewConverter creates a converter. pathChecker, uploader and downloader can
// be nil, unless you want to provide custom implementations.
func NewConverter(
	config Config,
	logger log.Logger,
	pathChecker pathutil.PathChecker,
	uploader network.Uploader,
	downloader network.Downloader,
) *converter {
	if pathChecker == nil {
		pathChecker = pathutil.NewPathChecker()
	}
	var uploaderImpl network.Uploader = uploader
	if uploader == nil {
		uploaderImpl = network.DefaultUploader{}
	}
	var downloaderImpl network.Downloader = downloader
	if downloader == nil {
		downloaderImpl = network.DefaultDownloader{}
	}
	return &converter{
		config:      config.withDefaults(),
		logger:      logger,
		pathChecker: pathChecker,
		uploader:    uploaderImpl,
		downloader:  downloaderImpl,
		clock:       nil,
	}
}

// Convert submits a conversion for input.Source, uploading it first when it
// is a local path. With input.Wait it polls until the job finishes and
// returns the result's download URL; otherwise it returns right after
// submission.
func (c *converter) Convert(ctx context.Context, input ConvertInput) (ConvertResult, error) {
	format, err := c.resolveFormat(input.Format)
	if err != nil {
		return ConvertResult{}, err
	}
	model := input.Model
	if model == "" {
		model = DefaultModel
	}

	source := input.Source
	if source == "" {
		return ConvertResult{}, fmt.Errorf("source is empty")
	}

	if !isRemoteSource(source) {
		exists, err := c.pathChecker.IsPathExists(source)
		if err != nil {
			return ConvertResult{}, fmt.Errorf("check source path: %w", err)
		}
		if !exists {
			return ConvertResult{}, fmt.Errorf("%w: %s", network.ErrSourceNotFound, source)
		}

		locator, err := c.uploader.Upload(ctx, network.UploadParams{
			UploadBaseURL: c.config.UploadBaseURL,
			Token:         string(c.config.AccessToken),
			FilePath:      source,
			OnProgress:    input.OnProgress,
		}, c.logger)
		if err != nil {
			return ConvertResult{}, fmt.Errorf("upload source: %w", err)
		}
		c.logger.Debugf("Source uploaded, locator: %s", locator)
		source = locator
	}

	jobID, err := network.Submit(network.SubmitParams{
		APIBaseURL:        c.config.APIBaseURL,
		Token:             string(c.config.AccessToken),
		PDFURL:            source,
		Format:            format,
		Model:             model,
		IncludesFootnotes: input.IncludesFootnotes,
		IgnorePDFErrors:   !input.FailOnPDFErrors,
		IgnoreOCRErrors:   !input.FailOnOCRErrors,
	}, c.logger)
	if err != nil {
		return ConvertResult{}, err
	}

	if !input.Wait {
		return ConvertResult{JobID: jobID}, nil
	}

	downloadURL, err := c.awaitCompletion(ctx, format, jobID, input.Polling)
	if err != nil {
		return ConvertResult{JobID: jobID}, err
	}
	return ConvertResult{JobID: jobID, DownloadURL: downloadURL}, nil
}

// AwaitCompletion polls a previously submitted job until it reaches a
// terminal state and returns the result's download URL. Use it to resume
// waiting for a job submitted with Wait false.
func (c *converter) AwaitCompletion(ctx context.Context, format Format, jobID string, policy polling.Policy) (string, error) {
	resolved, err := c.resolveFormat(format)
	if err != nil {
		return "", err
	}
	return c.awaitCompletion(ctx, resolved, jobID, policy)
}

func (c *converter) awaitCompletion(ctx context.Context, format string, jobID string, policy polling.Policy) (string, error) {
	fetch := network.NewStatusFetcher(network.StatusParams{
		APIBaseURL: c.config.APIBaseURL,
		Token:      string(c.config.AccessToken),
		Format:     format,
		SessionID:  jobID,
	}, c.logger)

	poller := polling.NewPoller(c.clock, c.logger)
	return poller.Await(ctx, func(ctx context.Context) (polling.Status, error) {
		observed, err := fetch()
		if err != nil {
			return polling.Status{}, err
		}
		return toPollingStatus(observed), nil
	}, policy)
}

// Download fetches a finished conversion's artifact to destPath.
func (c *converter) Download(ctx context.Context, downloadURL string, destPath string) error {
	return c.downloader.Download(ctx, network.DownloadParams{
		URL:          downloadURL,
		DownloadPath: destPath,
	}, c.logger)
}

func (c *converter) resolveFormat(format Format) (string, error) {
	if format == "" {
		format = FormatMarkdown
	}
	switch format {
	case FormatMarkdown, FormatEPUB:
		return string(format), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func toPollingStatus(observed network.JobStatus) polling.Status {
	switch observed.State {
	case network.StateCompleted:
		return polling.Status{State: polling.StateCompleted, DownloadURL: observed.DownloadURL}
	case network.StateFailed:
		reason := observed.Reason
		if reason == "" {
			reason = "unknown error"
		}
		return polling.Status{State: polling.StateFailed, FailureReason: reason}
	default:
		// Anything that is not terminal counts as still processing.
		return polling.Status{State: polling.StatePending}
	}
}

func isRemoteSource(source string) bool {
	for _, scheme := range []string{"http://", "https://", "cache://", "s3://"} {
		if strings.HasPrefix(source, scheme) {
			return true
		}
	}
	return false
}
