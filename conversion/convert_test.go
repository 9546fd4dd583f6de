package conversion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oomol-lab/pdfcraft-go/conversion/network"
	"github.com/oomol-lab/pdfcraft-go/conversion/polling"
)

// conversionAPIServer serves the submit and result endpoints of a single job.
type conversionAPIServer struct {
	server      *httptest.Server
	submitCount int32
	submitBody  map[string]interface{}
	// resultBodies are served in order; the last one repeats.
	resultBodies []string
	resultCount  int32
}

func newConversionAPIServer(t *testing.T, format string, resultBodies ...string) *conversionAPIServer {
	s := &conversionAPIServer{resultBodies: resultBodies}

	mux := http.NewServeMux()
	mux.HandleFunc("/pdf-transform-"+format+"/submit", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.submitCount, 1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.submitBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"sessionID": "session-42",
		})
	})
	mux.HandleFunc("/pdf-transform-"+format+"/result/session-42", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&s.resultCount, 1)
		body := s.resultBodies[len(s.resultBodies)-1]
		if int(n) <= len(s.resultBodies) {
			body = s.resultBodies[n-1]
		}
		_, _ = w.Write([]byte(body))
	})

	s.server = httptest.NewServer(mux)
	return s
}

func testConfig(apiBaseURL string) Config {
	return Config{
		APIBaseURL:  apiBaseURL,
		AccessToken: "test-token",
	}
}

func TestConvert_RemoteSourceSkipsUpload(t *testing.T) {
	api := newConversionAPIServer(t, "markdown")
	defer api.server.Close()

	uploader := &fakeUploader{locator: "cache://should-not-happen"}
	c := NewConverter(testConfig(api.server.URL), log.NewLogger(), fakePathChecker{}, uploader, &fakeDownloader{})

	result, err := c.Convert(context.Background(), ConvertInput{
		Source: "https://example.com/report.pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, "session-42", result.JobID)
	assert.Empty(t, result.DownloadURL)
	assert.Empty(t, uploader.calls, "remote sources must not be uploaded")
	assert.Equal(t, "https://example.com/report.pdf", api.submitBody["pdfURL"])
	assert.Equal(t, "gundam", api.submitBody["model"])
	assert.Equal(t, true, api.submitBody["ignorePDFErrors"])
}

func TestConvert_LocalSourceIsUploadedFirst(t *testing.T) {
	api := newConversionAPIServer(t, "epub")
	defer api.server.Close()

	uploader := &fakeUploader{locator: "cache://report.pdf"}
	checker := fakePathChecker{exists: map[string]bool{"/tmp/report.pdf": true}}
	c := NewConverter(testConfig(api.server.URL), log.NewLogger(), checker, uploader, &fakeDownloader{})

	result, err := c.Convert(context.Background(), ConvertInput{
		Source: "/tmp/report.pdf",
		Format: FormatEPUB,
		Model:  "custom-model",
	})

	require.NoError(t, err)
	assert.Equal(t, "session-42", result.JobID)
	require.Len(t, uploader.calls, 1)
	assert.Equal(t, "/tmp/report.pdf", uploader.calls[0].FilePath)
	assert.Equal(t, "cache://report.pdf", api.submitBody["pdfURL"])
	assert.Equal(t, "custom-model", api.submitBody["model"])
}

func TestConvert_MissingLocalSourceFailsBeforeAnyRequest(t *testing.T) {
	api := newConversionAPIServer(t, "markdown")
	defer api.server.Close()

	uploader := &fakeUploader{locator: "cache://report.pdf"}
	c := NewConverter(testConfig(api.server.URL), log.NewLogger(), fakePathChecker{}, uploader, &fakeDownloader{})

	_, err := c.Convert(context.Background(), ConvertInput{
		Source: "/tmp/does-not-exist.pdf",
	})

	require.ErrorIs(t, err, network.ErrSourceNotFound)
	assert.Empty(t, uploader.calls)
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.submitCount))
}

func TestConvert_WaitPollsUntilCompleted(t *testing.T) {
	api := newConversionAPIServer(t, "markdown",
		`{"state":"processing"}`,
		`{"state":"processing"}`,
		`{"state":"completed","data":{"downloadURL":"https://example.com/result.md"}}`,
	)
	defer api.server.Close()

	c := NewConverter(testConfig(api.server.URL), log.NewLogger(), fakePathChecker{}, &fakeUploader{}, &fakeDownloader{})
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c.clock = clock

	result, err := c.Convert(context.Background(), ConvertInput{
		Source: "cache://report.pdf",
		Wait:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/result.md", result.DownloadURL)
	assert.Equal(t, int32(3), atomic.LoadInt32(&api.resultCount))
	// two pending polls, exponential backoff from the 1s default
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestConvert_WaitSurfacesJobFailure(t *testing.T) {
	api := newConversionAPIServer(t, "markdown",
		`{"state":"failed","error":"unreadable PDF"}`,
	)
	defer api.server.Close()

	c := NewConverter(testConfig(api.server.URL), log.NewLogger(), fakePathChecker{}, &fakeUploader{}, &fakeDownloader{})
	c.clock = &fakeClock{now: time.Unix(1700000000, 0)}

	result, err := c.Convert(context.Background(), ConvertInput{
		Source: "cache://report.pdf",
		Wait:   true,
	})

	var jobErr *polling.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "unreadable PDF", jobErr.Reason)
	// the job ID is still reported so the caller can inspect the job
	assert.Equal(t, "session-42", result.JobID)
}

func TestConvert_UnsupportedFormat(t *testing.T) {
	c := NewConverter(testConfig("https://unused.example.com"), log.NewLogger(), fakePathChecker{}, &fakeUploader{}, &fakeDownloader{})

	_, err := c.Convert(context.Background(), ConvertInput{
		Source: "cache://report.pdf",
		Format: Format("docx"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestConvert_EmptySource(t *testing.T) {
	c := NewConverter(testConfig("https://unused.example.com"), log.NewLogger(), fakePathChecker{}, &fakeUploader{}, &fakeDownloader{})

	_, err := c.Convert(context.Background(), ConvertInput{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "source is empty")
}

func TestAwaitCompletion_ResumesEarlierJob(t *testing.T) {
	api := newConversionAPIServer(t, "markdown",
		`{"state":"processing"}`,
		`{"state":"completed","data":{"downloadURL":"https://example.com/result.md"}}`,
	)
	defer api.server.Close()

	c := NewConverter(testConfig(api.server.URL), log.NewLogger(), fakePathChecker{}, &fakeUploader{}, &fakeDownloader{})
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c.clock = clock

	downloadURL, err := c.AwaitCompletion(context.Background(), FormatMarkdown, "session-42", polling.Policy{
		Strategy:        polling.StrategyFixed,
		InitialInterval: 3 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/result.md", downloadURL)
	assert.Equal(t, []time.Duration{3 * time.Second}, clock.sleeps)
}

func TestConverter_Download(t *testing.T) {
	downloader := &fakeDownloader{}
	c := NewConverter(testConfig("https://unused.example.com"), log.NewLogger(), fakePathChecker{}, &fakeUploader{}, downloader)

	err := c.Download(context.Background(), "https://example.com/result.md", "/tmp/result.md")

	require.NoError(t, err)
	require.Len(t, downloader.calls, 1)
	assert.Equal(t, "https://example.com/result.md", downloader.calls[0].URL)
	assert.Equal(t, "/tmp/result.md", downloader.calls[0].DownloadPath)
}
