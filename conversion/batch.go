package conversion

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/oomol-lab/pdfcraft-go/conversion/network"
	"github.com/oomol-lab/pdfcraft-go/conversion/network/partuploader"
)

// NewBatchClient returns a client for the batch-management API, configured
// from the same Config as the converter.
func NewBatchClient(config Config, logger log.Logger) *network.BatchClient {
	config = config.withDefaults()
	return network.NewBatchClient(config.BatchBaseURL, string(config.AccessToken), logger)
}

// CollectSourcePaths expands glob patterns (including ** wildcards) into a
// sorted, deduplicated list of regular files.
func CollectSourcePaths(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var paths []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", match, err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			seen[match] = true
			paths = append(paths, match)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// UploadBatchFiles uploads every file matched by the patterns to the remote
// cache, one after another, and returns batch entries referencing the
// resulting locators. onProgress (if set) observes each file's upload.
func UploadBatchFiles(
	ctx context.Context,
	config Config,
	patterns []string,
	onProgress partuploader.ProgressFunc,
	logger log.Logger,
) ([]network.BatchFile, error) {
	config = config.withDefaults()

	paths, err := CollectSourcePaths(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files matched the provided patterns")
	}

	files := make([]network.BatchFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		locator, err := network.Upload(ctx, network.UploadParams{
			UploadBaseURL: config.UploadBaseURL,
			Token:         string(config.AccessToken),
			FilePath:      path,
			OnProgress:    onProgress,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", path, err)
		}

		files = append(files, network.BatchFile{
			URL:      locator,
			FileName: info.Name(),
			FileSize: info.Size(),
		})
	}

	return files, nil
}
