package conversion

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/oomol-lab/pdfcraft-go/conversion/network"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type fakePathChecker struct {
	exists map[string]bool
}

func (c fakePathChecker) IsPathExists(pth string) (bool, error) {
	return c.exists[pth], nil
}

func (c fakePathChecker) IsDirExists(pth string) (bool, error) {
	return c.exists[pth], nil
}

type fakeUploader struct {
	locator string
	err     error
	calls   []network.UploadParams
}

func (u *fakeUploader) Upload(ctx context.Context, params network.UploadParams, logger log.Logger) (string, error) {
	u.calls = append(u.calls, params)
	if u.err != nil {
		return "", u.err
	}
	return u.locator, nil
}

type fakeDownloader struct {
	err   error
	calls []network.DownloadParams
}

func (d *fakeDownloader) Download(ctx context.Context, params network.DownloadParams, logger log.Logger) error {
	d.calls = append(d.calls, params)
	return d.err
}

// fakeClock advances its reading only while sleeping, so a test can assert
// the exact suspension sequence of a wait loop.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}
