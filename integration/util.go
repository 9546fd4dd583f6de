//go:build integration
// +build integration

package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/oomol-lab/pdfcraft-go/conversion"
)

var logger = log.NewLogger()

// testConfig reads the PDFCRAFT_* variables and skips the test when the API
// key is not set, so the suite stays runnable locally.
func testConfig(t *testing.T) conversion.Config {
	t.Helper()

	if os.Getenv("PDFCRAFT_API_KEY") == "" {
		t.Skip("PDFCRAFT_API_KEY is not set")
	}

	config, err := conversion.ConfigFromEnv(env.NewRepository())
	if err != nil {
		t.Fatal(err)
	}
	return config
}

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}
