package conversion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
		wantErr string
	}{
		{
			name: "only API key set falls back to hosted endpoints",
			envVars: map[string]string{
				"PDFCRAFT_API_KEY": "token-1",
			},
			want: Config{
				APIBaseURL:    DefaultAPIBaseURL,
				BatchBaseURL:  DefaultBatchBaseURL,
				UploadBaseURL: DefaultUploadBaseURL,
				AccessToken:   "token-1",
			},
		},
		{
			name: "base URL overrides",
			envVars: map[string]string{
				"PDFCRAFT_API_KEY":         "token-1",
				"PDFCRAFT_API_BASE_URL":    "https://api.example.com/v1",
				"PDFCRAFT_BATCH_BASE_URL":  "https://batch.example.com/api",
				"PDFCRAFT_UPLOAD_BASE_URL": "https://upload.example.com",
			},
			want: Config{
				APIBaseURL:    "https://api.example.com/v1",
				BatchBaseURL:  "https://batch.example.com/api",
				UploadBaseURL: "https://upload.example.com",
				AccessToken:   "token-1",
			},
		},
		{
			name: "trailing slashes are trimmed",
			envVars: map[string]string{
				"PDFCRAFT_API_KEY":      "token-1",
				"PDFCRAFT_API_BASE_URL": "https://api.example.com/v1/",
			},
			want: Config{
				APIBaseURL:    "https://api.example.com/v1",
				BatchBaseURL:  DefaultBatchBaseURL,
				UploadBaseURL: DefaultUploadBaseURL,
				AccessToken:   "token-1",
			},
		},
		{
			name:    "missing API key",
			envVars: map[string]string{},
			wantErr: "PDFCRAFT_API_KEY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ConfigFromEnv(fakeEnvRepo{envVars: tt.envVars})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, config)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	token := Secret("super-secret-token")

	assert.Equal(t, "*****", fmt.Sprintf("%s", token))
	assert.Equal(t, "*****", fmt.Sprintf("%v", token))
	assert.Equal(t, "*****", fmt.Sprintf("%#v", token))
	assert.NotContains(t, fmt.Sprintf("config: %+v", NewConfig(token)), "super-secret-token")
}
