package partuploader

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePartProvider(t *testing.T) {
	content := []byte("0123456789abcdefghij~")
	path := filepath.Join(t.TempDir(), "source.pdf")
	require.NoError(t, os.WriteFile(path, content, 0600))

	// 21 bytes split into parts of 8: 8 + 8 + 5
	provider, err := NewFilePartProvider(path, 8, 3, int64(len(content)))
	require.NoError(t, err)
	defer provider.Close() //nolint:errcheck

	assert.Equal(t, 3, provider.NumParts())
	assert.Equal(t, int64(8), provider.PartSize(0))
	assert.Equal(t, int64(8), provider.PartSize(1))
	assert.Equal(t, int64(5), provider.PartSize(2))

	wantParts := []string{"01234567", "89abcdef", "ghij~"}
	for i, want := range wantParts {
		reader, err := provider.GetPart(i)
		require.NoError(t, err)
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	_, err = provider.GetPart(3)
	assert.Error(t, err)
}

func TestFilePartProvider_MissingFile(t *testing.T) {
	_, err := NewFilePartProvider(filepath.Join(t.TempDir(), "nope.pdf"), 8, 1, 8)
	assert.Error(t, err)
}

func TestByteSlicePartProvider_OutOfRange(t *testing.T) {
	provider := NewByteSlicePartProvider([][]byte{[]byte("x")})

	_, err := provider.GetPart(-1)
	assert.Error(t, err)
	_, err = provider.GetPart(1)
	assert.Error(t, err)
	assert.Equal(t, int64(0), provider.PartSize(5))
}

func TestProgress_Percentage(t *testing.T) {
	tests := []struct {
		name     string
		progress Progress
		want     float64
	}{
		{"empty total reports zero", Progress{UploadedBytes: 0, TotalBytes: 0}, 0},
		{"half", Progress{UploadedBytes: 5000, TotalBytes: 10000, CurrentPart: 1, TotalParts: 2}, 50},
		{"complete", Progress{UploadedBytes: 10000, TotalBytes: 10000, CurrentPart: 2, TotalParts: 2}, 100},
		{"clamped above", Progress{UploadedBytes: 11000, TotalBytes: 10000}, 100},
		{"clamped below", Progress{UploadedBytes: -1, TotalBytes: 10000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.progress.Percentage())
		})
	}
}

func TestProgress_PercentageHundredOnlyWhenComplete(t *testing.T) {
	for uploaded := int64(0); uploaded <= 1000; uploaded += 100 {
		p := Progress{UploadedBytes: uploaded, TotalBytes: 1000}
		pct := p.Percentage()
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
		if uploaded == 1000 {
			assert.Equal(t, 100.0, pct)
		} else {
			assert.Less(t, pct, 100.0)
		}
	}
}
