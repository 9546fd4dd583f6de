// Package partuploader moves a local file to the remote cache in
// bounded-size parts. Parts are transferred strictly in order, one at a
// time, and progress is reported after every acknowledged part.
package partuploader

import (
	"io"
)

// UploadURL is a signed target for transferring a single part.
type UploadURL struct {
	Method  string
	URL     string
	Headers map[string]string
}

// URLSource hands out the signed target for a part. part is 1-based.
// Implementations typically call the upload-session API.
type URLSource interface {
	PartUploadURL(part int) (UploadURL, error)
}

// PartProvider provides part data for upload.
// Implementations can read from files or memory buffers.
type PartProvider interface {
	// NumParts returns the total number of parts.
	NumParts() int

	// PartSize returns the size of the part at the given index.
	PartSize(index int) int64

	// GetPart returns a reader for the part at the given index.
	GetPart(index int) (io.Reader, error)
}

// Progress is an immutable snapshot of an in-flight upload, taken after a
// part has been acknowledged.
type Progress struct {
	UploadedBytes int64
	TotalBytes    int64
	CurrentPart   int
	TotalParts    int
}

// Percentage returns how much of the file has been uploaded, clamped to
// [0, 100]. A zero-byte total reports 0.
func (p Progress) Percentage() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	pct := 100 * float64(p.UploadedBytes) / float64(p.TotalBytes)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ProgressFunc receives a snapshot after every acknowledged part. Returning
// an error aborts the upload immediately.
type ProgressFunc func(Progress) error
