package partuploader

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// FilePartProvider reads parts from a file on disk. The part layout (size
// and count) comes from the upload-session response, not from the file
// itself; only the last part's length is derived locally.
type FilePartProvider struct {
	file         *os.File
	partSize     int64
	lastPartSize int64
	numParts     int
}

// NewFilePartProvider creates a PartProvider that reads from a file.
// partSize and numParts are the server-declared values for the session.
func NewFilePartProvider(path string, partSize int64, numParts int, totalBytes int64) (*FilePartProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	lastPartSize := totalBytes
	if numParts > 0 {
		lastPartSize = totalBytes - partSize*int64(numParts-1)
	}

	return &FilePartProvider{
		file:         file,
		partSize:     partSize,
		lastPartSize: lastPartSize,
		numParts:     numParts,
	}, nil
}

// NumParts returns the total number of parts.
func (p *FilePartProvider) NumParts() int {
	return p.numParts
}

// PartSize returns the size of the part at the given index.
func (p *FilePartProvider) PartSize(index int) int64 {
	if index == p.numParts-1 {
		return p.lastPartSize
	}
	return p.partSize
}

// GetPart returns a reader for the part's byte range.
func (p *FilePartProvider) GetPart(index int) (io.Reader, error) {
	if index < 0 || index >= p.numParts {
		return nil, fmt.Errorf("part index %d out of range [0, %d)", index, p.numParts)
	}

	offset := int64(index) * p.partSize
	return io.NewSectionReader(p.file, offset, p.PartSize(index)), nil
}

// Close closes the underlying file.
func (p *FilePartProvider) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ByteSlicePartProvider provides parts from pre-loaded byte slices.
// Useful for tests and for data that is already in memory.
type ByteSlicePartProvider struct {
	parts [][]byte
}

// NewByteSlicePartProvider creates a PartProvider from byte slices.
func NewByteSlicePartProvider(parts [][]byte) *ByteSlicePartProvider {
	return &ByteSlicePartProvider{parts: parts}
}

// NumParts returns the total number of parts.
func (p *ByteSlicePartProvider) NumParts() int {
	return len(p.parts)
}

// PartSize returns the size of the part at the given index.
func (p *ByteSlicePartProvider) PartSize(index int) int64 {
	if index < 0 || index >= len(p.parts) {
		return 0
	}
	return int64(len(p.parts[index]))
}

// GetPart returns a reader for the part at the given index.
func (p *ByteSlicePartProvider) GetPart(index int) (io.Reader, error) {
	if index < 0 || index >= len(p.parts) {
		return nil, fmt.Errorf("part index %d out of range [0, %d)", index, len(p.parts))
	}
	return bytes.NewReader(p.parts[index]), nil
}
