package core

// streaming.go provides the readers an upload passes through before it is
// buffered for detection:
//
//   - BOMSkippingReader: Removes a UTF-8 BOM (0xEF 0xBB 0xBF) from Windows files
//   - CountingReader: Tracks bytes read and enforces the upload size limit
//
// Use ReadUpload to apply both in the correct order.

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader     *bufio.Reader
	bomChecked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{
		reader: bufio.NewReader(r),
	}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		head, err := r.reader.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			_, _ = r.reader.Discard(len(utf8BOM))
		}
	}
	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read. When Limit is
// positive, reading past it fails with ErrUploadTooLarge.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Limit     int64
}

// NewCountingReader creates a counting reader with an optional byte limit.
func NewCountingReader(r io.Reader, limit int64) *CountingReader {
	if limit > 0 {
		// One extra byte distinguishes "exactly at the limit" from "over it".
		r = io.LimitReader(r, limit+1)
	}
	return &CountingReader{
		reader: r,
		Limit:  limit,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.Limit > 0 && r.BytesRead > r.Limit {
		return n, ErrUploadTooLarge
	}
	return n, err
}

// ReadUpload buffers an upload body, enforcing limit (0 means unlimited).
// The size limit applies to the raw bytes, BOM included. A body that is empty
// after BOM removal yields ErrEmptyUpload.
func ReadUpload(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, ErrEmptyUpload
	}

	counter := NewCountingReader(r, limit)
	data, err := io.ReadAll(NewBOMSkippingReader(counter))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	return data, nil
}
