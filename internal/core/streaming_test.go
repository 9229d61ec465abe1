package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "shorter than BOM",
			input:    []byte{'a'},
			expected: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := NewCountingReader(strings.NewReader(input), 0)

	buf := make([]byte, 100)
	totalRead := 0
	for {
		n, err := reader.Read(buf)
		totalRead += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if totalRead != len(input) {
		t.Errorf("total read = %d, want %d", totalRead, len(input))
	}
	if reader.BytesRead != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead, len(input))
	}
}

func TestReadUpload(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		limit   int64
		want    string
		wantErr error
	}{
		{
			name:  "plain csv",
			input: []byte("a,b\n1,2\n"),
			limit: 100,
			want:  "a,b\n1,2\n",
		},
		{
			name:  "bom stripped",
			input: append([]byte{0xEF, 0xBB, 0xBF}, "a\n1\n"...),
			limit: 100,
			want:  "a\n1\n",
		},
		{
			name:  "exactly at limit",
			input: []byte("abcd"),
			limit: 4,
			want:  "abcd",
		},
		{
			name:    "over limit",
			input:   []byte("abcde"),
			limit:   4,
			wantErr: ErrUploadTooLarge,
		},
		{
			name:  "unlimited",
			input: []byte(strings.Repeat("y", 4096)),
			limit: 0,
			want:  strings.Repeat("y", 4096),
		},
		{
			name:    "empty body",
			input:   nil,
			limit:   100,
			wantErr: ErrEmptyUpload,
		},
		{
			name:    "only bom",
			input:   []byte{0xEF, 0xBB, 0xBF},
			limit:   100,
			wantErr: ErrEmptyUpload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadUpload(bytes.NewReader(tt.input), tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadUpload() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadUpload() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ReadUpload() = %q, want %q", got, tt.want)
			}
		})
	}
}
