package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "not found",
			err:      ErrDatasetNotFound,
			wantCode: "DS001",
		},
		{
			name:     "locked dataset",
			err:      &DatasetLockedError{ID: "x", Status: StatusProcessing},
			wantCode: "DS002",
		},
		{
			name:     "failed dataset wins over its embedded csv error",
			err:      &DatasetFailedError{ID: "x", Detail: "malformed csv: line 3 has 2 fields, header has 4"},
			wantCode: "DS003",
		},
		{
			name:     "malformed csv",
			err:      &MalformedCSVError{Line: 2, Got: 3, Want: 2},
			wantCode: "CSV001",
		},
		{
			name:     "decode error",
			err:      &DecodeError{Charset: "x-unknown", Err: errors.New("unknown charset")},
			wantCode: "CSV002",
		},
		{
			name:     "incompatible append",
			err:      &IncompatibleColumnsError{Got: 3, Want: 4},
			wantCode: "CSV003",
		},
		{
			name:     "unknown filter key",
			err:      &UnknownFilterKeyError{Key: "nope"},
			wantCode: "QRY001",
		},
		{
			name:     "invalid filter",
			err:      &InvalidFilterError{Param: "_limit", Value: "x", Err: errors.New("not a number")},
			wantCode: "QRY002",
		},
		{
			name:     "wrapped query timeout",
			err:      fmt.Errorf("query people: %w", ErrQueryTimeout),
			wantCode: "QRY003",
		},
		{
			name:     "alias conflict",
			err:      &AliasConflictError{Alias: "theone"},
			wantCode: "ALS001",
		},
		{
			name:     "invalid alias",
			err:      &InvalidAliasError{Alias: "has space"},
			wantCode: "ALS002",
		},
		{
			name:     "too large",
			err:      ErrUploadTooLarge,
			wantCode: "FILE001",
		},
		{
			name:     "media type",
			err:      fmt.Errorf("%w: %q", ErrUnsupportedMediaType, "application/json"),
			wantCode: "FILE002",
		},
		{
			name:     "empty body",
			err:      ErrEmptyUpload,
			wantCode: "FILE003",
		},
		{
			name:     "database connection",
			err:      errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			wantCode: "DB004",
		},
		{
			name:     "shutdown",
			err:      ErrShuttingDown,
			wantCode: "SRV001",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("RATE LIMIT exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && (got.Message == "" || got.Action == "") {
				t.Errorf("MapError() = %+v, want message and action", got)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  &AliasConflictError{Alias: "a"},
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
