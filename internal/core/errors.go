package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDatasetNotFound is returned when an id or alias does not resolve.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrQueryTimeout is returned when a query scan exceeds the configured limit.
	ErrQueryTimeout = errors.New("query timeout exceeded")

	// ErrShuttingDown is returned for work submitted or queued during shutdown.
	ErrShuttingDown = errors.New("service shutting down")

	// ErrUploadTooLarge is returned when an upload exceeds ETL_MAX_FILE_SIZE.
	ErrUploadTooLarge = errors.New("request body too large")

	// ErrEmptyUpload is returned for a request without a body.
	ErrEmptyUpload = errors.New("empty request body")

	// ErrUnsupportedMediaType is returned for uploads that are not CSV.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// DecodeError reports an upload whose bytes cannot be decoded.
type DecodeError struct {
	Charset string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Charset == "" {
		return fmt.Sprintf("decode upload: %v", e.Err)
	}
	return fmt.Sprintf("decode upload as %s: %v", e.Charset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MalformedCSVError reports structurally invalid CSV. When Reason is empty
// the error describes a field-count mismatch on Line.
type MalformedCSVError struct {
	Line   int
	Got    int
	Want   int
	Reason string
}

func (e *MalformedCSVError) Error() string {
	if e.Reason != "" {
		if e.Line > 0 {
			return fmt.Sprintf("malformed csv: line %d: %s", e.Line, e.Reason)
		}
		return "malformed csv: " + e.Reason
	}
	return fmt.Sprintf("malformed csv: line %d has %d fields, header has %d", e.Line, e.Got, e.Want)
}

// IncompatibleColumnsError reports an append whose header does not fit the dataset.
type IncompatibleColumnsError struct {
	Got  int
	Want int
}

func (e *IncompatibleColumnsError) Error() string {
	return fmt.Sprintf("incompatible columns: upload has %d, dataset has %d", e.Got, e.Want)
}

// UnknownFilterKeyError reports a query key that matches no column.
type UnknownFilterKeyError struct {
	Key string
}

func (e *UnknownFilterKeyError) Error() string {
	return fmt.Sprintf("unknown filter key %q", e.Key)
}

// InvalidFilterError reports an unusable query parameter value.
type InvalidFilterError struct {
	Param string
	Value string
	Err   error
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter %s=%q: %v", e.Param, e.Value, e.Err)
}

func (e *InvalidFilterError) Unwrap() error { return e.Err }

// AliasConflictError reports an alias that is already taken.
type AliasConflictError struct {
	Alias string
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("alias conflict: %q is already in use", e.Alias)
}

// InvalidAliasError reports an alias that is empty or not alphanumeric.
type InvalidAliasError struct {
	Alias string
}

func (e *InvalidAliasError) Error() string {
	return fmt.Sprintf("invalid alias %q: must be alphanumeric", e.Alias)
}

// DatasetLockedError reports a dataset that has pending ingestion work.
type DatasetLockedError struct {
	ID     string
	Status Status
}

func (e *DatasetLockedError) Error() string {
	return fmt.Sprintf("dataset locked: %s is %s", e.ID, e.Status)
}

// DatasetFailedError reports a dataset whose last ingestion failed.
type DatasetFailedError struct {
	ID     string
	Detail string
}

func (e *DatasetFailedError) Error() string {
	return fmt.Sprintf("dataset failed: %s: %s", e.ID, e.Detail)
}

// checkQueryable returns nil only for Ready datasets.
func checkQueryable(ds *Dataset) error {
	switch ds.Status {
	case StatusReady:
		return nil
	case StatusFailed:
		return &DatasetFailedError{ID: ds.ID, Detail: ds.Error}
	default:
		return &DatasetLockedError{ID: ds.ID, Status: ds.Status}
	}
}
