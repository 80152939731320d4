package fetchhttp

import (
	"errors"
	"fmt"
)

// ProbeError is returned by NewJob when the resource cannot be described:
// the request failed, the server answered with an error or sent no usable
// Content-Length.
type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TransferError means a range could not be fetched completely. Offset is the
// first byte of the range that never arrived.
type TransferError struct {
	Chunk    int
	Range    Range
	Offset   int64
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("chunk %d %s: transfer stopped at offset %d after %d attempt(s): %v",
		e.Chunk, e.Range, e.Offset, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// WriteError records a piece that arrived but could not be written locally.
type WriteError struct {
	Chunk  int
	Offset int64
	Length int
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("chunk %d: write %d bytes at offset %d: %v", e.Chunk, e.Length, e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PartitionError signals a chunk plan that does not cover [0, total-1] exactly.
type PartitionError struct {
	Total  int64
	Count  int
	Reason string
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("invalid chunk plan for %d bytes / %d chunks: %s", e.Total, e.Count, e.Reason)
}

// DownloadError is the failed result of Job.Download. Written is what the
// progress counter held when the job stopped.
type DownloadError struct {
	Path    string
	Written int64
	Total   int64
	Errs    []error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed (%d of %d bytes written): %v", e.Path, e.Written, e.Total, errors.Join(e.Errs...))
}

func (e *DownloadError) Unwrap() []error { return e.Errs }
