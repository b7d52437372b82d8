// Package importerr holds the error taxonomy shared by every import stage.
package importerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed JSON or a schema violation. Fatal, raised before any write.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingLocalAsset marks a referenced media file that does not exist on disk.
	ErrMissingLocalAsset = errors.New("missing local asset")
	// ErrUploadFailure marks a blob-store upload that did not succeed.
	ErrUploadFailure = errors.New("upload failure")
	// ErrWriteFailure marks a document-store write that did not succeed.
	ErrWriteFailure = errors.New("write failure")
	// ErrPartialBatchFailure marks a unit whose batches were only partly committed.
	ErrPartialBatchFailure = errors.New("partial batch failure")
	// ErrFailFast is returned by a run aborted by the fail-fast policy.
	ErrFailFast = errors.New("fail-fast policy tripped")
	// ErrStoreUnreachable is returned when the document store accepted no write at all.
	ErrStoreUnreachable = errors.New("document store unreachable")
)

// Kind is the short label used in reports and failure files.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindMissingLocalAsset   Kind = "missing_local_asset"
	KindUploadFailure       Kind = "upload_failure"
	KindWriteFailure        Kind = "write_failure"
	KindPartialBatchFailure Kind = "partial_batch_failure"
	KindUnknown             Kind = "unknown"
)

func InvalidInput(format string, args ...any) error {
	return errors.Join(ErrInvalidInput, fmt.Errorf(format, args...))
}

// Tag attaches a sentinel to err while keeping err reachable through errors.Is/As.
func Tag(sentinel, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(sentinel, err)
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrMissingLocalAsset):
		return KindMissingLocalAsset
	case errors.Is(err, ErrUploadFailure):
		return KindUploadFailure
	case errors.Is(err, ErrPartialBatchFailure):
		return KindPartialBatchFailure
	case errors.Is(err, ErrWriteFailure):
		return KindWriteFailure
	default:
		return KindUnknown
	}
}
