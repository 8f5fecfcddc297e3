package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrUnknownMimeType     = errors.New("unknown mime type")
	ErrUnexpectedMimeType  = errors.New("unexpected mime type")
	ErrSessionInit         = errors.New("session init error")
	ErrNoMatchingParameter = errors.New("no matching parameter")
	ErrUpload              = errors.New("upload error")
	ErrComputation         = errors.New("computation error")
	ErrJobTimeout          = errors.New("job timeout")
	ErrNoMatchingOutput    = errors.New("no matching output")
	ErrDownload            = errors.New("download error")
	ErrFileIO              = errors.New("file i/o error")
)

// failureKinds lists markers in classification order. The first marker found
// in an error chain names the failure.
var failureKinds = []struct {
	marker error
	kind   string
}{
	{ErrConfiguration, "ConfigurationError"},
	{ErrUnknownMimeType, "UnknownMimeType"},
	{ErrUnexpectedMimeType, "UnexpectedMimeType"},
	{ErrSessionInit, "SessionInitError"},
	{ErrNoMatchingParameter, "NoMatchingParameter"},
	{ErrUpload, "UploadError"},
	{ErrComputation, "ComputationError"},
	{ErrJobTimeout, "JobTimeoutError"},
	{ErrNoMatchingOutput, "NoMatchingOutput"},
	{ErrDownload, "DownloadError"},
	{ErrFileIO, "FileIOError"},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		if err == nil {
			return errors.New(detail)
		}
		return fmt.Errorf("%s: %w", detail, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error to the failure kind name reported to the user.
// Errors carrying no marker report "Error".
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	for _, fk := range failureKinds {
		if errors.Is(err, fk.marker) {
			return fk.kind
		}
	}
	return "Error"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
