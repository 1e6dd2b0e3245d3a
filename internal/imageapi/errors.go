package imageapi

import (
	"errors"
	"fmt"
)

// Validation failures. These are recoverable at the front-end boundary and
// never reach the remote API.
var (
	ErrNotFound          = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooLarge          = errors.New("image too large")
	ErrEmpty             = errors.New("image is empty")
	ErrPromptRequired    = errors.New("prompt is required")
	ErrPromptTooLong     = errors.New("prompt is too long")
	ErrReferenceCount    = errors.New("between 1 and 4 reference images are required")
)

// Remote failures, mapped from the upstream response.
var (
	ErrUnauthorized = errors.New("unauthorized: check your API key")
	ErrRateLimited  = errors.New("rate limited: wait a moment and retry")
	ErrBadRequest   = errors.New("the API rejected the request")
	ErrServerError  = errors.New("the API returned a server error")
	ErrNetwork      = errors.New("network error")
)

// Materialization failures, reported per output image.
var (
	ErrDownloadFailed = errors.New("failed to download image")
	ErrDecodeFailed   = errors.New("failed to decode image data")
)

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

// IsRecoverableInput reports whether err is a local validation failure that a
// front end should handle by re-prompting or flagging the offending field.
func IsRecoverableInput(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrUnsupportedFormat, ErrTooLarge, ErrEmpty,
		ErrPromptRequired, ErrPromptTooLong, ErrReferenceCount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
