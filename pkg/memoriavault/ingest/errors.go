package ingest

import "errors"

// Request-level failures. Each is fatal for the upload and is matched with
// errors.Is; the wrapped cause carries the detail.
var (
	// ErrValidation: the request was rejected before anything was written.
	ErrValidation = errors.New("validation failed")

	// ErrStorage: the media bytes could not be persisted. Nothing was
	// extracted or committed.
	ErrStorage = errors.New("storage failed")

	// ErrCommit: the record could not be committed. The blob may remain
	// on disk unreferenced until the orphan sweeper removes it.
	ErrCommit = errors.New("commit failed")
)

// Error kinds as reported at the HTTP boundary.
const (
	KindValidation = "validation"
	KindStorage    = "storage"
	KindCommit     = "commit"
)

// KindOf returns the kind of a request-level error, or "" for any other
// error.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrCommit):
		return KindCommit
	default:
		return ""
	}
}
