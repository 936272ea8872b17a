package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Kind tags why an item did not produce a good digest.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindAccessDenied
	KindLocked
	KindIO
	KindCancelled
	KindSizeLimitExceeded
	KindDigestMismatch
	KindMissingDigest
)

var kindNames = [...]string{
	KindNone:              "none",
	KindNotFound:          "not found",
	KindAccessDenied:      "access denied",
	KindLocked:            "locked",
	KindIO:                "i/o error",
	KindCancelled:         "cancelled",
	KindSizeLimitExceeded: "size limit exceeded",
	KindDigestMismatch:    "digest mismatch",
	KindMissingDigest:     "missing expected digest",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Cancellation causes. They are attached to contexts with WithCancelCause so
// the item status can say who stopped it.
var (
	ErrBatchCancelled = errors.New("batch cancelled")
	ErrForceCancelled = errors.New("force cancelled")
	ErrItemCancelled  = errors.New("item cancelled")
	ErrItemTimeout    = errors.New("item timed out")
)

// ItemError is the error side of every HashComputer result and of every
// failed or cancelled item.
type ItemError struct {
	Err      error
	Path     string
	Op       string
	Expected string // DigestMismatch only
	Actual   string // DigestMismatch only
	Kind     Kind
}

func (e *ItemError) Error() string {
	switch e.Kind {
	case KindDigestMismatch:
		return fmt.Sprintf("%s: %s: expected %s, got %s", e.Path, e.Kind, e.Expected, e.Actual)
	case KindMissingDigest, KindSizeLimitExceeded:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Path, e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// KindOf reports the Kind carried by err. Errors that are not ItemErrors are
// classified from their underlying cause.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return classifyErr(err)
}

// classifyErr maps an I/O or context error onto the item error taxonomy.
func classifyErr(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrBatchCancelled), errors.Is(err, ErrForceCancelled),
		errors.Is(err, ErrItemCancelled), errors.Is(err, ErrItemTimeout):
		return KindCancelled
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, unix.EBUSY), errors.Is(err, unix.ETXTBSY),
		errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EDEADLK):
		return KindLocked
	case errors.Is(err, fs.ErrPermission):
		return KindAccessDenied
	default:
		return KindIO
	}
}

// newItemError wraps err for path, classifying it.
func newItemError(op, path string, err error) *ItemError {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie
	}
	return &ItemError{Kind: classifyErr(err), Op: op, Path: path, Err: err}
}
