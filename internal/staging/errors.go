package staging

import (
	"errors"
	"fmt"
)

// Kind classifies service failures so the transport layer can pick a status.
type Kind int

const (
	KindInternal Kind = iota
	// KindNotFound: the session, its chat history, or the property is absent.
	KindNotFound
	// KindValidation: bad input, rejected before any external call.
	KindValidation
	// KindUpstream: image generation, image download, or blob storage failed.
	KindUpstream
	// KindBusy: another generation holds the session lock.
	KindBusy
	// KindConflict: concurrent writers kept invalidating our update.
	KindConflict
	// KindNoWorkingImage: save was called with nothing to save.
	KindNoWorkingImage
	// KindUnsupported: the operation is disabled by configuration.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindBusy:
		return "busy"
	case KindConflict:
		return "conflict"
	case KindNoWorkingImage:
		return "no_working_image"
	case KindUnsupported:
		return "unsupported"
	default:
		return "internal"
	}
}

// Error is returned by every Service operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
