package dispatch

import (
	"errors"

	"github.com/MrWong99/voxdispatch/internal/selector"
)

// Sentinel errors. Every failure surfaced by the dispatcher wraps exactly one
// of them; test with errors.Is.
var (
	// ErrValidation reports a malformed request. No provider was contacted.
	ErrValidation = errors.New("validation error")

	// ErrProviderUnavailable reports a pinned provider that is unknown or
	// failed its startup probe.
	ErrProviderUnavailable = selector.ErrProviderUnavailable

	// ErrNoProviderAvailable reports that auto-selection found nothing.
	ErrNoProviderAvailable = selector.ErrNoProviderAvailable

	// ErrSynthesisFailure reports a provider error or a missing artifact.
	ErrSynthesisFailure = errors.New("synthesis failure")
)

// Kind is the machine-readable error category reported as error_kind.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindNoProvider          Kind = "no_provider_available"
	KindSynthesisFailure    Kind = "synthesis_failure"
)

// Sentinel returns the sentinel error for k.
func (k Kind) Sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindProviderUnavailable:
		return ErrProviderUnavailable
	case KindNoProvider:
		return ErrNoProviderAvailable
	default:
		return ErrSynthesisFailure
	}
}

// Error is a categorised dispatcher failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

// Error returns the underlying message verbatim, or the sentinel text when
// there is none.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Sentinel().Error()
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// KindOf returns the [Kind] of err. Errors that are not categorised map to
// [KindSynthesisFailure].
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrNoProviderAvailable):
		return KindNoProvider
	}
	return KindSynthesisFailure
}

func newError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}
