// Package apperr defines the error taxonomy shared by the scoring pipeline and
// its boundaries (HTTP, bus, batch).
//
// Every failure that leaves the core carries a [Kind]. Upstream AI-service
// failures additionally carry a [Cause] chosen once by [Classify], so callers
// can tell "retry later" from "fix the request" from "fix credentials" without
// matching on provider-specific error types.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse category of a pipeline failure.
type Kind int

const (
	// KindUnknown is reported by [KindOf] for errors that carry no kind.
	KindUnknown Kind = iota

	// KindImporting means the input media could not be decoded or converted
	// to the working audio format.
	KindImporting

	// KindAudioProcessing means a computation over a decodable asset failed
	// (duration, speed, similarity, segmentation, length sync).
	KindAudioProcessing

	// KindDocumentProcessing means reference-script extraction failed.
	KindDocumentProcessing

	// KindInput means a caller handed the core a value it cannot work with.
	KindInput

	// KindUpstream means an external AI service call failed. See [Cause].
	KindUpstream
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindImporting:
		return "importing_error"
	case KindAudioProcessing:
		return "audio_processing_error"
	case KindDocumentProcessing:
		return "document_processing_error"
	case KindInput:
		return "input_error"
	case KindUpstream:
		return "upstream_service_error"
	default:
		return "unknown_error"
	}
}

// Error is the typed error produced by the pipeline. Op names the operation
// that failed (e.g. "stt", "sync_length"); Err is the preserved cause.
type Error struct {
	Kind  Kind
	Cause Cause
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Kind == KindUpstream {
		prefix += "(" + e.Cause.String() + ")"
	}
	if e.Op != "" {
		prefix += ": " + e.Op
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP-style status code for this error.
func (e *Error) Status() int {
	switch e.Kind {
	case KindImporting, KindInput:
		return http.StatusBadRequest
	case KindDocumentProcessing:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return e.Cause.Status()
	default:
		return http.StatusInternalServerError
	}
}

// Importing wraps err as a [KindImporting] error.
func Importing(op string, err error) *Error {
	return &Error{Kind: KindImporting, Op: op, Err: err}
}

// AudioProcessing wraps err as a [KindAudioProcessing] error. If err already
// carries a kind it is returned unchanged so upstream causes are not hidden.
func AudioProcessing(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindAudioProcessing, Op: op, Err: err}
}

// DocumentProcessing wraps err as a [KindDocumentProcessing] error.
func DocumentProcessing(op string, err error) *Error {
	return &Error{Kind: KindDocumentProcessing, Op: op, Err: err}
}

// Input returns a [KindInput] error with a formatted message.
func Input(op string, format string, args ...any) *Error {
	return &Error{Kind: KindInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// Upstream wraps err from the named service as a [KindUpstream] error whose
// cause is chosen by [Classify].
func Upstream(service string, err error) *Error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindUpstream {
		return e
	}
	return &Error{Kind: KindUpstream, Cause: Classify(err), Op: service, Err: err}
}

// KindOf reports the kind carried by err, or [KindUnknown].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// StatusOf returns the HTTP-style status for err; 500 when err has no kind.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}
