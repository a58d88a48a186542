// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns a recorded audio file into a transcript. speechscore
// calls it once for the whole recording and once per analysis segment, so
// implementations must be safe for concurrent use and must not retry:
// failures are returned with the upstream cause intact and the caller decides
// how to classify them.
package stt

import (
	"context"
	"fmt"
)

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe returns the text spoken in the audio file at audioPath.
	// language is an ISO-639-1 hint such as "ko"; empty lets the backend
	// detect it. A recording with no speech yields "" and a nil error.
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// HTTPError is returned by HTTP-based adapters when the backend answers with
// a non-2xx status. It exposes the status through HTTPStatus so error
// classifiers can map it without knowing the adapter.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }
