package apperr

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"syscall"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/speechscore/internal/resilience"
)

// Cause subdivides [KindUpstream] errors.
type Cause int

const (
	CauseUnknown Cause = iota
	CauseAuthentication
	CausePermission
	CauseRateLimit
	CauseBadRequest
	CauseConflict
	CauseNotFound
	CauseUnprocessable
	CauseTimeout
	CauseConnection
	CauseInternal
)

// String returns the wire name of the cause.
func (c Cause) String() string {
	switch c {
	case CauseAuthentication:
		return "authentication"
	case CausePermission:
		return "permission"
	case CauseRateLimit:
		return "rate_limit"
	case CauseBadRequest:
		return "bad_request"
	case CauseConflict:
		return "conflict"
	case CauseNotFound:
		return "not_found"
	case CauseUnprocessable:
		return "unprocessable"
	case CauseTimeout:
		return "timeout"
	case CauseConnection:
		return "connection"
	case CauseInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Status returns the distinct HTTP-style status reported for the cause.
func (c Cause) Status() int {
	switch c {
	case CauseAuthentication:
		return http.StatusUnauthorized
	case CausePermission:
		return http.StatusForbidden
	case CauseRateLimit:
		return http.StatusTooManyRequests
	case CauseBadRequest:
		return http.StatusBadRequest
	case CauseConflict:
		return http.StatusConflict
	case CauseNotFound:
		return http.StatusNotFound
	case CauseUnprocessable:
		return http.StatusUnprocessableEntity
	case CauseTimeout:
		return http.StatusGatewayTimeout
	case CauseConnection:
		return http.StatusServiceUnavailable
	case CauseInternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may reasonably try again later.
// The pipeline itself never retries.
func (c Cause) Retryable() bool {
	switch c {
	case CauseRateLimit, CauseTimeout, CauseConnection, CauseInternal:
		return true
	}
	return false
}

// TripsBreaker reports whether err should count against an upstream circuit
// breaker. Requests the service rejected on their merits (bad input, unknown
// model, unsupported audio) say nothing about its health.
func TripsBreaker(err error) bool {
	if IsLocal(err) {
		return false
	}
	switch Classify(err) {
	case CauseBadRequest, CauseNotFound, CauseUnprocessable, CauseConflict:
		return false
	}
	return true
}

// LocalFault is implemented by adapter errors raised on this machine (disk,
// decoding, file assembly) rather than by the remote service.
type LocalFault interface {
	LocalFault() bool
}

// IsLocal reports whether err carries a [LocalFault] that reports true.
func IsLocal(err error) bool {
	var lf LocalFault
	return errors.As(err, &lf) && lf.LocalFault()
}

// StatusCoder is implemented by adapter errors that carry the HTTP status
// returned by the upstream service.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps an upstream failure to its [Cause]. Structured status codes
// win; transport-level failures are recognised next; everything else is
// [CauseUnknown].
func Classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return causeFromStatus(apiErr.StatusCode)
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return causeFromStatus(sc.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return CauseConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CauseConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CauseConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CauseConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CauseConnection
	}
	return CauseUnknown
}

// causeFromStatus maps an HTTP status code to a [Cause].
func causeFromStatus(status int) Cause {
	switch status {
	case http.StatusBadRequest:
		return CauseBadRequest
	case http.StatusUnauthorized:
		return CauseAuthentication
	case http.StatusForbidden:
		return CausePermission
	case http.StatusNotFound:
		return CauseNotFound
	case http.StatusConflict:
		return CauseConflict
	case http.StatusUnprocessableEntity:
		return CauseUnprocessable
	case http.StatusTooManyRequests:
		return CauseRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CauseTimeout
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return CauseConnection
	}
	if status >= 500 {
		return CauseInternal
	}
	return CauseUnknown
}
