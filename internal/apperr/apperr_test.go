package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/resilience"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_OpenAIStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   apperr.Cause
	}{
		{http.StatusBadRequest, apperr.CauseBadRequest},
		{http.StatusUnauthorized, apperr.CauseAuthentication},
		{http.StatusForbidden, apperr.CausePermission},
		{http.StatusNotFound, apperr.CauseNotFound},
		{http.StatusConflict, apperr.CauseConflict},
		{http.StatusUnprocessableEntity, apperr.CauseUnprocessable},
		{http.StatusTooManyRequests, apperr.CauseRateLimit},
		{http.StatusInternalServerError, apperr.CauseInternal},
		{http.StatusServiceUnavailable, apperr.CauseConnection},
		{http.StatusGatewayTimeout, apperr.CauseTimeout},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			err := fmt.Errorf("openai: transcribe: %w", &oai.Error{StatusCode: tt.status})
			if got := apperr.Classify(err); got != tt.want {
				t.Errorf("Classify(%d) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassify_TransportFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want apperr.Cause
	}{
		{"deadline", fmt.Errorf("tts: %w", context.DeadlineExceeded), apperr.CauseTimeout},
		{"net timeout", timeoutErr{}, apperr.CauseTimeout},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, apperr.CauseConnection},
		{"circuit open", fmt.Errorf("stt: %w", resilience.ErrCircuitOpen), apperr.CauseConnection},
		{"status coder", statusErr(http.StatusTooManyRequests), apperr.CauseRateLimit},
		{"plain", errors.New("boom"), apperr.CauseUnknown},
		{"nil", nil, apperr.CauseUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := apperr.Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCauseStatus_Distinct(t *testing.T) {
	t.Parallel()

	causes := []apperr.Cause{
		apperr.CauseUnknown, apperr.CauseAuthentication, apperr.CausePermission,
		apperr.CauseRateLimit, apperr.CauseBadRequest, apperr.CauseConflict,
		apperr.CauseNotFound, apperr.CauseUnprocessable, apperr.CauseTimeout,
		apperr.CauseConnection, apperr.CauseInternal,
	}
	seen := make(map[int]apperr.Cause)
	for _, c := range causes {
		s := c.Status()
		if prev, ok := seen[s]; ok {
			t.Errorf("status %d shared by %s and %s", s, prev, c)
		}
		seen[s] = c
	}
}

func TestCause_Retryable(t *testing.T) {
	t.Parallel()

	retry := map[apperr.Cause]bool{
		apperr.CauseRateLimit:      true,
		apperr.CauseTimeout:        true,
		apperr.CauseConnection:     true,
		apperr.CauseInternal:       true,
		apperr.CauseBadRequest:     false,
		apperr.CauseUnprocessable:  false,
		apperr.CauseAuthentication: false,
		apperr.CausePermission:     false,
	}
	for c, want := range retry {
		if got := c.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", c, got, want)
		}
	}
}

func TestUpstream_KeepsCauseChain(t *testing.T) {
	t.Parallel()

	root := statusErr(http.StatusUnauthorized)
	err := apperr.Upstream("stt", fmt.Errorf("whisper: %w", root))

	if err.Kind != apperr.KindUpstream {
		t.Fatalf("Kind = %s, want upstream", err.Kind)
	}
	if err.Cause != apperr.CauseAuthentication {
		t.Errorf("Cause = %s, want authentication", err.Cause)
	}
	if err.Status() != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", err.Status())
	}
	if !errors.Is(err, root) {
		t.Error("errors.Is(err, root) = false, want true")
	}

	// Re-wrapping an upstream error keeps the original classification.
	again := apperr.Upstream("pipeline", fmt.Errorf("score: %w", err))
	if again != err {
		t.Error("Upstream re-wrapped an already classified error")
	}
}

func TestAudioProcessing_DoesNotHideKinds(t *testing.T) {
	t.Parallel()

	up := apperr.Upstream("stt", statusErr(http.StatusTooManyRequests))
	got := apperr.AudioProcessing("segments", fmt.Errorf("segment 0: %w", up))
	if k := apperr.KindOf(got); k != apperr.KindUpstream {
		t.Errorf("KindOf = %s, want upstream", k)
	}

	plain := apperr.AudioProcessing("similarity", errors.New("no frames"))
	if !apperr.Is(plain, apperr.KindAudioProcessing) {
		t.Errorf("KindOf = %s, want audio_processing_error", apperr.KindOf(plain))
	}
	if s := apperr.StatusOf(plain); s != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d, want 500", s)
	}
}

func TestKindStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{apperr.Importing("convert", errors.New("bad codec")), http.StatusBadRequest},
		{apperr.Input("normalize", "got %T", 3), http.StatusBadRequest},
		{apperr.DocumentProcessing("txt", errors.New("utf8")), http.StatusUnprocessableEntity},
		{errors.New("untyped"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := apperr.StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := apperr.Upstream("tts", statusErr(http.StatusTooManyRequests))
	want := "upstream_service_error(rate_limit): tts: status 429"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTripsBreaker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", statusErr(http.StatusTooManyRequests), true},
		{"server error", &oai.Error{StatusCode: http.StatusBadGateway}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"unclassified", errors.New("boom"), true},
		{"bad request", statusErr(http.StatusBadRequest), false},
		{"unknown model", &oai.Error{StatusCode: http.StatusNotFound}, false},
		{"unsupported audio", statusErr(http.StatusUnprocessableEntity), false},
		{"local write", diskFault{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := apperr.TripsBreaker(fmt.Errorf("stt: %w", tt.err)); got != tt.want {
				t.Errorf("TripsBreaker = %v, want %v", got, tt.want)
			}
		})
	}
}

type diskFault struct{}

func (diskFault) Error() string    { return "no space left on device" }
func (diskFault) LocalFault() bool { return true }

func TestIsLocal(t *testing.T) {
	t.Parallel()

	if !apperr.IsLocal(fmt.Errorf("tts: %w", diskFault{})) {
		t.Error("wrapped local fault not detected")
	}
	for _, err := range []error{nil, errors.New("boom"), statusErr(http.StatusBadGateway)} {
		if apperr.IsLocal(err) {
			t.Errorf("IsLocal(%v) = true", err)
		}
	}
}
