package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/speechscore/pkg/audio"
)

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.wav")
	if err := audio.NewAsset(16000, 1, 16, make([]int, 800)).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	forms := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		forms <- [2]string{r.FormValue("model"), r.FormValue("language")}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" 오늘 발표 주제는 "}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), writeWAV(t), "ko")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "오늘 발표 주제는" {
		t.Errorf("text = %q", text)
	}
	f := <-forms
	if f[0] != "whisper-1" || f[1] != "ko" {
		t.Errorf("model/language = %v", f)
	}
}

func TestTranscribe_AuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	p, _ := New("sk-bad", WithBaseURL(srv.URL+"/v1/"))
	_, err := p.Transcribe(context.Background(), writeWAV(t), "ko")
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want *openai.Error with 401", err)
	}
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}
