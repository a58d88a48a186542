package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/speechscore/pkg/audio"
	"github.com/MrWong99/speechscore/pkg/provider/stt"
)

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.wav")
	if err := audio.NewAsset(16000, 1, 16, make([]int, 1600)).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

type formFields struct {
	language, model, filename string
	size                      int64
}

func TestTranscribe_SendsMultipartForm(t *testing.T) {
	t.Parallel()

	got := make(chan formFields, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got <- formFields{
			language: r.FormValue("language"),
			model:    r.FormValue("model"),
			filename: hdr.Filename,
			size:     hdr.Size,
		}
		_, _ = io.WriteString(w, `{"text":"  안녕하세요 여러분  "}`)
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/", WithModel("large-v3"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), writeWAV(t), "ko")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "안녕하세요 여러분" {
		t.Errorf("text = %q", text)
	}

	f := <-got
	if f.language != "ko" || f.model != "large-v3" || f.filename != "talk.wav" {
		t.Errorf("form = %+v", f)
	}
	if f.size == 0 {
		t.Error("uploaded file is empty")
	}
}

func TestTranscribe_HTTPErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Transcribe(context.Background(), writeWAV(t), "")
	var httpErr *stt.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *stt.HTTPError", err)
	}
	if httpErr.HTTPStatus() != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", httpErr.HTTPStatus())
	}
	if httpErr.Body != "model busy" {
		t.Errorf("body = %q", httpErr.Body)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	t.Parallel()

	p, _ := New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
	if _, err := NewNative(""); err == nil {
		t.Fatal("expected error for empty modelPath")
	}
}

func TestCollectSegments(t *testing.T) {
	t.Parallel()

	segs := []whisperlib.Segment{{Text: " 첫 번째 "}, {Text: "   "}, {Text: "두 번째"}}
	i := 0
	next := func() (whisperlib.Segment, error) {
		if i == len(segs) {
			return whisperlib.Segment{}, io.EOF
		}
		i++
		return segs[i-1], nil
	}
	got, err := collectSegments(next)
	if err != nil {
		t.Fatalf("collectSegments: %v", err)
	}
	if got != "첫 번째 두 번째" {
		t.Errorf("got %q", got)
	}

	boom := errors.New("boom")
	_, err = collectSegments(func() (whisperlib.Segment, error) { return whisperlib.Segment{}, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
