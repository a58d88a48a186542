package feedback_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/catalog"
	"github.com/MrWong99/speechscore/internal/feedback"
	"github.com/MrWong99/speechscore/internal/scoring"
	"github.com/MrWong99/speechscore/internal/storage"
	sttmock "github.com/MrWong99/speechscore/pkg/provider/stt/mock"
)

type copyConverter struct{ err error }

func (c copyConverter) Convert(_ context.Context, src, dst string) error {
	if c.err != nil {
		return c.err
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o644)
}

type fakeScorer struct {
	mu       sync.Mutex
	refs     []scoring.Reference
	deadline bool
	err      error
}

func (f *fakeScorer) Score(ctx context.Context, _ string, ref scoring.Reference) (*scoring.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &scoring.Report{OriginalSpeed: 120}, nil
}

type fakeAnswerer struct{ gotTranscript, gotQuestion string }

func (f *fakeAnswerer) Ask(_ context.Context, transcript, question string) (string, error) {
	f.gotTranscript, f.gotQuestion = transcript, question
	return "It is about testing.", nil
}

type memCatalog struct {
	mu     sync.Mutex
	assets map[string]catalog.Asset
}

func (m *memCatalog) Put(_ context.Context, a *catalog.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assets == nil {
		m.assets = map[string]catalog.Asset{}
	}
	m.assets[a.ID] = *a
	return nil
}

func (m *memCatalog) Get(_ context.Context, id string) (*catalog.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &a, nil
}

func (m *memCatalog) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, id)
	return nil
}

func (m *memCatalog) List(context.Context, int) ([]catalog.Asset, error) { return nil, nil }
func (m *memCatalog) Ping(context.Context) error                         { return nil }
func (m *memCatalog) Close() error                                       { return nil }

type env struct {
	svc     *feedback.Service
	layout  *storage.Layout
	scorer  *fakeScorer
	stt     *sttmock.Provider
	qa      *fakeAnswerer
	catalog *memCatalog
}

func newEnv(t *testing.T, conv feedback.Converter, opts ...feedback.Option) *env {
	t.Helper()
	layout, err := storage.New(storage.DefaultDirs(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		layout:  layout,
		scorer:  &fakeScorer{},
		stt:     &sttmock.Provider{Text: "오늘 발표를 시작하겠습니다"},
		qa:      &fakeAnswerer{},
		catalog: &memCatalog{},
	}
	e.svc, err = feedback.New(feedback.Deps{
		Layout:    layout,
		Converter: conv,
		Catalog:   e.catalog,
		Scorer:    e.scorer,
		STT:       e.stt,
		Answerer:  e.qa,
	}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRegister_WithScriptText(t *testing.T) {
	t.Parallel()

	e := newEnv(t, copyConverter{})
	ctx := context.Background()
	id, err := e.svc.Register(ctx, feedback.Upload{
		Filename: "talk.MP4",
		Media:    strings.NewReader("media"),
		Script:   "발표 대본입니다",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := e.layout.FindAudio(id); err != nil {
		t.Errorf("audio not converted: %v", err)
	}
	if text, ok, _ := e.layout.LoadScript(id); !ok || text != "발표 대본입니다" {
		t.Errorf("script = %q, %v", text, ok)
	}
	a, err := e.catalog.Get(ctx, id)
	if err != nil || a.Extension != "mp4" || !a.HasScript || a.OriginalName != "talk.MP4" {
		t.Errorf("catalog = %+v, %v", a, err)
	}

	if _, err := e.svc.Score(ctx, id); err != nil {
		t.Fatalf("Score: %v", err)
	}
	if ref := e.scorer.refs[0]; !ref.IsProvided() || ref.Text() != "발표 대본입니다" {
		t.Errorf("reference = %+v", ref)
	}
	if !e.scorer.deadline {
		t.Error("scoring ran without a deadline")
	}
}

func TestRegister_ScriptFileIsCleaned(t *testing.T) {
	t.Parallel()

	e := newEnv(t, copyConverter{})
	id, err := e.svc.Register(context.Background(), feedback.Upload{
		Filename:       "talk.wav",
		Media:          strings.NewReader("media"),
		ScriptFileName: "script.txt",
		ScriptFile:     strings.NewReader("^1. 안녕하세요 .반갑습니다 IAA"),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if text, _, _ := e.layout.LoadScript(id); text != "안녕하세요. 반갑습니다" {
		t.Errorf("script = %q", text)
	}
}

func TestRegister_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		conv feedback.Converter
		up   feedback.Upload
		kind apperr.Kind
	}{
		{
			name: "unsupported media",
			conv: copyConverter{},
			up:   feedback.Upload{Filename: "slides.pdf", Media: strings.NewReader("x")},
			kind: apperr.KindImporting,
		},
		{
			name: "unsupported script document",
			conv: copyConverter{},
			up:   feedback.Upload{Filename: "a.mp3", Media: strings.NewReader("x"), ScriptFileName: "s.docx", ScriptFile: strings.NewReader("x")},
			kind: apperr.KindDocumentProcessing,
		},
		{
			name: "conversion failure",
			conv: copyConverter{err: apperr.Importing("convert", errors.New("bad codec"))},
			up:   feedback.Upload{Filename: "a.mkv", Media: strings.NewReader("x")},
			kind: apperr.KindImporting,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, tt.conv)
			_, err := e.svc.Register(context.Background(), tt.up)
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %s", err, tt.kind)
			}
			for _, dir := range []string{e.layout.Dirs().Uploads, e.layout.Dirs().Audio, e.layout.Dirs().Scripts} {
				if entries, _ := os.ReadDir(dir); len(entries) != 0 {
					t.Errorf("%s not empty after failure", dir)
				}
			}
		})
	}
}

func TestScore_WithoutScriptIsAbsent(t *testing.T) {
	t.Parallel()

	e := newEnv(t, copyConverter{}, feedback.WithTimeout(0))
	id, err := e.svc.Register(context.Background(), feedback.Upload{Filename: "a.ogg", Media: strings.NewReader("x")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Score(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if e.scorer.refs[0].IsProvided() {
		t.Error("reference should be absent")
	}
	if e.scorer.deadline {
		t.Error("WithTimeout(0) should not bound the run")
	}
}

func TestScore_UnknownVideo(t *testing.T) {
	t.Parallel()

	e := newEnv(t, copyConverter{})
	_, err := e.svc.Score(context.Background(), storage.NewID())
	if feedback.StatusOf(err) != http.StatusNotFound || feedback.KindOf(err) != "not_found" {
		t.Errorf("err = %v, status %d", err, feedback.StatusOf(err))
	}
	_, err = e.svc.Score(context.Background(), "../../etc/passwd")
	if feedback.StatusOf(err) != http.StatusBadRequest {
		t.Errorf("traversal status = %d, want 400", feedback.StatusOf(err))
	}
}

func TestAsk(t *testing.T) {
	t.Parallel()

	e := newEnv(t, copyConverter{})
	ctx := context.Background()
	id, err := e.svc.Register(ctx, feedback.Upload{Filename: "a.wav", Media: strings.NewReader("x")})
	if err != nil {
		t.Fatal(err)
	}

	transcript, answer, err := e.svc.Ask(ctx, id, "What is this about?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if transcript != "오늘 발표를 시작하겠습니다" || answer != "It is about testing." {
		t.Errorf("Ask = %q, %q", transcript, answer)
	}
	if e.qa.gotQuestion != "What is this about?" {
		t.Errorf("question = %q", e.qa.gotQuestion)
	}

	if _, _, err := e.svc.Ask(ctx, id, "  "); !apperr.Is(err, apperr.KindInput) {
		t.Errorf("blank question err = %v, want input error", err)
	}

	e.stt.Err = errors.New("boom")
	e.stt.Text = ""
	if _, _, err := e.svc.Ask(ctx, id, "q"); !apperr.Is(err, apperr.KindUpstream) {
		t.Errorf("stt failure err = %v, want upstream", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	e := newEnv(t, copyConverter{})
	ctx := context.Background()
	id, err := e.svc.Register(ctx, feedback.Upload{Filename: "a.wav", Media: strings.NewReader("x"), Script: "s"})
	if err != nil {
		t.Fatal(err)
	}
	n, err := e.svc.Delete(ctx, id)
	if err != nil || n != 3 {
		t.Fatalf("Delete = %d, %v; want 3 files", n, err)
	}
	if _, err := e.catalog.Get(ctx, id); !errors.Is(err, catalog.ErrNotFound) {
		t.Error("catalog entry not removed")
	}
	if _, err := e.svc.Delete(ctx, id); feedback.StatusOf(err) != http.StatusNotFound {
		t.Errorf("second delete = %v, want 404", err)
	}
}

func TestStatusAndCause(t *testing.T) {
	t.Parallel()

	up := apperr.Upstream("tts", &statusError{code: http.StatusTooManyRequests})
	if feedback.StatusOf(up) != http.StatusTooManyRequests || feedback.CauseOf(up) != "rate_limit" {
		t.Errorf("upstream status %d cause %q", feedback.StatusOf(up), feedback.CauseOf(up))
	}
	if feedback.CauseOf(apperr.Input("x", "y")) != "" {
		t.Error("non-upstream error has a cause")
	}
	if feedback.StatusOf(context.DeadlineExceeded) != http.StatusGatewayTimeout {
		t.Error("bare deadline should map to 504")
	}
}

type statusError struct{ code int }

func (e *statusError) Error() string   { return http.StatusText(e.code) }
func (e *statusError) HTTPStatus() int { return e.code }

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := feedback.New(feedback.Deps{}); err == nil {
		t.Fatal("expected error")
	}
}
