package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/speechscore/pkg/audio"
	"github.com/MrWong99/speechscore/pkg/provider/tts"
	"github.com/MrWong99/speechscore/pkg/provider/tts/mock"
)

func TestClampSpeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{0, 1},
		{0.02, 0.5},
		{0.5, 0.5},
		{1.3, 1.3},
		{4, 4},
		{7.5, 4},
		{-2, 0.5},
	}
	for _, tt := range tests {
		if got := tts.ClampSpeed(tt.in); got != tt.want {
			t.Errorf("ClampSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := tts.SplitText("   ", 10); got != nil {
		t.Errorf("blank text: got %v, want nil", got)
	}
	if got := tts.SplitText("짧은 문장", 10); len(got) != 1 || got[0] != "짧은 문장" {
		t.Errorf("short text: got %v", got)
	}

	words := strings.Fields(strings.Repeat("가나다 라마 바사아자 ", 40))
	text := strings.Join(words, " ")
	chunks := tts.SplitText(text, 25)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 25 {
			t.Errorf("chunk %d has %d runes, limit 25", i, n)
		}
	}
	if rejoined := strings.Join(chunks, " "); rejoined != text {
		t.Error("rejoined chunks do not reproduce the input")
	}
}

func TestSplitText_NoWhitespaceCutsHard(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("가", 25)
	chunks := tts.SplitText(text, 10)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if utf8.RuneCountInString(chunks[2]) != 5 {
		t.Errorf("last chunk = %q", chunks[2])
	}
}

func TestChunked_ShortTextSingleCall(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{}
	c := tts.NewChunked(m, 100)
	out := filepath.Join(t.TempDir(), "out.wav")
	if err := c.Synthesize(context.Background(), tts.Request{Text: "hello world", Speed: 1}, out); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	calls := m.Calls()
	if len(calls) != 1 || calls[0].OutPath != out {
		t.Fatalf("calls = %+v, want one call writing %s", calls, out)
	}
}

func TestChunked_ConcatenatesInOrderAndCleansUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := &mock.Provider{SampleRate: 8000, Seconds: 0.5}
	c := tts.NewChunked(m, 12)
	out := filepath.Join(dir, "speech.wav")

	text := "first part here second part here third part"
	if err := c.Synthesize(context.Background(), tts.Request{Text: text, Speed: 0.5, Voice: "alloy"}, out); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	calls := m.Calls()
	if len(calls) < 3 {
		t.Fatalf("got %d upstream calls, want at least 3", len(calls))
	}
	var texts []string
	for _, call := range calls {
		if call.Req.Speed != 0.5 || call.Req.Voice != "alloy" {
			t.Errorf("chunk request lost speed/voice: %+v", call.Req)
		}
		texts = append(texts, call.Req.Text)
	}
	if strings.Join(texts, " ") != text {
		t.Errorf("chunks out of order: %q", texts)
	}

	a, err := audio.Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := 0.5 * float64(len(calls)); a.Duration() != want {
		t.Errorf("duration = %v, want %v", a.Duration(), want)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("leftover files: %v", names)
	}
}

func TestChunked_FailureRemovesParts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	boom := errors.New("rate limited")
	fails := &failAfter{ok: 1, err: boom}
	c := tts.NewChunked(fails, 5)

	err := c.Synthesize(context.Background(), tts.Request{Text: "one two three four"}, filepath.Join(dir, "x.wav"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("%d files left behind", len(entries))
	}
}

// failAfter succeeds ok times, then fails.
type failAfter struct {
	ok  int
	err error
	m   mock.Provider
}

func (f *failAfter) Synthesize(ctx context.Context, req tts.Request, out string) error {
	if len(f.m.Calls()) >= f.ok {
		return f.err
	}
	return f.m.Synthesize(ctx, req, out)
}

// rateFlipper writes each chunk at a different sample rate.
type rateFlipper struct{ calls int }

func (r *rateFlipper) Synthesize(_ context.Context, _ tts.Request, outPath string) error {
	r.calls++
	rate := 16000
	if r.calls%2 == 0 {
		rate = 24000
	}
	return audio.NewAsset(rate, 1, 16, make([]int, rate/10)).Save(outPath)
}

func TestChunked_ConcatFailureIsLocal(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out.wav")
	c := tts.NewChunked(&rateFlipper{}, 10)
	err := c.Synthesize(context.Background(), tts.Request{Text: "하나 둘 셋 넷 다섯 여섯 일곱 여덟"}, out)

	var le *tts.LocalError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *tts.LocalError", err)
	}
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Errorf("err = %v, want ErrFormatMismatch underneath", err)
	}
	if !le.LocalFault() {
		t.Error("LocalFault() = false")
	}
}
