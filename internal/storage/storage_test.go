package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/speechscore/internal/storage"
)

func newLayout(t *testing.T) *storage.Layout {
	t.Helper()
	l, err := storage.New(storage.DefaultDirs(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestNewID(t *testing.T) {
	t.Parallel()

	a, b := storage.NewID(), storage.NewID()
	if a == b {
		t.Fatal("NewID returned the same id twice")
	}
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if err := storage.ValidateID(a); err != nil {
		t.Errorf("ValidateID(NewID()) = %v", err)
	}
}

func TestValidateID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "../etc", "ABC", "abc/def", "a.b", strings.Repeat("a", 65)} {
		if err := storage.ValidateID(id); !errors.Is(err, storage.ErrInvalidID) {
			t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestNew_CreatesDirs(t *testing.T) {
	t.Parallel()

	l := newLayout(t)
	d := l.Dirs()
	for _, dir := range []string{d.Uploads, d.Audio, d.TTS, d.Scripts} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	if err := l.CheckWritable(); err != nil {
		t.Errorf("CheckWritable: %v", err)
	}
	if _, err := storage.New(storage.Dirs{}); err == nil {
		t.Error("expected error for empty dirs")
	}
}

func TestScriptRoundTrip(t *testing.T) {
	t.Parallel()

	l := newLayout(t)
	id := storage.NewID()

	if _, ok, err := l.LoadScript(id); ok || err != nil {
		t.Fatalf("LoadScript before save = %v, %v", ok, err)
	}
	if err := l.SaveScript(id, "안녕하세요 여러분"); err != nil {
		t.Fatal(err)
	}
	text, ok, err := l.LoadScript(id)
	if err != nil || !ok || text != "안녕하세요 여러분" {
		t.Errorf("LoadScript = %q, %v, %v", text, ok, err)
	}
}

func TestFindAndRemove(t *testing.T) {
	t.Parallel()

	l := newLayout(t)
	id := storage.NewID()

	if _, err := l.FindUpload(id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("FindUpload = %v, want ErrNotFound", err)
	}
	path, err := l.SaveUpload(id, "MP4", strings.NewReader("video"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("upload path %q, want lower-case extension", path)
	}
	if got, err := l.FindUpload(id); err != nil || got != path {
		t.Errorf("FindUpload = %q, %v", got, err)
	}

	if err := os.WriteFile(l.AudioPath(id), []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.FindAudio(id); err != nil {
		t.Errorf("FindAudio: %v", err)
	}
	if err := l.SaveScript(id, "script"); err != nil {
		t.Fatal(err)
	}
	tts := filepath.Join(l.TTSDir(), id+"_1234.wav")
	if err := os.WriteFile(tts, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	other := storage.NewID()
	if err := l.SaveScript(other, "keep me"); err != nil {
		t.Fatal(err)
	}

	n, err := l.Remove(id)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 4 {
		t.Errorf("removed %d files, want 4", n)
	}
	if _, ok, _ := l.LoadScript(other); !ok {
		t.Error("Remove deleted another id's script")
	}
	if _, err := l.Remove(id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
	if _, err := l.Remove("../x"); !errors.Is(err, storage.ErrInvalidID) {
		t.Errorf("Remove(traversal) = %v, want ErrInvalidID", err)
	}
}
