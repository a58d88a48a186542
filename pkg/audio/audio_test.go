package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/speechscore/pkg/audio"
)

// tone returns seconds of a 16-bit sine at freq Hz.
func tone(sampleRate int, seconds, freq float64) []int {
	n := int(seconds * float64(sampleRate))
	out := make([]int, n)
	for i := range out {
		out[i] = int(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func writeTone(t *testing.T, dir, name string, sampleRate int, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	a := audio.NewAsset(sampleRate, 1, 16, tone(sampleRate, seconds, 440))
	if err := a.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "stereo.wav")
	in := audio.NewAsset(8000, 2, 16, []int{1, -1, 2, -2, 3, -3, 4, -4})
	if err := in.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if in.Path != path {
		t.Errorf("Path = %q, want %q", in.Path, path)
	}

	out, err := audio.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.SampleRate != 8000 || out.Channels != 2 || out.BitDepth != 16 {
		t.Fatalf("format = %dHz/%dch/%dbit", out.SampleRate, out.Channels, out.BitDepth)
	}
	if out.Frames() != 4 {
		t.Fatalf("Frames = %d, want 4", out.Frames())
	}
	for i, v := range in.Data {
		if out.Data[i] != v {
			t.Errorf("sample %d = %d, want %d", i, out.Data[i], v)
		}
	}

	// No temp files left next to the destination.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bogus.wav")
	if err := os.WriteFile(path, []byte("definitely not a riff file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := audio.Load(path); !errors.Is(err, audio.ErrInvalidWAV) {
		t.Fatalf("err = %v, want ErrInvalidWAV", err)
	}
	if _, err := audio.Load(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	a := audio.NewAsset(16000, 1, 16, make([]int, 24000))
	if d := a.Duration(); d != 1.5 {
		t.Errorf("Duration = %v, want 1.5", d)
	}
	if d := (&audio.Asset{}).Duration(); d != 0 {
		t.Errorf("zero asset Duration = %v, want 0", d)
	}
}

func TestSlice_ClipsPastEnd(t *testing.T) {
	t.Parallel()

	a := audio.NewAsset(10, 2, 16, []int{0, 0, 1, 1, 2, 2, 3, 3, 4, 4})

	s := a.Slice(3, 100)
	if s.Frames() != 2 {
		t.Fatalf("Frames = %d, want 2", s.Frames())
	}
	if s.Data[0] != 3 || s.Data[2] != 4 {
		t.Errorf("Data = %v", s.Data)
	}

	empty := a.Slice(7, 12)
	if empty.Frames() != 0 {
		t.Errorf("slice past end has %d frames, want 0", empty.Frames())
	}

	// The slice is a copy.
	s.Data[0] = 99
	if a.Data[6] != 3 {
		t.Error("Slice aliases the source buffer")
	}
}

func TestMono_DownmixAndScale(t *testing.T) {
	t.Parallel()

	a := audio.NewAsset(8000, 2, 16, []int{16384, 0, -32768, -32768})
	m := a.Mono()
	if len(m) != 2 {
		t.Fatalf("len = %d, want 2", len(m))
	}
	if m[0] != 0.25 {
		t.Errorf("m[0] = %v, want 0.25", m[0])
	}
	if m[1] != -1 {
		t.Errorf("m[1] = %v, want -1", m[1])
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	same := []float64{0.1, 0.2, 0.3}
	if out := audio.Resample(same, 16000, 16000); len(out) != 3 {
		t.Errorf("same rate len = %d, want 3", len(out))
	}

	up := audio.Resample([]float64{0, 1}, 16000, 48000)
	if len(up) != 6 {
		t.Fatalf("upsample len = %d, want 6", len(up))
	}
	if up[0] != 0 {
		t.Errorf("first sample = %v, want 0", up[0])
	}
	if up[len(up)-1] < 0.9 {
		t.Errorf("last sample = %v, want close to 1", up[len(up)-1])
	}

	down := audio.Resample([]float64{1, 2, 3, 4, 5, 6}, 48000, 16000)
	if len(down) != 2 {
		t.Errorf("downsample len = %d, want 2", len(down))
	}
}

func TestMonoFloat32_ResamplesTo16k(t *testing.T) {
	t.Parallel()

	a := audio.NewAsset(48000, 2, 16, make([]int, 2*48000))
	out := audio.MonoFloat32(a, 16000)
	if len(out) != 16000 {
		t.Errorf("len = %d, want 16000", len(out))
	}
}

func TestFromPCM16(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 6)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(100))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(0xFFFF)) // -1
	binary.LittleEndian.PutUint16(pcm[4:], uint16(0x8000)) // -32768

	a, err := audio.FromPCM16(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("FromPCM16: %v", err)
	}
	want := []int{100, -1, -32768}
	for i, v := range want {
		if a.Data[i] != v {
			t.Errorf("sample %d = %d, want %d", i, a.Data[i], v)
		}
	}

	if _, err := audio.FromPCM16([]byte{1, 2, 3}, 24000, 1); err == nil {
		t.Error("expected error for odd byte count")
	}
}

func TestSyncLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		have   float64
		target float64
	}{
		{"pad", 1.0, 2.5},
		{"truncate", 3.0, 1.25},
		{"equal", 2.0, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			const sr = 8000
			path := writeTone(t, t.TempDir(), "tts.wav", sr, tt.have)
			orig, err := audio.Load(path)
			if err != nil {
				t.Fatal(err)
			}

			got, err := audio.SyncLength(path, tt.target)
			if err != nil {
				t.Fatalf("SyncLength: %v", err)
			}
			if math.Abs(got.Duration()-tt.target) > 1.0/sr {
				t.Errorf("returned duration = %v, want %v", got.Duration(), tt.target)
			}

			reloaded, err := audio.Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(reloaded.Duration()-tt.target) > 1.0/sr {
				t.Errorf("file duration = %v, want %v", reloaded.Duration(), tt.target)
			}

			// The retained prefix is untouched; padding is pure silence.
			keep := min(orig.Frames(), reloaded.Frames())
			for i := range keep {
				if reloaded.Data[i] != orig.Data[i] {
					t.Fatalf("frame %d changed: %d -> %d", i, orig.Data[i], reloaded.Data[i])
				}
			}
			for i := keep; i < reloaded.Frames(); i++ {
				if reloaded.Data[i] != 0 {
					t.Fatalf("padding frame %d = %d, want 0", i, reloaded.Data[i])
				}
			}
		})
	}
}

func TestSyncLength_InvalidTarget(t *testing.T) {
	t.Parallel()

	path := writeTone(t, t.TempDir(), "a.wav", 8000, 0.5)
	if _, err := audio.SyncLength(path, -1); err == nil {
		t.Error("expected error for negative target")
	}
	if _, err := audio.SyncLength(path, math.NaN()); err == nil {
		t.Error("expected error for NaN target")
	}
}

func TestConcat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := audio.NewAsset(8000, 1, 16, []int{1, 2, 3})
	second := audio.NewAsset(8000, 1, 16, []int{4, 5})
	p1, p2 := filepath.Join(dir, "p1.wav"), filepath.Join(dir, "p2.wav")
	if err := first.Save(p1); err != nil {
		t.Fatal(err)
	}
	if err := second.Save(p2); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "out.wav")
	if _, err := audio.Concat(dst, []string{p1, p2}); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	got, err := audio.Load(dst)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(got.Data) != len(want) {
		t.Fatalf("Data = %v, want %v", got.Data, want)
	}
	for i, v := range want {
		if got.Data[i] != v {
			t.Errorf("sample %d = %d, want %d", i, got.Data[i], v)
		}
	}
}

func TestConcat_FormatMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p1 := writeTone(t, dir, "a.wav", 8000, 0.1)
	p2 := writeTone(t, dir, "b.wav", 16000, 0.1)
	_, err := audio.Concat(filepath.Join(dir, "out.wav"), []string{p1, p2})
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("err = %v, want ErrFormatMismatch", err)
	}
	if _, err := audio.Concat(filepath.Join(dir, "out.wav"), nil); err == nil {
		t.Error("expected error for no inputs")
	}
}
