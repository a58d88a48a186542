// Package audio holds the file-backed waveform type shared by the scoring
// pipeline and the helpers that read, write, slice, resize and concatenate it.
//
// An [Asset] is an interleaved integer PCM buffer plus the WAV file it was
// loaded from or saved to. Decoding and encoding go through
// github.com/go-audio/wav; everything else works on the in-memory samples.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a decodable RIFF/WAVE file.
var ErrInvalidWAV = errors.New("audio: not a valid WAV file")

// Asset is a decoded PCM waveform. Data holds interleaved samples at
// BitDepth resolution; a frame is one sample per channel.
type Asset struct {
	// Path is the backing WAV file. Empty for assets that were never saved.
	Path string

	SampleRate int
	Channels   int
	BitDepth   int

	// Data is interleaved PCM, len(Data) == Frames()*Channels.
	Data []int
}

// NewAsset returns an unsaved asset. Channels and BitDepth default to mono
// 16-bit when zero.
func NewAsset(sampleRate, channels, bitDepth int, data []int) *Asset {
	if channels <= 0 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return &Asset{SampleRate: sampleRate, Channels: channels, BitDepth: bitDepth, Data: data}
}

// Load decodes the WAV file at path.
func Load(path string) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}

	a := &Asset{
		Path:       path,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Data:       buf.Data,
	}
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return nil, fmt.Errorf("%w: %s has sample rate %d, %d channels", ErrInvalidWAV, path, a.SampleRate, a.Channels)
	}
	return a, nil
}

// Save encodes the asset as PCM WAV at path and updates a.Path. The file is
// written next to its destination and renamed into place, so a failed write
// never leaves a half-written asset behind.
func (a *Asset) Save(path string) error {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return fmt.Errorf("audio: save %q: invalid format %dHz/%dch", path, a.SampleRate, a.Channels)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".audio-*.wav")
	if err != nil {
		return fmt.Errorf("audio: save %q: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := wav.NewEncoder(tmp, a.SampleRate, a.BitDepth, a.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: a.Channels, SampleRate: a.SampleRate},
		Data:           a.Data,
		SourceBitDepth: a.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("audio: close wav encoder: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("audio: close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("audio: save %q: %w", path, err)
	}
	a.Path = path
	return nil
}

// Frames returns the number of sample frames.
func (a *Asset) Frames() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.Data) / a.Channels
}

// Duration returns the length of the asset in seconds.
func (a *Asset) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(a.Frames()) / float64(a.SampleRate)
}

// Slice returns a copy of frames [start, end). Indices past the end of the
// stream are clipped silently; an empty range yields an asset with no data.
func (a *Asset) Slice(start, end int) *Asset {
	n := a.Frames()
	start = min(max(start, 0), n)
	end = min(max(end, start), n)

	data := make([]int, (end-start)*a.Channels)
	copy(data, a.Data[start*a.Channels:end*a.Channels])
	return NewAsset(a.SampleRate, a.Channels, a.BitDepth, data)
}

// Mono down-mixes the asset to a single channel scaled to [-1, 1].
func (a *Asset) Mono() []float64 {
	frames := a.Frames()
	out := make([]float64, frames)
	if frames == 0 {
		return out
	}
	scale := fullScale(a.BitDepth) * float64(a.Channels)
	for i := range frames {
		var sum int
		for ch := range a.Channels {
			sum += a.Data[i*a.Channels+ch]
		}
		out[i] = float64(sum) / scale
	}
	return out
}

// fullScale returns the magnitude of the most negative sample at bitDepth.
func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return math.Exp2(float64(bitDepth - 1))
}
