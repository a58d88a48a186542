package audio

import (
	"errors"
	"fmt"
)

// ErrFormatMismatch is returned by [Concat] when the inputs do not share a
// sample rate, channel count and bit depth.
var ErrFormatMismatch = errors.New("audio: format mismatch")

// Concat decodes the WAV files in srcs, joins their samples in order and
// writes the result to dst. No resampling happens, so every input must share
// the first input's format.
func Concat(dst string, srcs []string) (*Asset, error) {
	if len(srcs) == 0 {
		return nil, errors.New("audio: concat: no inputs")
	}

	var out *Asset
	for _, src := range srcs {
		a, err := Load(src)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = NewAsset(a.SampleRate, a.Channels, a.BitDepth, a.Data)
			continue
		}
		if a.SampleRate != out.SampleRate || a.Channels != out.Channels || a.BitDepth != out.BitDepth {
			return nil, fmt.Errorf("%w: %s is %dHz/%dch/%dbit, want %dHz/%dch/%dbit", ErrFormatMismatch,
				src, a.SampleRate, a.Channels, a.BitDepth, out.SampleRate, out.Channels, out.BitDepth)
		}
		out.Data = append(out.Data, a.Data...)
	}

	if err := out.Save(dst); err != nil {
		return nil, err
	}
	return out, nil
}
