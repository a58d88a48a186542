package audio

import (
	"encoding/binary"
	"fmt"
)

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, or either rate is invalid, the input is
// returned unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	n := len(samples)
	dstN := int(int64(n) * int64(dstRate) / int64(srcRate))
	if dstN == 0 {
		return nil
	}

	out := make([]float64, dstN)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstN {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < n {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// MonoFloat32 down-mixes a to mono, resamples it to rate and returns float32
// samples in [-1, 1], the input layout expected by whisper.cpp.
func MonoFloat32(a *Asset, rate int) []float32 {
	mono := Resample(a.Mono(), a.SampleRate, rate)
	out := make([]float32, len(mono))
	for i, s := range mono {
		out[i] = float32(s)
	}
	return out
}

// FromPCM16 wraps raw 16-bit signed little-endian PCM in an unsaved asset.
func FromPCM16(pcm []byte, sampleRate, channels int) (*Asset, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, fmt.Errorf("audio: pcm payload of %d bytes not aligned to %d-channel frames", len(pcm), channels)
	}
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return NewAsset(sampleRate, channels, 16, data), nil
}
